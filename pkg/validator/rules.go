package validator

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Required fails on an empty or whitespace-only string.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{
			Field:          field,
			Message:        "is required",
			TranslationKey: "validation.required",
			Values:         map[string]any{"field": field},
		},
	}
}

// MaxLen counts runes, not bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at most %d characters long", max),
			TranslationKey: "validation.max_length",
			Values:         map[string]any{"field": field, "max": max},
		},
	}
}

func RequiredSlice[T any](field string, value []T) Rule {
	return Rule{
		Check: func() bool { return len(value) > 0 },
		Error: ValidationError{
			Field:          field,
			Message:        "must contain at least one item",
			TranslationKey: "validation.required",
			Values:         map[string]any{"field": field},
		},
	}
}

func MaxLenSlice[T any](field string, value []T, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must have at most %d items", max),
			TranslationKey: "validation.max_items",
			Values:         map[string]any{"field": field, "max": max},
		},
	}
}

func MinNum[T Numeric](field string, value, min T) Rule {
	return Rule{
		Check: func() bool { return value >= min },
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at least %v", min),
			TranslationKey: "validation.min",
			Values:         map[string]any{"field": field, "min": min},
		},
	}
}

func NonNilUUID(field string, value uuid.UUID) Rule {
	return Rule{
		Check: func() bool { return value != uuid.Nil },
		Error: ValidationError{
			Field:          field,
			Message:        "is required",
			TranslationKey: "validation.uuid_not_nil",
			Values:         map[string]any{"field": field},
		},
	}
}

func InList[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("%v is not one of %v", value, allowed),
			TranslationKey: "validation.in_list",
			Values:         map[string]any{"field": field, "value": value, "allowed": allowed},
		},
	}
}
