package validator

import "errors"

// ErrValidationFailed is matched by every ValidationErrors.
var ErrValidationFailed = errors.New("validation failed")
