package notifications

import (
	"errors"
	"fmt"

	"github.com/lifebank/notifykit/pkg/validator"
)

var (
	ErrNotFound       = errors.New("notifications: not found")
	ErrRender         = errors.New("notifications: render failed")
	ErrValidation     = validator.ErrValidationFailed // matched by every validator.ValidationErrors
	ErrStatusConflict = errors.New("notifications: status changed concurrently")
	ErrInvalidJob     = errors.New("notifications: invalid dispatch job")
	ErrDuplicate      = errors.New("notifications: already exists")
	ErrEnqueue        = errors.New("notifications: enqueue failed")
)

// RenderError reports malformed template syntax at a byte offset of the body.
type RenderError struct {
	Offset int
	Reason string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %s at offset %d", e.Reason, e.Offset)
}

func (e *RenderError) Unwrap() error { return ErrRender }
