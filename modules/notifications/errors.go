package notifications

import (
	"errors"

	"github.com/lifebank/notifykit/pkg/handler"
	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/validator"
)

// statusError keeps the domain message while classifying as an HTTPError.
type statusError struct {
	err    error
	status handler.HTTPError
}

func (e statusError) Error() string   { return e.err.Error() }
func (e statusError) Unwrap() []error { return []error{e.err, e.status} }

// MapError translates domain errors into the HTTP error taxonomy. It is a
// handler.ErrorMapper.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
		fields := handler.NewValidationError()
		for _, v := range verrs {
			fields.Add(v.Field, v.Message)
		}
		return errors.Join(fields, err)
	}

	var status handler.HTTPError
	if errors.As(err, &status) {
		return err
	}

	switch {
	case errors.Is(err, notifications.ErrNotFound):
		return statusError{err: err, status: handler.ErrNotFound}
	case errors.Is(err, notifications.ErrRender):
		return statusError{err: err, status: handler.ErrUnprocessableEntity}
	case errors.Is(err, notifications.ErrValidation):
		return statusError{err: err, status: handler.ErrBadRequest}
	case errors.Is(err, notifications.ErrStatusConflict), errors.Is(err, notifications.ErrDuplicate):
		return statusError{err: err, status: handler.ErrConflict}
	case errors.Is(err, notifications.ErrEnqueue):
		return statusError{err: err, status: handler.ErrServiceUnavailable}
	}
	return err
}
