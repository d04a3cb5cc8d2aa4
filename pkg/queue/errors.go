package queue

import (
	"errors"
	"fmt"
)

var (
	ErrRepositoryNil      = errors.New("repository cannot be nil")
	ErrPayloadNil         = errors.New("payload cannot be nil")
	ErrInvalidPayload     = errors.New("invalid task payload")
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
	ErrHandlerNotFound    = errors.New("no handler registered for task")
	ErrNoHandlers         = errors.New("no task handlers registered")
	ErrNoTaskToClaim      = errors.New("no task to claim")
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskNotProcessing  = errors.New("task is not in processing state")
	ErrTaskNotOwned       = errors.New("task is locked by another worker")
	ErrTaskExists         = errors.New("task already exists")
	ErrWorkerStarted      = errors.New("worker already started")
	ErrWorkerNotStarted   = errors.New("worker not started")

	// ErrPermanent marks handler errors that must not be retried.
	ErrPermanent = errors.New("permanent task failure")
)

// Permanent wraps err so that the worker dead-letters the task at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
