package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler decodes the payload into T. Payloads that fail to decode
// or to validate are permanent failures.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var zero T
	return &taskHandler[T]{name: TaskName(zero), fn: fn}
}

type taskHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string { return h.name }

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return Permanent(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return Permanent(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		}
	}
	return h.fn(ctx, v)
}

// TaskInfo describes the task a handler is running.
type TaskInfo struct {
	ID          uuid.UUID
	Name        string
	Queue       string
	Attempt     int
	MaxAttempts int
}

// IsFinal reports whether a failure now dead-letters the task.
func (i TaskInfo) IsFinal() bool {
	return i.Attempt >= i.MaxAttempts
}

type taskInfoKey struct{}

func WithTaskInfo(ctx context.Context, info TaskInfo) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, info)
}

// TaskInfoFromContext returns the info the worker attached, if any.
func TaskInfoFromContext(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(TaskInfo)
	return info, ok
}
