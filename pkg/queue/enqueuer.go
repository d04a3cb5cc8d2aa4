package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Validator is implemented by payloads that check their own shape. The
// enqueuer and NewTaskHandler both call it.
type Validator interface {
	Validate() error
}

type Enqueuer struct {
	repo          EnqueuerRepository
	defaultQueue  string
	defaultPolicy RetryPolicy
	now           func() time.Time
}

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.defaultQueue = queue
		}
	}
}

// WithDefaultRetryPolicy is ignored when the policy does not validate.
func WithDefaultRetryPolicy(p RetryPolicy) EnqueuerOption {
	return func(e *Enqueuer) {
		if p.Validate() == nil {
			e.defaultPolicy = p
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo:          repo,
		defaultQueue:  DefaultQueueName,
		defaultPolicy: DefaultRetryPolicy,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue    string
	taskName string
	delay    time.Duration
	policy   *RetryPolicy
}

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithTaskName overrides the name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithRetryPolicy(p RetryPolicy) EnqueueOption {
	return func(o *enqueueOptions) { o.policy = &p }
}

// Enqueue validates and stores payload as a new pending task and returns its id.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}
	if v, ok := payload.(Validator); ok {
		if err := v.Validate(); err != nil {
			return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	o := enqueueOptions{queue: e.defaultQueue}
	for _, opt := range opts {
		opt(&o)
	}

	policy := e.defaultPolicy
	if o.policy != nil {
		if err := o.policy.Validate(); err != nil {
			return uuid.Nil, err
		}
		policy = *o.policy
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: marshal %T: %w", ErrInvalidPayload, payload, err)
	}

	name := o.taskName
	if name == "" {
		name = TaskName(payload)
	}

	now := e.now()
	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		TaskName:    name,
		Payload:     data,
		Status:      TaskStatusPending,
		Attempt:     1,
		Policy:      policy,
		ScheduledAt: now.Add(o.delay),
		CreatedAt:   now,
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return task.ID, nil
}

// TaskName derives the default task name from a payload's type.
func TaskName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
