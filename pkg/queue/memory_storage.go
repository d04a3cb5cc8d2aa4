package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements the queue repositories in process memory. Expired
// locks are reclaimed lazily by ClaimTask.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dlq   []DeadTask
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		now:   time.Now,
	}
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.tasks[task.ID]; ok {
		return ErrTaskExists
	}
	cp := *task
	ms.tasks[task.ID] = &cp
	return nil
}

// ClaimTask picks the earliest scheduled due task. Processing tasks whose
// lock has expired count as due and keep their attempt number.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) {
			continue
		}
		switch t.Status {
		case TaskStatusPending:
			if t.ScheduledAt.After(now) {
				continue
			}
		case TaskStatusProcessing:
			if t.LockedUntil == nil || t.LockedUntil.After(now) {
				continue
			}
		default:
			continue
		}
		if best == nil || t.ScheduledAt.Before(best.ScheduledAt) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID, workerID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.owned(taskID, workerID)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID, workerID uuid.UUID, errMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.owned(taskID, workerID)
	if err != nil {
		return err
	}
	t.Status = TaskStatusPending
	t.Attempt++
	t.LastError = errMsg
	t.ScheduledAt = retryAt
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID, workerID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.owned(taskID, workerID)
	if err != nil {
		return err
	}
	ms.dlq = append(ms.dlq, NewDeadTask(t, errMsg, ms.now()))
	delete(ms.tasks, taskID)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID, workerID uuid.UUID, d time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.owned(taskID, workerID)
	if err != nil {
		return err
	}
	until := ms.now().Add(d)
	t.LockedUntil = &until
	return nil
}

func (ms *MemoryStorage) GetTask(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListDead returns up to limit dead tasks of queue, oldest first. A
// non-positive limit returns all of them.
func (ms *MemoryStorage) ListDead(_ context.Context, queue string, limit int) ([]DeadTask, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]DeadTask, 0)
	for _, d := range ms.dlq {
		if d.Queue != queue {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// owned returns the task if it is processing under workerID's lock. An
// expired lock still belongs to its worker until someone reclaims it.
func (ms *MemoryStorage) owned(taskID, workerID uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	if t.LockedBy == nil || *t.LockedBy != workerID {
		return nil, ErrTaskNotOwned
	}
	return t, nil
}
