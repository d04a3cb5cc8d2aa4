package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Task is one unit of queued work. Attempt is the 1-based number of the
// attempt the next claim will run.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	TaskName    string          `json:"task_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      TaskStatus      `json:"status"`
	Attempt     int             `json:"attempt"`
	Policy      RetryPolicy     `json:"policy"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	LockedUntil *time.Time      `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID      `json:"locked_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IsFinalAttempt reports whether a failure of the current attempt exhausts
// the retry policy.
func (t *Task) IsFinalAttempt() bool {
	return t.Attempt >= t.Policy.attempts()
}

// DeadTask is a task that exhausted its retries or failed permanently.
type DeadTask struct {
	ID       uuid.UUID       `json:"id"`
	TaskID   uuid.UUID       `json:"task_id"`
	Queue    string          `json:"queue"`
	TaskName string          `json:"task_name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// NewDeadTask builds the dead-letter entry for task.
func NewDeadTask(task *Task, errMsg string, now time.Time) DeadTask {
	return DeadTask{
		ID:       uuid.New(),
		TaskID:   task.ID,
		Queue:    task.Queue,
		TaskName: task.TaskName,
		Payload:  task.Payload,
		Error:    errMsg,
		Attempts: task.Attempt,
		FailedAt: now,
	}
}
