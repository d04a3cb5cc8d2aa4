// Package redisstore implements the queue repositories on Redis so several
// processes can share one task queue.
//
// Layout, with prefix P and queue Q:
//
//	P:task:<id>         task JSON
//	P:{Q}:pending       ZSET of task ids scored by due time (unix ms)
//	P:{Q}:processing    ZSET of task ids scored by lock expiry (unix ms)
//	P:{Q}:owners        HASH of task id to the worker holding its lock
//	P:{Q}:dlq           LIST of dead task JSON, oldest first
//
// Claims and lock-guarded updates run as Lua scripts, so a worker whose lock
// was reclaimed can no longer change the task.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lifebank/notifykit/pkg/queue"
)

const DefaultPrefix = "notifykit:queue"

// claimScript returns expired locks to pending, then moves the earliest due
// task to processing and returns its id.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('HDEL', KEYS[3], id)
  redis.call('ZADD', KEYS[1], 0, id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[2], ids[1])
redis.call('HSET', KEYS[3], ids[1], ARGV[3])
return ids[1]
`)

// guardedScript applies one update to a processing task if ARGV[2] still
// owns its lock.
//
// KEYS: processing, owners, task, pending, dlq
// ARGV: id, worker, mode, data, ttl ms, score
var guardedScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 'not_processing'
end
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 'not_owned'
end
local mode = ARGV[3]
if mode == 'extend' then
  redis.call('ZADD', KEYS[1], ARGV[6], ARGV[1])
  redis.call('SET', KEYS[3], ARGV[4])
  return 'ok'
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
if mode == 'complete' then
  redis.call('SET', KEYS[3], ARGV[4], 'PX', ARGV[5])
elseif mode == 'fail' then
  redis.call('SET', KEYS[3], ARGV[4])
  redis.call('ZADD', KEYS[4], ARGV[6], ARGV[1])
else
  redis.call('DEL', KEYS[3])
  redis.call('RPUSH', KEYS[5], ARGV[4])
end
return 'ok'
`)

type guardMode string

const (
	modeComplete guardMode = "complete"
	modeFail     guardMode = "fail"
	modeDead     guardMode = "dead"
	modeExtend   guardMode = "extend"
)

type Store struct {
	client       redis.UniversalClient
	prefix       string
	completedTTL time.Duration
	now          func() time.Time
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithCompletedTTL sets how long completed tasks stay readable.
func WithCompletedTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.completedTTL = d
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, queue.ErrRepositoryNil
	}
	s := &Store{
		client:       client,
		prefix:       DefaultPrefix,
		completedTTL: 24 * time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) taskKey(id uuid.UUID) string { return s.prefix + ":task:" + id.String() }
func (s *Store) pendingKey(q string) string  { return s.prefix + ":{" + q + "}:pending" }
func (s *Store) processingKey(q string) string {
	return s.prefix + ":{" + q + "}:processing"
}
func (s *Store) ownersKey(q string) string { return s.prefix + ":{" + q + "}:owners" }
func (s *Store) dlqKey(q string) string    { return s.prefix + ":{" + q + "}:dlq" }

func (s *Store) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redisstore: marshal task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.taskKey(task.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: create task: %w", err)
	}
	if !ok {
		return queue.ErrTaskExists
	}

	score := float64(task.ScheduledAt.UnixMilli())
	if err := s.client.ZAdd(ctx, s.pendingKey(task.Queue), redis.Z{Score: score, Member: task.ID.String()}).Err(); err != nil {
		return fmt.Errorf("redisstore: schedule task: %w", err)
	}
	return nil
}

func (s *Store) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	now := s.now()
	until := now.Add(lockDuration)

	for _, q := range queues {
		res, err := claimScript.Run(ctx, s.client,
			[]string{s.pendingKey(q), s.processingKey(q), s.ownersKey(q)},
			now.UnixMilli(), until.UnixMilli(), workerID.String(),
		).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redisstore: claim from %q: %w", q, err)
		}

		id, err := uuid.Parse(res)
		if err != nil {
			return nil, fmt.Errorf("redisstore: bad task id %q: %w", res, err)
		}
		task, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		task.Status = queue.TaskStatusProcessing
		task.LockedUntil = &until
		task.LockedBy = &workerID
		if err := s.save(ctx, task, 0); err != nil {
			return nil, err
		}
		return task, nil
	}
	return nil, queue.ErrNoTaskToClaim
}

func (s *Store) CompleteTask(ctx context.Context, taskID, workerID uuid.UUID) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := s.now()
	task.Status = queue.TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redisstore: marshal task: %w", err)
	}
	if err := s.guarded(ctx, task, workerID, modeComplete, data, 0); err != nil {
		return fmt.Errorf("redisstore: complete task: %w", err)
	}
	return nil
}

func (s *Store) FailTask(ctx context.Context, taskID, workerID uuid.UUID, errMsg string, retryAt time.Time) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = queue.TaskStatusPending
	task.Attempt++
	task.LastError = errMsg
	task.ScheduledAt = retryAt
	task.LockedUntil = nil
	task.LockedBy = nil

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redisstore: marshal task: %w", err)
	}
	if err := s.guarded(ctx, task, workerID, modeFail, data, retryAt.UnixMilli()); err != nil {
		return fmt.Errorf("redisstore: fail task: %w", err)
	}
	return nil
}

func (s *Store) MoveToDLQ(ctx context.Context, taskID, workerID uuid.UUID, errMsg string) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(queue.NewDeadTask(task, errMsg, s.now()))
	if err != nil {
		return fmt.Errorf("redisstore: marshal dead task: %w", err)
	}
	if err := s.guarded(ctx, task, workerID, modeDead, data, 0); err != nil {
		return fmt.Errorf("redisstore: move task to dlq: %w", err)
	}
	return nil
}

func (s *Store) ExtendLock(ctx context.Context, taskID, workerID uuid.UUID, d time.Duration) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	until := s.now().Add(d)
	task.LockedUntil = &until

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redisstore: marshal task: %w", err)
	}
	if err := s.guarded(ctx, task, workerID, modeExtend, data, until.UnixMilli()); err != nil {
		return fmt.Errorf("redisstore: extend lock: %w", err)
	}
	return nil
}

// guarded runs guardedScript for task and maps its verdict to the queue
// sentinels.
func (s *Store) guarded(ctx context.Context, task *queue.Task, workerID uuid.UUID, mode guardMode, data []byte, score int64) error {
	q := task.Queue
	res, err := guardedScript.Run(ctx, s.client,
		[]string{s.processingKey(q), s.ownersKey(q), s.taskKey(task.ID), s.pendingKey(q), s.dlqKey(q)},
		task.ID.String(), workerID.String(), string(mode), data, s.completedTTL.Milliseconds(), score,
	).Text()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "not_processing":
		return queue.ErrTaskNotProcessing
	case "not_owned":
		return queue.ErrTaskNotOwned
	default:
		return fmt.Errorf("unexpected script result %q", res)
	}
}

func (s *Store) GetTask(ctx context.Context, taskID uuid.UUID) (*queue.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, queue.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get task: %w", err)
	}
	var task queue.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("redisstore: decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// ListDead returns up to limit dead tasks of q, oldest first. A non-positive
// limit returns all of them.
func (s *Store) ListDead(ctx context.Context, q string, limit int) ([]queue.DeadTask, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	items, err := s.client.LRange(ctx, s.dlqKey(q), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list dead tasks: %w", err)
	}
	out := make([]queue.DeadTask, 0, len(items))
	for _, item := range items {
		var d queue.DeadTask
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("redisstore: decode dead task: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, task *queue.Task, ttl time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redisstore: marshal task: %w", err)
	}
	if err := s.client.Set(ctx, s.taskKey(task.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save task: %w", err)
	}
	return nil
}
