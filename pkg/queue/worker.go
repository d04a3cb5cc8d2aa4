package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/logger"
)

// WorkerRepository is the storage side of task processing.
type WorkerRepository interface {
	// ClaimTask locks the next due task from one of queues. Tasks whose lock
	// expired are claimable again. Returns ErrNoTaskToClaim when idle.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// The methods below act only for the worker holding the task's lock.
	// Once another worker has reclaimed the task they return
	// ErrTaskNotOwned and leave it untouched.

	CompleteTask(ctx context.Context, taskID, workerID uuid.UUID) error

	// FailTask records errMsg, advances the attempt counter and reschedules
	// the task for retryAt.
	FailTask(ctx context.Context, taskID, workerID uuid.UUID, errMsg string, retryAt time.Time) error

	// MoveToDLQ removes the task from its queue and keeps a DeadTask.
	MoveToDLQ(ctx context.Context, taskID, workerID uuid.UUID, errMsg string) error

	ExtendLock(ctx context.Context, taskID, workerID uuid.UUID, duration time.Duration) error
}

// Worker pulls tasks from a WorkerRepository and dispatches them to handlers
// by task name. A failed task is rescheduled according to its retry policy
// until the policy is exhausted, then dead-lettered.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval    time.Duration
	lockTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	shutdownTimeout    time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
}

func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed task stays locked. Handlers run
// with a deadline a tenth shorter, so a handler never outlives its lock. A
// task whose worker dies is claimable again once the lock expires.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for running handlers.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkerConfig applies env-driven settings.
func WithWorkerConfig(cfg Config) WorkerOption {
	return func(o *workerOptions) {
		WithPullInterval(cfg.PollInterval)(o)
		WithLockTimeout(cfg.LockTimeout)(o)
		WithShutdownTimeout(cfg.ShutdownTimeout)(o)
		WithMaxConcurrentTasks(cfg.MaxConcurrentTasks)(o)
		if cfg.QueueName != "" {
			WithQueues(cfg.QueueName)(o)
		}
	}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		shutdownTimeout:    30 * time.Second,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		repo:            repo,
		handlers:        make(map[string]Handler),
		queues:          options.queues,
		workerID:        id,
		sem:             make(chan struct{}, options.maxConcurrentTasks),
		pullInterval:    options.pullInterval,
		lockTimeout:     options.lockTimeout,
		shutdownTimeout: options.shutdownTimeout,
		logger: options.logger.With(
			logger.Component("queue.worker"),
			slog.String("worker_id", id.String()),
		),
		now: time.Now,
	}, nil
}

// ID returns the identifier the worker claims tasks with.
func (w *Worker) ID() uuid.UUID { return w.workerID }

func (w *Worker) RegisterHandler(h Handler) {
	if h == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[h.Name()] = h
}

func (w *Worker) RegisterHandlers(hs ...Handler) {
	for _, h := range hs {
		w.RegisterHandler(h)
	}
}

// Start begins processing in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for in-flight handlers up to the shutdown
// timeout. Tasks still running after that are reclaimed once their lock
// expires.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active tasks")

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
	case <-time.After(w.shutdownTimeout):
		w.logger.Warn("worker shutdown timed out, abandoning running tasks",
			logger.Duration(w.shutdownTimeout))
	}
	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.fillSlots()
		}
	}
}

// fillSlots starts a drain loop in every free slot.
func (w *Worker) fillSlots() {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		w.stopMu.Lock()
		if w.stopping.Load() {
			w.stopMu.Unlock()
			<-w.sem
			return
		}
		w.wg.Add(1)
		w.stopMu.Unlock()

		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.drain()
		}()
	}
}

// drain processes tasks until the queues are empty or the worker stops.
func (w *Worker) drain() {
	for !w.stopping.Load() {
		claimed, err := w.pullAndProcess()
		if err != nil && !errors.Is(err, ErrHandlerNotFound) {
			w.logger.Error("failed to process task", logger.Error(err))
		}
		if !claimed {
			return
		}
	}
}

func (w *Worker) pullAndProcess() (bool, error) {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	w.logger.Debug("claimed task",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		logger.Attempt(task.Attempt))

	return true, w.processTask(task)
}

func (w *Worker) processTask(task *Task) (retErr error) {
	start := w.now()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked",
				logger.TaskID(task.ID),
				slog.String("task_name", task.TaskName),
				slog.Any("panic", r))
			retErr = w.handleTaskFailure(task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return w.handleMissingHandler(task)
	}

	// Handlers outlive worker cancellation so shutdown can let them finish.
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout(w.lockTimeout))
	defer cancel()
	ctx = WithTaskInfo(ctx, TaskInfo{
		ID:          task.ID,
		Name:        task.TaskName,
		Queue:       task.Queue,
		Attempt:     task.Attempt,
		MaxAttempts: task.Policy.attempts(),
	})

	if err := handler.Handle(ctx, task.Payload); err != nil {
		return w.handleTaskFailure(task, err, time.Since(start))
	}
	return w.handleTaskSuccess(task, time.Since(start))
}

// handlerTimeout leaves a margin between the handler deadline and the lock
// expiry for recording the result.
func handlerTimeout(lock time.Duration) time.Duration {
	return lock - lock/10
}

// storeCtx outlives worker cancellation so results of finished handlers are
// still recorded during shutdown.
func (w *Worker) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(w.ctx), 10*time.Second)
}

// handleMissingHandler dead-letters the task; retrying cannot help.
func (w *Worker) handleMissingHandler(task *Task) error {
	w.logger.Error("no handler registered for task type",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName))

	ctx, cancel := w.storeCtx()
	defer cancel()

	if err := w.repo.MoveToDLQ(ctx, task.ID, w.workerID, "no handler registered for task type: "+task.TaskName); err != nil {
		if errors.Is(err, ErrTaskNotOwned) {
			return w.lockLost(task)
		}
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) handleTaskFailure(task *Task, execErr error, d time.Duration) error {
	permanent := errors.Is(execErr, ErrPermanent)
	final := permanent || task.IsFinalAttempt()

	w.logger.Error("task failed",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Attempt(task.Attempt),
		slog.Int("max_attempts", task.Policy.attempts()),
		slog.Bool("permanent", permanent),
		logger.Duration(d),
		logger.Error(execErr))

	ctx, cancel := w.storeCtx()
	defer cancel()

	if final {
		if err := w.repo.MoveToDLQ(ctx, task.ID, w.workerID, execErr.Error()); err != nil {
			if errors.Is(err, ErrTaskNotOwned) {
				return w.lockLost(task)
			}
			return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
		}
		w.logger.Warn("task moved to dead letter queue",
			logger.TaskID(task.ID),
			slog.String("task_name", task.TaskName),
			logger.Attempt(task.Attempt))
		return nil
	}

	retryAt := w.now().Add(task.Policy.Delay(task.Attempt))
	if err := w.repo.FailTask(ctx, task.ID, w.workerID, execErr.Error(), retryAt); err != nil {
		if errors.Is(err, ErrTaskNotOwned) {
			return w.lockLost(task)
		}
		return fmt.Errorf("failed to reschedule task %s: %w", task.ID, err)
	}
	return nil
}

func (w *Worker) handleTaskSuccess(task *Task, d time.Duration) error {
	ctx, cancel := w.storeCtx()
	defer cancel()

	if err := w.repo.CompleteTask(ctx, task.ID, w.workerID); err != nil {
		if errors.Is(err, ErrTaskNotOwned) {
			return w.lockLost(task)
		}
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.logger.Info("task completed",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
		logger.Attempt(task.Attempt),
		logger.Duration(d))
	return nil
}

// lockLost drops the result of a run whose lock another worker now holds.
func (w *Worker) lockLost(task *Task) error {
	w.logger.Warn("task lock lost, result discarded",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Attempt(task.Attempt))
	return nil
}

// ExtendLockForTask extends this worker's lock on a long-running task.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, w.workerID, extension)
}
