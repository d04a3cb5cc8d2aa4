// Package queue provides a repository-agnostic task queue with at-least-once
// delivery and per-task retry policies.
//
// The package is organised around two components:
//
//   - Enqueuer  adds tasks, optionally delayed, each carrying a RetryPolicy
//   - Worker    claims due tasks and dispatches them to a Handler by task name
//
// Persistence sits behind the EnqueuerRepository and WorkerRepository
// interfaces. MemoryStorage is provided for tests and single-process
// deployments; the redisstore subpackage shares a queue between processes.
//
// # Retries
//
// A failed attempt n is rescheduled after RetryPolicy.Delay(n). When the
// policy is exhausted, or the handler returns an error wrapped with
// Permanent, the task moves to the dead letter queue. Handlers can inspect
// TaskInfoFromContext to learn whether the current attempt is the last one.
//
// A task whose worker dies keeps its lock until it expires and is then
// claimed again with the same attempt number, so handlers must tolerate
// duplicate execution.
//
// # Usage
//
//	store := queue.NewMemoryStorage()
//	enq, _ := queue.NewEnqueuer(store)
//
//	w, _ := queue.NewWorker(store, queue.WithMaxConcurrentTasks(4))
//	w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p SendEmail) error {
//	    return mailer.Send(ctx, p.To, p.Body)
//	}))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(w.Run(ctx))
//
//	_, err := enq.Enqueue(ctx, SendEmail{To: "user@example.com"},
//	    queue.WithRetryPolicy(queue.RetryPolicy{MaxAttempts: 3, Backoff: queue.BackoffLinear, BaseDelayMs: 1000}),
//	)
package queue
