package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/outbound"
	"github.com/lifebank/notifykit/pkg/queue"
)

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func fastPolicy(attempts int) queue.RetryPolicy {
	return queue.RetryPolicy{MaxAttempts: attempts, Backoff: queue.BackoffFixed, BaseDelayMs: 1}
}

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []notifications.Delivery
	calls     atomic.Int32
	fn        func(n int32) error
}

func (d *recordingDeliverer) Deliver(_ context.Context, del notifications.Delivery) error {
	n := d.calls.Add(1)
	if d.fn != nil {
		if err := d.fn(n); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.delivered = append(d.delivered, del)
	d.mu.Unlock()
	return nil
}

func runPipeline(t *testing.T, deliverer notifications.Deliverer, policy queue.RetryPolicy) (*notifications.Orchestrator, *notifications.MemoryRecordStore, *queue.MemoryStorage) {
	t.Helper()

	records := notifications.NewMemoryRecordStore()
	tasks := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(tasks)
	require.NoError(t, err)

	orch := notifications.NewOrchestrator(welcomeTemplates(), records, enq,
		notifications.WithJobRetryPolicy(policy),
	)

	w, err := queue.NewWorker(tasks,
		queue.WithPullInterval(5*time.Millisecond),
		queue.WithMaxConcurrentTasks(2),
	)
	require.NoError(t, err)
	w.RegisterHandler(notifications.NewDeliveryHandler(records, deliverer))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	return orch, records, tasks
}

func sendWelcome(t *testing.T, orch *notifications.Orchestrator) notifications.Record {
	t.Helper()
	records, err := orch.Send(context.Background(), notifications.SendRequest{
		RecipientID: "user-1",
		Channels:    []notifications.Channel{notifications.ChannelEmail},
		TemplateKey: "welcome",
		Variables:   map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func waitForStatus(t *testing.T, records notifications.RecordStore, id uuid.UUID, want notifications.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, err := records.Get(context.Background(), id)
		return err == nil && rec.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDelivery_Sent(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{}
	orch, records, _ := runPipeline(t, d, fastPolicy(3))

	rec := sendWelcome(t, orch)
	waitForStatus(t, records, rec.ID, notifications.StatusSent)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.delivered, 1)
	assert.Equal(t, "Hello Ada!", d.delivered[0].Body)
	assert.Equal(t, rec.ID, d.delivered[0].NotificationID)
	assert.Equal(t, notifications.ChannelEmail, d.delivered[0].Channel)
}

func TestDelivery_RetriesThenSent(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{fn: func(n int32) error {
		if n < 3 {
			return errors.New("provider unavailable")
		}
		return nil
	}}
	orch, records, _ := runPipeline(t, d, fastPolicy(5))

	rec := sendWelcome(t, orch)
	waitForStatus(t, records, rec.ID, notifications.StatusSent)
	assert.EqualValues(t, 3, d.calls.Load())
}

func TestDelivery_ExhaustedMarksFailed(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{fn: func(int32) error { return errors.New("provider unavailable") }}
	orch, records, tasks := runPipeline(t, d, fastPolicy(3))

	rec := sendWelcome(t, orch)
	waitForStatus(t, records, rec.ID, notifications.StatusFailed)
	assert.EqualValues(t, 3, d.calls.Load())

	require.Eventually(t, func() bool {
		dead, err := tasks.ListDead(context.Background(), queue.DefaultQueueName, 0)
		return err == nil && len(dead) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDelivery_ProviderRejectionIsRetried(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{fn: func(int32) error {
		return fmt.Errorf("%w: 400 Bad Request", outbound.ErrPermanentFailure)
	}}
	orch, records, _ := runPipeline(t, d, fastPolicy(4))

	rec := sendWelcome(t, orch)
	waitForStatus(t, records, rec.ID, notifications.StatusFailed)
	assert.EqualValues(t, 4, d.calls.Load())
}

func TestDelivery_PermanentDelivererErrorMarksFailed(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{fn: func(int32) error {
		return queue.Permanent(errors.New("channel retired"))
	}}
	orch, records, _ := runPipeline(t, d, fastPolicy(5))

	rec := sendWelcome(t, orch)
	waitForStatus(t, records, rec.ID, notifications.StatusFailed)
	assert.EqualValues(t, 1, d.calls.Load())
}

func TestDeliveryHandler_SkipsRecordsNoLongerPending(t *testing.T) {
	t.Parallel()

	records := notifications.NewMemoryRecordStore()
	d := &recordingDeliverer{}
	h := notifications.NewDeliveryHandler(records, d)
	ctx := context.Background()

	rec := newRecord("user-1", notifications.StatusRead, time.Now())
	require.NoError(t, records.Create(ctx, rec))

	payload, err := json.Marshal(notifications.NewDispatchJob(*rec))
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, payload))
	assert.Zero(t, d.calls.Load())
}

func TestDeliveryHandler_InvalidJobIsPermanent(t *testing.T) {
	t.Parallel()

	h := notifications.NewDeliveryHandler(notifications.NewMemoryRecordStore(), &recordingDeliverer{})
	ctx := context.Background()

	err := h.Handle(ctx, json.RawMessage(`{"channel":"EMAIL"}`))
	assert.ErrorIs(t, err, notifications.ErrInvalidJob)
	assert.ErrorIs(t, err, queue.ErrPermanent)

	err = h.Handle(ctx, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, queue.ErrPermanent)
}

func TestDeliveryHandler_MissingRecordIsPermanent(t *testing.T) {
	t.Parallel()

	h := notifications.NewDeliveryHandler(notifications.NewMemoryRecordStore(), &recordingDeliverer{})
	payload, err := json.Marshal(notifications.DispatchJob{
		NotificationID: uuid.New(),
		RecipientID:    "user-1",
		Channel:        notifications.ChannelSMS,
	})
	require.NoError(t, err)

	err = h.Handle(context.Background(), payload)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
	assert.ErrorIs(t, err, queue.ErrPermanent)
}

func TestDeliveryHandler_FinalAttemptFromTaskInfo(t *testing.T) {
	t.Parallel()

	records := notifications.NewMemoryRecordStore()
	d := &recordingDeliverer{fn: func(int32) error { return errors.New("boom") }}
	h := notifications.NewDeliveryHandler(records, d)

	rec := newRecord("user-1", notifications.StatusPending, time.Now())
	require.NoError(t, records.Create(context.Background(), rec))
	payload, err := json.Marshal(notifications.NewDispatchJob(*rec))
	require.NoError(t, err)

	ctx := queue.WithTaskInfo(context.Background(), queue.TaskInfo{Attempt: 1, MaxAttempts: 2})
	require.Error(t, h.Handle(ctx, payload))
	got, err := records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, got.Status)

	ctx = queue.WithTaskInfo(context.Background(), queue.TaskInfo{Attempt: 2, MaxAttempts: 2})
	require.Error(t, h.Handle(ctx, payload))
	got, err = records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusFailed, got.Status)
}

// flakyReads fails Get while leaving writes intact.
type flakyReads struct {
	notifications.RecordStore
	err error
}

func (s flakyReads) Get(context.Context, uuid.UUID) (notifications.Record, error) {
	return notifications.Record{}, s.err
}

func TestDeliveryHandler_UnreadableRecordOnFinalAttempt(t *testing.T) {
	t.Parallel()

	records := notifications.NewMemoryRecordStore()
	d := &recordingDeliverer{}
	readErr := errors.New("connection refused")
	h := notifications.NewDeliveryHandler(flakyReads{RecordStore: records, err: readErr}, d)

	rec := newRecord("user-1", notifications.StatusPending, time.Now())
	require.NoError(t, records.Create(context.Background(), rec))
	payload, err := json.Marshal(notifications.NewDispatchJob(*rec))
	require.NoError(t, err)

	ctx := queue.WithTaskInfo(context.Background(), queue.TaskInfo{Attempt: 1, MaxAttempts: 2})
	err = h.Handle(ctx, payload)
	require.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, queue.ErrPermanent)
	got, err := records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, got.Status)

	ctx, cancel := context.WithCancel(queue.WithTaskInfo(context.Background(), queue.TaskInfo{Attempt: 2, MaxAttempts: 2}))
	cancel()
	require.ErrorIs(t, h.Handle(ctx, payload), readErr)
	got, err = records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusFailed, got.Status)
	assert.Zero(t, d.calls.Load())
}
