package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/queue"
)

// Delivery is what a channel provider sends.
type Delivery struct {
	NotificationID uuid.UUID
	RecipientID    string
	Channel        Channel
	Body           string
	TemplateKey    string
	Variables      map[string]string
}

// Deliverer sends a delivery over its channel. Failed deliveries are retried
// under the job's policy; an error wrapping queue.ErrPermanent ends the job
// at once.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

type DelivererFunc func(ctx context.Context, d Delivery) error

func (f DelivererFunc) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// DeliveryHandler runs dispatch jobs on the queue worker. A successful
// delivery moves the record to SENT; the failure that exhausts the job's
// retry policy moves it to FAILED. Records that already left PENDING are
// skipped, so a job redelivered after a lost lock does nothing.
type DeliveryHandler struct {
	records   RecordStore
	deliverer Deliverer
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

type DeliveryOption func(*DeliveryHandler)

func WithDeliveryObserver(obs Observer) DeliveryOption {
	return func(h *DeliveryHandler) {
		if obs != nil {
			h.observer = obs
		}
	}
}

func WithDeliveryLogger(l *slog.Logger) DeliveryOption {
	return func(h *DeliveryHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewDeliveryHandler(records RecordStore, deliverer Deliverer, opts ...DeliveryOption) *DeliveryHandler {
	h := &DeliveryHandler{
		records:   records,
		deliverer: deliverer,
		observer:  nopObserver{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ queue.Handler = (*DeliveryHandler)(nil)

func (h *DeliveryHandler) Name() string { return DispatchTaskName }

func (h *DeliveryHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var job DispatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return queue.Permanent(fmt.Errorf("%w: %w", ErrInvalidJob, err))
	}
	if err := job.Validate(); err != nil {
		return queue.Permanent(fmt.Errorf("%w: %w", ErrInvalidJob, err))
	}

	attempt := job.Attempt
	final := false
	if info, ok := queue.TaskInfoFromContext(ctx); ok {
		attempt = info.Attempt
		final = info.IsFinal()
	}

	log := h.logger.With(
		logger.NotificationID(job.NotificationID),
		logger.Channel(job.Channel),
		logger.Attempt(attempt),
	)

	rec, err := h.records.Get(ctx, job.NotificationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return queue.Permanent(err)
		}
		if final {
			h.failUnread(ctx, job, attempt, err)
		}
		return err
	}
	if rec.Status != StatusPending {
		log.InfoContext(ctx, "skipping dispatch, record no longer pending", slog.String("status", string(rec.Status)))
		return nil
	}

	start := h.now()
	derr := h.deliverer.Deliver(ctx, job.Delivery())
	took := h.now().Sub(start)

	if derr == nil {
		if err := h.transition(ctx, rec, EventDelivered); err != nil {
			return err
		}
		h.observer.Delivered(job.Channel, StatusSent, attempt, took)
		log.InfoContext(ctx, "notification sent", logger.Duration(took))
		return nil
	}

	if final || errors.Is(derr, queue.ErrPermanent) {
		// The worker dead-letters the job after this, so the record must not stay pending.
		if err := h.transition(ctx, rec, EventExhausted); err != nil {
			return errors.Join(derr, err)
		}
		h.observer.Delivered(job.Channel, StatusFailed, attempt, took)
		log.ErrorContext(ctx, "notification failed", logger.Error(derr))
		return derr
	}

	h.observer.Retried(job.Channel, attempt)
	log.WarnContext(ctx, "delivery attempt failed, will retry", logger.Error(derr))
	return derr
}

// failUnread moves the record of a job that could not be read on its last
// attempt to FAILED without reading it first.
func (h *DeliveryHandler) failUnread(ctx context.Context, job DispatchJob, attempt int, cause error) {
	log := h.logger.With(logger.NotificationID(job.NotificationID), logger.Channel(job.Channel))
	_, err := h.records.UpdateStatus(context.WithoutCancel(ctx), job.NotificationID, StatusPending, StatusFailed)
	switch {
	case err == nil:
		h.observer.Delivered(job.Channel, StatusFailed, attempt, 0)
		log.ErrorContext(ctx, "notification failed, record unreadable", logger.Error(cause))
	case errors.Is(err, ErrStatusConflict):
		log.InfoContext(ctx, "record status changed during dispatch", logger.Error(err))
	default:
		log.ErrorContext(ctx, "dispatch abandoned, record left pending",
			logger.Error(errors.Join(cause, err)))
	}
}

// transition applies event to a PENDING record. Losing the race against
// another writer is not an error. The write outlives ctx so a delivery that
// finished at the handler deadline is still recorded.
func (h *DeliveryHandler) transition(ctx context.Context, rec Record, event Event) error {
	next, err := NextStatus(rec.Status, event)
	if err != nil {
		return queue.Permanent(err)
	}
	if _, err := h.records.UpdateStatus(context.WithoutCancel(ctx), rec.ID, rec.Status, next); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			h.logger.InfoContext(ctx, "record status changed during dispatch",
				logger.NotificationID(rec.ID),
				logger.Error(err),
			)
			return nil
		}
		return fmt.Errorf("failed to update record status: %w", err)
	}
	return nil
}
