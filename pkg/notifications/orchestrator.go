package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/queue"
	"github.com/lifebank/notifykit/pkg/validator"
)

// SendMode controls what Send does when one channel of a request fails.
type SendMode int

const (
	// SendModePartial processes channels in order and stops at the first
	// failure. Records created for earlier channels are kept and queued.
	SendModePartial SendMode = iota
	// SendModeValidateFirst resolves and renders every channel before
	// persisting anything, so template and render errors create no records.
	SendModeValidateFirst
)

// JobQueue accepts dispatch jobs. *queue.Enqueuer satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// SendRequest asks for one notification on one or more channels.
type SendRequest struct {
	RecipientID string            `json:"recipientId"`
	Channels    []Channel         `json:"channels"`
	TemplateKey string            `json:"templateKey"`
	Variables   map[string]string `json:"variables,omitempty"`
}

func (r SendRequest) Validate() error {
	rules := []validator.Rule{
		validator.Required("recipientId", r.RecipientID),
		validator.Required("templateKey", r.TemplateKey),
		validator.RequiredSlice("channels", r.Channels),
	}
	for _, ch := range r.Channels {
		rules = append(rules, validator.InList("channels", ch, Channels))
	}
	return validator.Apply(rules...)
}

// Orchestrator accepts send requests, persists records and queues their
// delivery. It also serves the read side of the record log.
type Orchestrator struct {
	templates TemplateStore
	records   RecordStore
	jobs      JobQueue
	renderer  Renderer
	mode      SendMode
	policy    queue.RetryPolicy
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithSendMode(m SendMode) OrchestratorOption {
	return func(o *Orchestrator) { o.mode = m }
}

func WithRenderer(r Renderer) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.renderer = r
		}
	}
}

// WithJobRetryPolicy sets the policy attached to every dispatch job.
// Invalid policies are ignored.
func WithJobRetryPolicy(p queue.RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		if p.Validate() == nil {
			o.policy = p
		}
	}
}

func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOrchestrator(templates TemplateStore, records RecordStore, jobs JobQueue, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		templates: templates,
		records:   records,
		jobs:      jobs,
		renderer:  DefaultRenderer,
		mode:      SendModePartial,
		policy:    queue.DefaultRetryPolicy,
		observer:  nopObserver{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type preparedChannel struct {
	channel Channel
	body    string
}

// Send creates one PENDING record per requested channel and queues one
// dispatch job per record. The returned records are in channel order. On
// error the records created before the failure are returned with it.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) ([]Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(req.Channels))

	if o.mode == SendModeValidateFirst {
		prepared := make([]preparedChannel, 0, len(req.Channels))
		for _, ch := range req.Channels {
			body, err := o.prepare(ctx, req, ch)
			if err != nil {
				return nil, err
			}
			prepared = append(prepared, preparedChannel{channel: ch, body: body})
		}
		for _, p := range prepared {
			rec, err := o.accept(ctx, req, p.channel, p.body)
			if err != nil {
				return records, err
			}
			records = append(records, rec)
		}
		return records, nil
	}

	for _, ch := range req.Channels {
		body, err := o.prepare(ctx, req, ch)
		if err != nil {
			return records, err
		}
		rec, err := o.accept(ctx, req, ch, body)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (o *Orchestrator) prepare(ctx context.Context, req SendRequest, ch Channel) (string, error) {
	tmpl, err := o.templates.Resolve(ctx, req.TemplateKey, ch)
	if err != nil {
		return "", err
	}
	body, err := o.renderer.Render(tmpl.Body, req.Variables)
	if err != nil {
		return "", fmt.Errorf("template %q for channel %s: %w", req.TemplateKey, ch, err)
	}
	return body, nil
}

// accept persists a PENDING record and queues its dispatch job. A record
// whose job cannot be queued is marked FAILED.
func (o *Orchestrator) accept(ctx context.Context, req SendRequest, ch Channel, body string) (Record, error) {
	now := o.now()
	rec := Record{
		ID:           uuid.New(),
		RecipientID:  req.RecipientID,
		Channel:      ch,
		TemplateKey:  req.TemplateKey,
		Variables:    maps.Clone(req.Variables),
		RenderedBody: body,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.records.Create(ctx, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to create record: %w", err)
	}

	_, err := o.jobs.Enqueue(ctx, NewDispatchJob(rec),
		queue.WithTaskName(DispatchTaskName),
		queue.WithRetryPolicy(o.policy),
	)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to enqueue dispatch job",
			logger.NotificationID(rec.ID),
			logger.Channel(ch),
			logger.Error(err),
		)
		if _, uerr := o.records.UpdateStatus(context.WithoutCancel(ctx), rec.ID, StatusPending, StatusFailed); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return Record{}, fmt.Errorf("%w: %w", ErrEnqueue, err)
	}

	o.observer.Accepted(ch)
	o.logger.DebugContext(ctx, "notification accepted",
		logger.NotificationID(rec.ID),
		logger.RecipientID(rec.RecipientID),
		logger.Channel(ch),
	)
	return rec, nil
}

func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return o.records.Get(ctx, id)
}

// FindForRecipient returns one page of the recipient's records, newest
// first. Zero page or limit take the defaults; negative values are rejected.
func (o *Orchestrator) FindForRecipient(ctx context.Context, recipientID string, page, limit int) (Page[Record], error) {
	page, limit, err := NormalizePage(page, limit)
	if err != nil {
		return Page[Record]{}, err
	}
	return o.records.Find(ctx, Filter{RecipientID: recipientID}, page, limit)
}

// MarkRead sets the record to READ whatever its current status.
func (o *Orchestrator) MarkRead(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, err := o.records.MarkRead(ctx, id)
	if err != nil {
		return Record{}, err
	}
	o.observer.Read(rec.Channel)
	return rec, nil
}

func (o *Orchestrator) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return o.records.CountUnread(ctx, recipientID)
}
