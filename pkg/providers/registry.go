package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/lifebank/notifykit/pkg/email"
	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/outbound"
)

// Registry routes deliveries to the provider of their channel. The set of
// providers is fixed at construction.
type Registry struct {
	providers      map[notifications.Channel]Provider
	limiters       map[notifications.Channel]*rate.Limiter
	resolver       TargetResolver
	defaultSubject string
	sendTimeout    time.Duration
	logger         *slog.Logger
}

var _ notifications.Deliverer = (*Registry)(nil)

type RegistryOption func(*Registry)

func WithTargetResolver(r TargetResolver) RegistryOption {
	return func(reg *Registry) {
		if r != nil {
			reg.resolver = r
		}
	}
}

// WithRateLimit caps sends on channel to perSecond with the given burst.
// A non-positive rate leaves the channel unlimited.
func WithRateLimit(channel notifications.Channel, perSecond float64, burst int) RegistryOption {
	return func(reg *Registry) {
		if perSecond <= 0 {
			delete(reg.limiters, channel)
			return
		}
		reg.limiters[channel] = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithDefaultSubject(subject string) RegistryOption {
	return func(reg *Registry) {
		if subject != "" {
			reg.defaultSubject = subject
		}
	}
}

// WithSendTimeout bounds a single provider call.
func WithSendTimeout(d time.Duration) RegistryOption {
	return func(reg *Registry) {
		if d > 0 {
			reg.sendTimeout = d
		}
	}
}

func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(reg *Registry) {
		if l != nil {
			reg.logger = l
		}
	}
}

// WithConfig applies the shared settings and per-channel rate limits.
func WithConfig(cfg Config) RegistryOption {
	return func(reg *Registry) {
		WithDefaultSubject(cfg.DefaultSubject)(reg)
		WithSendTimeout(cfg.SendTimeout)(reg)
		WithRateLimit(notifications.ChannelSMS, cfg.SMSRateLimit, int(cfg.SMSRateLimit))(reg)
		WithRateLimit(notifications.ChannelEmail, cfg.EmailRateLimit, int(cfg.EmailRateLimit))(reg)
		WithRateLimit(notifications.ChannelPush, cfg.PushRateLimit, int(cfg.PushRateLimit))(reg)
	}
}

func NewRegistry(providers []Provider, opts ...RegistryOption) (*Registry, error) {
	reg := &Registry{
		providers:      make(map[notifications.Channel]Provider, len(providers)),
		limiters:       make(map[notifications.Channel]*rate.Limiter),
		resolver:       VariablesTargetResolver,
		defaultSubject: "LifeBank notification",
		sendTimeout:    15 * time.Second,
		logger:         slog.Default(),
	}
	for _, p := range providers {
		ch := p.Channel()
		if !ch.Valid() {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidConfig, ch)
		}
		if _, dup := reg.providers[ch]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, ch)
		}
		reg.providers[ch] = p
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg, nil
}

// Provider returns the provider registered for channel.
func (r *Registry) Provider(channel notifications.Channel) (Provider, bool) {
	p, ok := r.providers[channel]
	return p, ok
}

// Deliver resolves the target and sends d through its channel provider.
// Every failure is left to the job's retry policy; provider failures wrap
// ErrProviderFailed.
func (r *Registry) Deliver(ctx context.Context, d notifications.Delivery) error {
	p, ok := r.providers[d.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoProvider, d.Channel)
	}

	target, err := r.resolver.ResolveTarget(ctx, d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	if lim, ok := r.limiters[d.Channel]; ok {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %w", ErrProviderFailed, err)
		}
	}

	subject := d.Variables[VarSubject]
	if subject == "" {
		subject = r.defaultSubject
	}
	msg := Message{
		NotificationID: d.NotificationID,
		RecipientID:    d.RecipientID,
		Channel:        d.Channel,
		Target:         target,
		Subject:        subject,
		Body:           d.Body,
		TemplateKey:    d.TemplateKey,
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	if err := p.Send(sendCtx, msg); err != nil {
		r.logger.WarnContext(ctx, "provider send failed",
			logger.NotificationID(d.NotificationID),
			logger.Channel(d.Channel),
			slog.Bool("rejected", isRejection(err)),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrProviderFailed, d.Channel, err)
	}
	return nil
}

// isRejection reports whether the provider refused the message itself
// rather than failing to reach its backend.
func isRejection(err error) bool {
	return outbound.IsPermanent(err) ||
		errors.Is(err, email.ErrInvalidParams) ||
		errors.Is(err, email.ErrRecipientRejected)
}
