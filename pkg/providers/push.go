package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/outbound"
)

// PushProvider posts device notifications to an HTTP push service.
// Requests are signed when a signing secret is configured.
type PushProvider struct {
	client *outbound.Client
	logger *slog.Logger
}

type pushRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// NewPushProvider builds a dry-run provider when cfg.GatewayURL is empty.
func NewPushProvider(cfg PushConfig, log *slog.Logger, opts ...outbound.Option) (*PushProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &PushProvider{logger: log.With(logger.Component("providers.push"))}
	if cfg.GatewayURL == "" {
		return p, nil
	}

	base := []outbound.Option{
		outbound.WithTimeout(cfg.Timeout),
		outbound.WithBreaker(gatewayBreaker(p.logger)),
	}
	if cfg.APIKey != "" {
		base = append(base, outbound.WithBearerToken(cfg.APIKey))
	}
	if cfg.SigningSecret != "" {
		base = append(base, outbound.WithSigningSecret(cfg.SigningSecret))
	}
	client, err := outbound.New(cfg.GatewayURL, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: push: %w", ErrInvalidConfig, err)
	}
	p.client = client
	return p, nil
}

func (p *PushProvider) Channel() notifications.Channel { return notifications.ChannelPush }

func (p *PushProvider) DryRun() bool { return p.client == nil }

func (p *PushProvider) Send(ctx context.Context, msg Message) error {
	if p.DryRun() {
		p.logger.InfoContext(ctx, "push dry run",
			logger.NotificationID(msg.NotificationID),
			slog.String("token", msg.Target),
			slog.Int("body_bytes", len(msg.Body)),
		)
		return nil
	}
	return p.client.Post(ctx, pushRequest{
		Token: msg.Target,
		Title: msg.Subject,
		Body:  msg.Body,
		Data: map[string]string{
			"notificationId": msg.NotificationID.String(),
			"templateKey":    msg.TemplateKey,
		},
	})
}
