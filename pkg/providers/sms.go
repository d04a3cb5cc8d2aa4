package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/outbound"
)

// SMSProvider posts text messages to an HTTP carrier gateway.
type SMSProvider struct {
	client   *outbound.Client
	senderID string
	logger   *slog.Logger
}

type smsRequest struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Reference string `json:"reference"`
}

// NewSMSProvider builds a dry-run provider when cfg.GatewayURL is empty.
func NewSMSProvider(cfg SMSConfig, log *slog.Logger, opts ...outbound.Option) (*SMSProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &SMSProvider{
		senderID: cfg.SenderID,
		logger:   log.With(logger.Component("providers.sms")),
	}
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
	client, err := outbound.New(cfg.GatewayURL, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: sms: %w", ErrInvalidConfig, err)
	}
	p.client = client
	return p, nil
}

func (p *SMSProvider) Channel() notifications.Channel { return notifications.ChannelSMS }

// DryRun reports whether sends are only logged.
func (p *SMSProvider) DryRun() bool { return p.client == nil }

func (p *SMSProvider) Send(ctx context.Context, msg Message) error {
	if p.DryRun() {
		p.logger.InfoContext(ctx, "sms dry run",
			logger.NotificationID(msg.NotificationID),
			slog.String("to", msg.Target),
			slog.Int("body_bytes", len(msg.Body)),
		)
		return nil
	}
	return p.client.Post(ctx, smsRequest{
		To:        msg.Target,
		From:      p.senderID,
		Text:      msg.Body,
		Reference: msg.NotificationID.String(),
	})
}
