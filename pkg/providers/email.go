package providers

import (
	"context"

	"github.com/lifebank/notifykit/pkg/email"
	"github.com/lifebank/notifykit/pkg/notifications"
)

// EmailProvider sends through an email.EmailSender. Dry-run is the
// sender's concern: email.New returns a log-only sender when no transport
// is configured.
type EmailProvider struct {
	sender email.EmailSender
}

func NewEmailProvider(sender email.EmailSender) *EmailProvider {
	return &EmailProvider{sender: sender}
}

func (p *EmailProvider) Channel() notifications.Channel { return notifications.ChannelEmail }

func (p *EmailProvider) Send(ctx context.Context, msg Message) error {
	return p.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   msg.Target,
		Subject:  msg.Subject,
		BodyText: msg.Body,
		Tag:      msg.TemplateKey,
	})
}
