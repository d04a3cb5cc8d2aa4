package providers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/notifications"
)

// EventNotificationNew is emitted to connected clients for every in-app
// delivery.
const EventNotificationNew = "notification.new"

// Emitter pushes an event to every live connection of a recipient.
// realtime.Gateway satisfies it.
type Emitter interface {
	EmitToRecipient(ctx context.Context, recipientID, event string, payload any) error
}

// InAppNotification is the payload of EventNotificationNew.
type InAppNotification struct {
	ID          uuid.UUID             `json:"id"`
	RecipientID string                `json:"recipientId"`
	Channel     notifications.Channel `json:"channel"`
	TemplateKey string                `json:"templateKey"`
	Body        string                `json:"body"`
	SentAt      time.Time             `json:"sentAt"`
}

// InAppProvider emits to the realtime gateway. A recipient with no live
// connection is not an error; the record stays queryable.
type InAppProvider struct {
	emitter Emitter
	now     func() time.Time
}

func NewInAppProvider(emitter Emitter) *InAppProvider {
	return &InAppProvider{emitter: emitter, now: time.Now}
}

func (p *InAppProvider) Channel() notifications.Channel { return notifications.ChannelInApp }

func (p *InAppProvider) Send(ctx context.Context, msg Message) error {
	return p.emitter.EmitToRecipient(ctx, msg.Target, EventNotificationNew, InAppNotification{
		ID:          msg.NotificationID,
		RecipientID: msg.RecipientID,
		Channel:     msg.Channel,
		TemplateKey: msg.TemplateKey,
		Body:        msg.Body,
		SentAt:      p.now().UTC(),
	})
}
