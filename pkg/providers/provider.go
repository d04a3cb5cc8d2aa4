package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/notifications"
)

// Message is one resolved send on one channel.
type Message struct {
	NotificationID uuid.UUID
	RecipientID    string
	Channel        notifications.Channel
	// Target is the channel address: phone, email, device token or
	// recipient id.
	Target      string
	Subject     string
	Body        string
	TemplateKey string
}

type Provider interface {
	Channel() notifications.Channel
	Send(ctx context.Context, msg Message) error
}

// TargetResolver maps a delivery to the address its channel sends to.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, d notifications.Delivery) (string, error)
}

type TargetResolverFunc func(ctx context.Context, d notifications.Delivery) (string, error)

func (f TargetResolverFunc) ResolveTarget(ctx context.Context, d notifications.Delivery) (string, error) {
	return f(ctx, d)
}

// Variable names consulted by VariablesTargetResolver.
const (
	VarPhone       = "phone"
	VarEmail       = "email"
	VarDeviceToken = "device_token"
	VarSubject     = "subject"
)

// VariablesTargetResolver reads the target from the send variables: phone
// for SMS, email for EMAIL and device_token for PUSH. IN_APP, and any
// channel whose variable is absent, targets the recipient id.
var VariablesTargetResolver TargetResolver = TargetResolverFunc(func(_ context.Context, d notifications.Delivery) (string, error) {
	var key string
	switch d.Channel {
	case notifications.ChannelSMS:
		key = VarPhone
	case notifications.ChannelEmail:
		key = VarEmail
	case notifications.ChannelPush:
		key = VarDeviceToken
	}
	if v := d.Variables[key]; key != "" && v != "" {
		return v, nil
	}
	if d.RecipientID == "" {
		return "", ErrNoTarget
	}
	return d.RecipientID, nil
})
