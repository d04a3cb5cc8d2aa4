package notifications

import (
	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/validator"
)

// DispatchTaskName names dispatch jobs on the queue.
const DispatchTaskName = "notifications.dispatch"

// DispatchJob is the queue payload for delivering one record.
type DispatchJob struct {
	NotificationID uuid.UUID         `json:"notificationId"`
	RecipientID    string            `json:"recipientId"`
	Channel        Channel           `json:"channel"`
	RenderedBody   string            `json:"renderedBody"`
	TemplateKey    string            `json:"templateKey"`
	Variables      map[string]string `json:"variables,omitempty"`
	Attempt        int               `json:"attempt"`
}

func NewDispatchJob(r Record) DispatchJob {
	return DispatchJob{
		NotificationID: r.ID,
		RecipientID:    r.RecipientID,
		Channel:        r.Channel,
		RenderedBody:   r.RenderedBody,
		TemplateKey:    r.TemplateKey,
		Variables:      r.Variables,
		Attempt:        1,
	}
}

func (j DispatchJob) Validate() error {
	return validator.Apply(
		validator.NonNilUUID("notificationId", j.NotificationID),
		validator.Required("recipientId", j.RecipientID),
		validator.InList("channel", j.Channel, Channels),
	)
}

// Delivery returns what a provider needs to send the job.
func (j DispatchJob) Delivery() Delivery {
	return Delivery{
		NotificationID: j.NotificationID,
		RecipientID:    j.RecipientID,
		Channel:        j.Channel,
		Body:           j.RenderedBody,
		TemplateKey:    j.TemplateKey,
		Variables:      j.Variables,
	}
}
