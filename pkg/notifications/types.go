package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifebank/notifykit/pkg/validator"
)

type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelSMS, ChannelEmail, ChannelPush, ChannelInApp}

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusRead    Status = "READ"
)

// Template is a channel-scoped message body. (Key, Channel) is unique.
type Template struct {
	ID        uuid.UUID `json:"id" yaml:"-"`
	Key       string    `json:"key" yaml:"key"`
	Channel   Channel   `json:"channel" yaml:"channel"`
	Body      string    `json:"body" yaml:"body"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Record is the persisted log of one notification on one channel.
// RenderedBody and Variables never change after creation.
type Record struct {
	ID           uuid.UUID         `json:"id"`
	RecipientID  string            `json:"recipientId"`
	Channel      Channel           `json:"channel"`
	TemplateKey  string            `json:"templateKey"`
	Variables    map[string]string `json:"variables"`
	RenderedBody string            `json:"renderedBody"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Filter narrows record queries. Zero value matches every record.
type Filter struct {
	RecipientID string
}

func (f Filter) Match(r Record) bool {
	return f.RecipientID == "" || f.RecipientID == r.RecipientID
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

type Meta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func NewMeta(total, page, limit int) Meta {
	return Meta{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

// Offset returns the number of items skipped before the page.
func (m Meta) Offset() int {
	return (m.Page - 1) * m.Limit
}

type Page[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// NormalizePage applies the defaults to zero values and rejects negatives.
func NormalizePage(page, limit int) (int, int, error) {
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if err := validator.Apply(
		validator.MinNum("page", page, 1),
		validator.MinNum("limit", limit, 1),
	); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}
