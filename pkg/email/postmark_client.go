package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Postmark API error codes that reject the recipient rather than the call.
// See https://postmarkapp.com/developer/api/overview#error-codes.
const (
	postmarkInvalidEmailRequest = 300
	postmarkInactiveRecipient   = 406
	postmarkInvalidToAddress    = 412
)

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// NewPostmarkClient creates a Postmark-backed sender. Only the server token
// is needed to send notifications.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if err := validateAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: SenderEmail: %v", ErrInvalidConfig, err)
	}
	if cfg.SupportEmail != "" {
		if err := validateAddress(cfg.SupportEmail); err != nil {
			return nil, fmt.Errorf("%w: SupportEmail: %v", ErrInvalidConfig, err)
		}
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:     c.config.SenderEmail,
		ReplyTo:  c.config.SupportEmail,
		To:       params.SendTo,
		Subject:  params.Subject,
		Tag:      params.Tag,
		HTMLBody: params.BodyHTML,
		TextBody: params.BodyText,
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return postmarkError(int64(resp.ErrorCode), resp.Message)
}

func postmarkError(code int64, msg string) error {
	if code == 0 {
		return nil
	}
	detail := fmt.Errorf("postmark error: %d - %s", code, msg)
	switch code {
	case postmarkInvalidEmailRequest, postmarkInactiveRecipient, postmarkInvalidToAddress:
		return errors.Join(ErrFailedToSendEmail, ErrRecipientRejected, detail)
	}
	return errors.Join(ErrFailedToSendEmail, detail)
}
