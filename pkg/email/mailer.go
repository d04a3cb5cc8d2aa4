package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
)

type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html,omitempty"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

func (p SendEmailParams) Validate() error {
	if err := validateAddress(p.SendTo); err != nil {
		return fmt.Errorf("%w: send_to: %v", ErrInvalidParams, err)
	}
	if p.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	}
	if p.BodyHTML == "" && p.BodyText == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

func validateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is empty")
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return err
	}
	return nil
}

// New builds the sender selected by cfg.Driver.
func New(cfg Config, log *slog.Logger) (EmailSender, error) {
	switch cfg.Driver {
	case DriverPostmark:
		return NewPostmarkClient(cfg)
	case DriverSMTP:
		return NewSMTPClient(cfg)
	case DriverLog:
		return NewLogSender(log), nil
	case DriverAuto, "":
		switch {
		case cfg.PostmarkServerToken != "":
			return NewPostmarkClient(cfg)
		case cfg.SMTPHost != "":
			return NewSMTPClient(cfg)
		default:
			return NewLogSender(log), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
}
