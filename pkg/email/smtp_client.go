package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/go-mail/mail/v2"
)

type smtpClient struct {
	dialer *mail.Dialer
	config Config
}

// NewSMTPClient creates a sender that delivers over SMTP with mandatory
// STARTTLS.
func NewSMTPClient(cfg Config) (EmailSender, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("%w: SMTPHost is required", ErrInvalidConfig)
	}
	if err := validateAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: SenderEmail: %v", ErrInvalidConfig, err)
	}

	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.SMTPSkipTLSVerify, //nolint:gosec // opt-in for local relays
	}
	if cfg.SMTPTimeout > 0 {
		d.Timeout = cfg.SMTPTimeout
	}

	return &smtpClient{dialer: d, config: cfg}, nil
}

func (c *smtpClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	m := newMessage(c.config, params)
	if err := c.dialer.DialAndSend(m); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

func newMessage(cfg Config, params SendEmailParams) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", cfg.SenderEmail)
	m.SetHeader("To", params.SendTo)
	m.SetHeader("Subject", params.Subject)
	if cfg.SupportEmail != "" {
		m.SetHeader("Reply-To", cfg.SupportEmail)
	}
	switch {
	case params.BodyText != "" && params.BodyHTML != "":
		m.SetBody("text/plain", params.BodyText)
		m.AddAlternative("text/html", params.BodyHTML)
	case params.BodyHTML != "":
		m.SetBody("text/html", params.BodyHTML)
	default:
		m.SetBody("text/plain", params.BodyText)
	}
	return m
}
