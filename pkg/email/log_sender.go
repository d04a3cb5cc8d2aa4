package email

import (
	"context"
	"log/slog"

	"github.com/lifebank/notifykit/pkg/logger"
)

// LogSender only logs the email it would send. Used when no transport is
// configured. It never fails: params a real transport would reject are
// logged with the problem attached.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log.With(logger.Component("email.log_sender"))}
}

func (s *LogSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	attrs := []any{
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag),
		slog.Int("body_bytes", len(params.BodyHTML)+len(params.BodyText)),
	}
	if err := params.Validate(); err != nil {
		attrs = append(attrs, slog.String("invalid", err.Error()))
	}
	s.log.InfoContext(ctx, "email dry run", attrs...)
	return nil
}
