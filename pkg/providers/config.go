package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/lifebank/notifykit/pkg/outbound"
)

// Config holds settings shared by every channel.
type Config struct {
	DefaultSubject string        `env:"NOTIFY_EMAIL_SUBJECT" envDefault:"LifeBank notification"`
	SendTimeout    time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"15s"`

	// Per-channel sends per second; zero disables the limit.
	SMSRateLimit   float64 `env:"SMS_RATE_LIMIT" envDefault:"0"`
	EmailRateLimit float64 `env:"EMAIL_RATE_LIMIT" envDefault:"0"`
	PushRateLimit  float64 `env:"PUSH_RATE_LIMIT" envDefault:"0"`
}

// SMSConfig configures the carrier gateway. An empty GatewayURL puts the
// provider in dry-run mode.
type SMSConfig struct {
	GatewayURL string        `env:"SMS_GATEWAY_URL"`
	APIKey     string        `env:"SMS_API_KEY"`
	SenderID   string        `env:"SMS_SENDER_ID" envDefault:"LifeBank"`
	Timeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
}

// PushConfig configures the push service. An empty GatewayURL puts the
// provider in dry-run mode.
type PushConfig struct {
	GatewayURL    string        `env:"PUSH_GATEWAY_URL"`
	APIKey        string        `env:"PUSH_API_KEY"`
	SigningSecret string        `env:"PUSH_SIGNING_SECRET"`
	Timeout       time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
}

// gatewayBreaker guards one provider gateway and logs its state changes.
func gatewayBreaker(log *slog.Logger) *outbound.Breaker {
	cfg := outbound.DefaultBreakerConfig
	cfg.OnStateChange = func(from, to outbound.BreakerState) {
		level := slog.LevelInfo
		if to == outbound.BreakerOpen {
			level = slog.LevelWarn
		}
		log.Log(context.Background(), level, "gateway breaker "+to.String(),
			slog.String("from", from.String()))
	}
	return outbound.NewBreaker(cfg)
}
