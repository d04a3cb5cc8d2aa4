package email

import "time"

// Config selects and configures the mail transport. With Driver "auto" the
// first configured transport wins: Postmark, then SMTP, then the log-only
// sender.
type Config struct {
	Driver       string `env:"EMAIL_DRIVER" envDefault:"auto"`
	SenderEmail  string `env:"SENDER_EMAIL" envDefault:"no-reply@lifebank.local"`
	SupportEmail string `env:"SUPPORT_EMAIL"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`

	SMTPHost          string        `env:"SMTP_HOST"`
	SMTPPort          int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser          string        `env:"SMTP_USER"`
	SMTPPassword      string        `env:"SMTP_PASS"`
	SMTPSkipTLSVerify bool          `env:"SMTP_SKIP_TLS_VERIFY" envDefault:"false"`
	SMTPTimeout       time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`
}

const (
	DriverAuto     = "auto"
	DriverPostmark = "postmark"
	DriverSMTP     = "smtp"
	DriverLog      = "log"
)
