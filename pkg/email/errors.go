package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email config")
	ErrInvalidParams     = errors.New("invalid email params")

	// ErrRecipientRejected means the transport refused the recipient for
	// good, e.g. an inactive or malformed address. Retrying cannot help.
	ErrRecipientRejected = errors.New("email recipient rejected")
)
