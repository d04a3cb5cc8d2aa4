package outbound

import "errors"

var (
	ErrDeliveryFailed     = errors.New("outbound delivery failed")
	ErrPermanentFailure   = errors.New("permanent outbound failure")
	ErrTemporaryFailure   = errors.New("temporary outbound failure")
	ErrGatewayUnavailable = errors.New("outbound gateway unavailable: circuit open")
	ErrInvalidURL         = errors.New("invalid outbound URL")
	ErrInvalidPayload     = errors.New("invalid outbound payload")
	ErrInvalidConfig      = errors.New("invalid outbound configuration")
	ErrTimeout            = errors.New("outbound request timeout")
)

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}
