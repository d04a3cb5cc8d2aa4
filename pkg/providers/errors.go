package providers

import "errors"

var (
	ErrProviderFailed    = errors.New("provider failed to send notification")
	ErrNoProvider        = errors.New("no provider registered for channel")
	ErrDuplicateProvider = errors.New("provider already registered for channel")
	ErrNoTarget          = errors.New("no delivery target for recipient")
	ErrInvalidConfig     = errors.New("invalid provider configuration")
)
