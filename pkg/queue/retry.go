package queue

import (
	"fmt"
	"time"
)

// Backoff names how the delay between attempts grows.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy travels with every task. The delay after a failed attempt n
// (1-based) is BaseDelayMs for fixed, BaseDelayMs*n for linear and
// BaseDelayMs*2^(n-1) for exponential, capped at MaxDelayMs when set.
type RetryPolicy struct {
	MaxAttempts int     `json:"max_attempts"`
	Backoff     Backoff `json:"backoff"`
	BaseDelayMs int64   `json:"base_delay_ms"`
	MaxDelayMs  int64   `json:"max_delay_ms,omitempty"`
}

// DefaultRetryPolicy: 5 attempts, exponential from 2s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	Backoff:     BackoffExponential,
	BaseDelayMs: 2000,
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidRetryPolicy)
	}
	if p.BaseDelayMs < 0 || p.MaxDelayMs < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidRetryPolicy)
	}
	switch p.Backoff {
	case BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("%w: unknown backoff %q", ErrInvalidRetryPolicy, p.Backoff)
	}
	return nil
}

// Delay returns the wait before the attempt following failed attempt n.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	base := time.Duration(p.BaseDelayMs) * time.Millisecond

	var d time.Duration
	switch p.Backoff {
	case BackoffLinear:
		d = base * time.Duration(attempt)
	case BackoffExponential:
		// bounded shift keeps the product inside int64
		d = base << min(attempt-1, 30)
	default:
		d = base
	}

	if p.MaxDelayMs > 0 {
		d = min(d, time.Duration(p.MaxDelayMs)*time.Millisecond)
	}
	return d
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}
