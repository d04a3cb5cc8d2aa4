package outbound

import (
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Non-positive fields take the values of
// DefaultBreakerConfig.
type BreakerConfig struct {
	// Failures is the run of consecutive gateway failures that opens the breaker.
	Failures int
	// Successes is the run of trial successes that closes a half-open breaker.
	Successes int
	// Cooldown is how long an open breaker turns calls away.
	Cooldown time.Duration
	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to BreakerState)
}

// DefaultBreakerConfig opens after five straight failures and tries the
// gateway again after 30s.
var DefaultBreakerConfig = BreakerConfig{Failures: 5, Successes: 2, Cooldown: 30 * time.Second}

// Breaker tracks the health of one gateway. While open it turns calls away
// with ErrGatewayUnavailable; after the cooldown it admits one trial call at
// a time until enough of them succeed. Safe for concurrent use.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	trial     bool
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Failures <= 0 {
		cfg.Failures = DefaultBreakerConfig.Failures
	}
	if cfg.Successes <= 0 {
		cfg.Successes = DefaultBreakerConfig.Successes
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig.Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Acquire admits a call or returns ErrGatewayUnavailable. Every admitted
// call must be followed by exactly one Done.
func (b *Breaker) Acquire() error {
	b.mu.Lock()
	from := b.state
	err := b.acquire()
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return err
}

func (b *Breaker) acquire() error {
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrGatewayUnavailable
		}
		b.state = BreakerHalfOpen
		b.successes = 0
		b.trial = true
		return nil
	case BreakerHalfOpen:
		if b.trial {
			return ErrGatewayUnavailable
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

// Done reports whether an admitted call found the gateway healthy.
func (b *Breaker) Done(healthy bool) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case BreakerClosed:
		if healthy {
			b.failures = 0
		} else if b.failures++; b.failures >= b.cfg.Failures {
			b.open()
		}
	case BreakerHalfOpen:
		b.trial = false
		if !healthy {
			b.open()
		} else if b.successes++; b.successes >= b.cfg.Successes {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	case BreakerOpen:
		// late result of a call admitted before the breaker opened
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.successes = 0
	b.trial = false
}

func (b *Breaker) notify(from, to BreakerState) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// State reports the current state. An open breaker past its cooldown still
// reads as open until the next Acquire.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
