// Package retry computes backoff delays for retried operations.
package retry

import (
	"time"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

// Mode selects how delays grow between attempts.
type Mode string

const (
	Fixed       Mode = "fixed"
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// Policy is immutable after construction.
type Policy struct {
	Mode       Mode
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // attempts after the first failure
}

// DefaultPolicy is exponential from 1s, capped at 30s, three retries.
func DefaultPolicy() Policy {
	return Policy{Mode: Exponential, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 3}
}

// NewPolicy fills zero or invalid values from DefaultPolicy. A negative
// maxRetries keeps the default; zero disables retries.
func NewPolicy(mode Mode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case Fixed, Linear, Exponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the wait before retry number n (1-based). It is zero for
// n <= 0.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case Fixed:
		return p.Initial
	case Exponential:
		if n > 30 {
			return p.Max
		}
		d = p.Initial << (n - 1)
	default:
		d = time.Duration(n) * p.Initial
	}
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Allows reports whether retry number n is within the budget.
func (p Policy) Allows(n int) bool {
	return n >= 1 && n <= p.MaxRetries
}

func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return ferrors.ValidationError("retry initial delay must be > 0").Build()
	}
	if p.Max <= 0 {
		return ferrors.ValidationError("retry max delay must be > 0").Build()
	}
	if p.MaxRetries < 0 {
		return ferrors.ValidationError("retry count cannot be negative").Build()
	}
	return nil
}
