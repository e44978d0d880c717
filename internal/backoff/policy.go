package backoff

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultInitialInterval     = 1000 * time.Millisecond
	DefaultMaxInterval         = 10000 * time.Millisecond
	DefaultMultiplier          = 1.5
	DefaultRandomizationFactor = 0.5
	DefaultMaxElapsedTime      = 900000 * time.Millisecond
)

// Policy configures the truncated exponential curve.
type Policy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxElapsedTime      time.Duration
}

// DefaultPolicy returns the policy used by the HTTP request executor.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     DefaultInitialInterval,
		MaxInterval:         DefaultMaxInterval,
		Multiplier:          DefaultMultiplier,
		RandomizationFactor: DefaultRandomizationFactor,
		MaxElapsedTime:      DefaultMaxElapsedTime,
	}
}

// Validate reports whether the policy can produce a usable curve.
func (p Policy) Validate() error {
	if p.InitialInterval <= 0 {
		return errors.New("backoff: initial interval must be positive")
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("backoff: max interval %s is below initial interval %s", p.MaxInterval, p.InitialInterval)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("backoff: multiplier %.2f must be >= 1", p.Multiplier)
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor >= 1 {
		return fmt.Errorf("backoff: randomization factor %.2f must be in [0, 1)", p.RandomizationFactor)
	}
	if p.MaxElapsedTime <= 0 {
		return errors.New("backoff: max elapsed time must be positive")
	}
	return nil
}

// Interval returns the nominal (unrandomized) interval for a 1-based attempt.
func (p Policy) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	nominal := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if nominal >= float64(p.MaxInterval) || math.IsInf(nominal, 0) || math.IsNaN(nominal) {
		return p.MaxInterval
	}
	return time.Duration(nominal)
}

// Bounds returns the smallest and largest delay the randomization can
// produce for a 1-based attempt.
func (p Policy) Bounds(attempt int) (time.Duration, time.Duration) {
	interval := float64(p.Interval(attempt))
	delta := p.RandomizationFactor * interval
	return time.Duration(interval - delta), time.Duration(interval + delta)
}
