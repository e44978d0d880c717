package backoff

import (
	"math/rand/v2"
	"time"
)

// Controller hands out delays for one retried operation.
type Controller struct {
	policy Policy
	now    func() time.Time
	random func() float64
	start  time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock used for elapsed-time tracking.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRand overrides the uniform [0,1) source used for jitter.
func WithRand(random func() float64) Option {
	return func(c *Controller) {
		if random != nil {
			c.random = random
		}
	}
}

// New starts a controller for one operation. The elapsed-time accumulator
// begins at construction.
func New(policy Policy, opts ...Option) *Controller {
	c := &Controller{
		policy: policy,
		now:    time.Now,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.now()
	return c
}

// Policy returns the policy the controller applies.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Elapsed reports the wall-clock time since the controller was created.
func (c *Controller) Elapsed() time.Duration {
	return c.now().Sub(c.start)
}

// Next returns the randomized delay to wait before retrying after the given
// 1-based attempt failed. The boolean is false once waiting would carry the
// operation past MaxElapsedTime.
func (c *Controller) Next(attempt int) (time.Duration, bool) {
	delay := c.randomize(c.policy.Interval(attempt))
	if c.policy.MaxElapsedTime > 0 && c.Elapsed()+delay > c.policy.MaxElapsedTime {
		return 0, false
	}
	return delay, true
}

func (c *Controller) randomize(interval time.Duration) time.Duration {
	rf := c.policy.RandomizationFactor
	if rf <= 0 {
		return interval
	}
	delta := rf * float64(interval)
	low := float64(interval) - delta
	r := c.random()
	if r < 0 {
		r = 0
	}
	if r >= 1 {
		r = 0.999999
	}
	return time.Duration(low + r*(2*delta))
}
