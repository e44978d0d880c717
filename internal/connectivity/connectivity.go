// Package connectivity gates network phases of the sync pipeline behind a
// bounded, jittered wait for the network to come up.
package connectivity

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
	"time"

	"winecellar/internal/logging"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 2000 * time.Millisecond
	defaultDialTimeout = 3 * time.Second
)

// Status is the outcome of Await.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Checker reports whether the network is currently usable.
type Checker interface {
	Connected(ctx context.Context) bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) bool

// Connected implements Checker.
func (f CheckerFunc) Connected(ctx context.Context) bool { return f(ctx) }

type waitConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	sleeper     func(context.Context, time.Duration) error
	random      func() float64
	logger      *slog.Logger
}

// Option customizes Await.
type Option func(*waitConfig)

// WithMaxAttempts overrides the number of checks (defaults to 5).
func WithMaxAttempts(n int) Option {
	return func(c *waitConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseBackoff overrides the first wait before jitter (defaults to 2s).
func WithBaseBackoff(d time.Duration) Option {
	return func(c *waitConfig) {
		if d > 0 {
			c.baseBackoff = d
		}
	}
}

// WithSleeper overrides how waits are performed (useful for tests). The
// sleeper must return a non-nil error when ctx is cancelled.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *waitConfig) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithRand overrides the uniform [0,1) source used for jitter.
func WithRand(random func() float64) Option {
	return func(c *waitConfig) {
		if random != nil {
			c.random = random
		}
	}
}

// WithLogger attaches a logger for per-attempt diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *waitConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Await polls checker until it reports connected or the attempt budget runs
// out. After each failed check except the last it sleeps base + rand[0, base)
// and doubles base. A cancelled wait returns Disconnected immediately.
func Await(ctx context.Context, checker Checker, opts ...Option) Status {
	cfg := waitConfig{
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: DefaultBaseBackoff,
		sleeper:     SleepWithContext,
		random:      rand.Float64,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if checker == nil {
		return Disconnected
	}

	base := cfg.baseBackoff
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Disconnected
		}
		if checker.Connected(ctx) {
			if attempt > 1 {
				cfg.logger.Info("network available", logging.Int("attempt", attempt))
			}
			return Connected
		}
		if attempt == cfg.maxAttempts {
			break
		}
		wait := base + time.Duration(cfg.random()*float64(base))
		cfg.logger.Debug("network unavailable; waiting",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", cfg.maxAttempts),
			logging.Duration("wait", wait),
		)
		if err := cfg.sleeper(ctx, wait); err != nil {
			return Disconnected
		}
		base *= 2
	}
	logging.WarnWithContext(cfg.logger, "network unavailable after retries", "connectivity_exhausted",
		logging.Int("attempts", cfg.maxAttempts),
		logging.String(logging.FieldErrorHint, "check the device network connection"),
		logging.String(logging.FieldImpact, "note stays local until the next sync"),
	)
	return Disconnected
}

// SleepWithContext waits for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DialChecker probes connectivity by opening a TCP connection to a host.
type DialChecker struct {
	Address string
	Timeout time.Duration
	Dialer  func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialChecker derives the probe address from a service base URL.
func NewDialChecker(baseURL string) (*DialChecker, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, err
	}
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "443"
		if parsed.Scheme == "http" {
			port = "80"
		}
	}
	return &DialChecker{Address: net.JoinHostPort(host, port), Timeout: defaultDialTimeout}, nil
}

// Connected implements Checker.
func (d *DialChecker) Connected(ctx context.Context) bool {
	if d == nil || d.Address == "" {
		return false
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := d.Dialer
	if dial == nil {
		var dialer net.Dialer
		dial = dialer.DialContext
	}
	conn, err := dial(dialCtx, "tcp", d.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
