package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/juju/ratelimit"

	"winecellar/internal/backoff"
	"winecellar/internal/connectivity"
	"winecellar/internal/logging"
	"winecellar/internal/services"
)

const (
	DefaultTimeout               = 60 * time.Second
	DefaultResponseHeaderTimeout = 45 * time.Second
	DefaultUserAgent             = "winecellar/1.0"
)

// ErrMalformedResponse marks 2xx responses whose body could not be decoded.
var ErrMalformedResponse = errors.New("malformed response body")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	// Exhausted is set when the status was retryable but the backoff budget ran out.
	Exhausted bool
	Attempts  int
}

func (e *StatusError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s %s: status %d after %d attempts", e.Method, e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Unwrap lets errors.Is classify the failure.
func (e *StatusError) Unwrap() error {
	if e.Exhausted {
		return services.ErrRetriesExhausted
	}
	return services.ErrExternalTool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Attempt describes one round trip for observers.
type Attempt struct {
	Method     string
	URL        string
	Number     int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Observer receives every round trip the executor performs.
type Observer func(Attempt)

// Executor sends requests, retrying HTTP 503 with exponential backoff.
type Executor struct {
	client    *http.Client
	policy    backoff.Policy
	sleeper   func(context.Context, time.Duration) error
	clock     func() time.Time
	random    func() float64
	logger    *slog.Logger
	userAgent string
	rateKBps  int
	observers []Observer
}

// Option customizes an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithPolicy overrides the 503 backoff policy.
func WithPolicy(policy backoff.Policy) Option {
	return func(e *Executor) {
		e.policy = policy
	}
}

// WithSleeper overrides how retry delays are waited out.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if sleeper != nil {
			e.sleeper = sleeper
		}
	}
}

// WithClock overrides the clock handed to each backoff controller.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.clock = now
		}
	}
}

// WithRand overrides the jitter source handed to each backoff controller.
func WithRand(random func() float64) Option {
	return func(e *Executor) {
		if random != nil {
			e.random = random
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(agent string) Option {
	return func(e *Executor) {
		if agent != "" {
			e.userAgent = agent
		}
	}
}

// WithUploadRate throttles upload bodies to kbps kilobytes per second. Zero
// disables throttling.
func WithUploadRate(kbps int) Option {
	return func(e *Executor) {
		if kbps >= 0 {
			e.rateKBps = kbps
		}
	}
}

// WithObserver registers a callback invoked after every round trip.
func WithObserver(observer Observer) Option {
	return func(e *Executor) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

// NewExecutor constructs an executor with sensible defaults.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		client:    NewHTTPClient(DefaultTimeout, DefaultResponseHeaderTimeout),
		policy:    backoff.DefaultPolicy(),
		sleeper:   connectivity.SleepWithContext,
		clock:     time.Now,
		logger:    logging.NewNop(),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewHTTPClient returns a client with an overall timeout and a separate
// socket-level response header timeout.
func NewHTTPClient(timeout, headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if headerTimeout > 0 {
		transport.ResponseHeaderTimeout = headerTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Do sends req and returns the fully read response. HTTP 503 responses are
// retried until the backoff controller gives up; everything else returns
// after a single attempt.
func (e *Executor) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, services.Wrap(services.ErrValidation, "", "http request", "nil request", nil)
	}
	logger := logging.WithContext(ctx, e.logger)
	controllerOpts := []backoff.Option{backoff.WithClock(e.clock)}
	if e.random != nil {
		controllerOpts = append(controllerOpts, backoff.WithRand(e.random))
	}
	controller := backoff.New(e.policy, controllerOpts...)

	for attempt := 1; ; attempt++ {
		resp, err := e.roundTrip(ctx, req, attempt)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp.Attempts = attempt
			return resp, nil
		}

		statusErr := &StatusError{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Attempts:   attempt,
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			return nil, statusErr
		}

		delay, ok := controller.Next(attempt)
		if !ok {
			statusErr.Exhausted = true
			logger.Warn("service unavailable; retries exhausted",
				logging.String(logging.FieldEventType, "http_retries_exhausted"),
				logging.String("url", req.URL),
				logging.Int("attempts", attempt),
				logging.Duration("elapsed", controller.Elapsed()),
				logging.String(logging.FieldErrorHint, "the content service stayed unavailable; resync later"),
			)
			return nil, statusErr
		}
		logger.Info("service unavailable; retrying",
			logging.String(logging.FieldEventType, "http_retry"),
			logging.String("url", req.URL),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
		)
		if err := e.sleeper(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (e *Executor) roundTrip(ctx context.Context, req *Request, attempt int) (*Response, error) {
	started := time.Now()
	resp, err := e.send(ctx, req)
	record := Attempt{
		Method:   req.Method,
		URL:      req.URL,
		Number:   attempt,
		Duration: time.Since(started),
		Err:      err,
	}
	if resp != nil {
		record.StatusCode = resp.StatusCode
	}
	for _, observe := range e.observers {
		observe(record)
	}
	return resp, err
}

func (e *Executor) send(ctx context.Context, req *Request) (*Response, error) {
	var (
		body        io.ReadCloser
		contentType string
	)
	if req.body != nil {
		var err error
		body, contentType, err = req.body()
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "", "build request body", req.URL, err)
		}
		defer body.Close()
	}

	var reader io.Reader
	if body != nil {
		reader = body
		if req.Upload && e.rateKBps > 0 {
			rate := float64(e.rateKBps) * 1024
			bucket := ratelimit.NewBucketWithRate(rate, int64(rate))
			reader = ratelimit.Reader(body, bucket)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "build request", req.URL, err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if e.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "", "read response", req.URL, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}
