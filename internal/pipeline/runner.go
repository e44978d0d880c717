package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"winecellar/internal/logging"
)

// DefaultMaxConcurrent bounds how many notes sync at once.
const DefaultMaxConcurrent = 2

// Processor is the work a Runner schedules. *Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, c Capture) Result
	Resync(ctx context.Context, noteID int64) Result
	UploadMetadata(ctx context.Context, noteID int64) Result
}

// Hook observes every finished run exactly once.
type Hook func(Result)

// Task is a handle on a scheduled pipeline run.
type Task struct {
	done   chan struct{}
	result Result
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Done is closed once the run has finished and hooks have been called.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the run finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Task) complete(result Result) {
	t.result = result
	close(t.done)
}

// Runner schedules pipeline runs in the background.
type Runner struct {
	processor Processor
	sem       *semaphore.Weighted
	group     singleflight.Group
	hooks     []Hook
	logger    *slog.Logger
	metrics   *Metrics
	wg        sync.WaitGroup
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithHook registers a hook for finished runs.
func WithHook(hook Hook) RunnerOption {
	return func(r *Runner) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// WithRunnerLogger attaches a logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerMetrics tracks in-flight runs.
func WithRunnerMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner constructs a runner allowing maxConcurrent simultaneous runs.
func NewRunner(processor Processor, maxConcurrent int, opts ...RunnerOption) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	r := &Runner{
		processor: processor,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "runner")
	return r
}

// Submit schedules a new capture.
func (r *Runner) Submit(ctx context.Context, c Capture) *Task {
	return r.start(ctx, "", 0, func(ctx context.Context) Result {
		return r.processor.Process(ctx, c)
	})
}

// Resync schedules the network steps for a stored note. Concurrent resyncs of
// the same note share one run.
func (r *Runner) Resync(ctx context.Context, noteID int64) *Task {
	return r.start(ctx, "resync:"+strconv.FormatInt(noteID, 10), noteID, func(ctx context.Context) Result {
		return r.processor.Resync(ctx, noteID)
	})
}

// UploadMetadata schedules the metadata step for a stored note.
func (r *Runner) UploadMetadata(ctx context.Context, noteID int64) *Task {
	return r.start(ctx, "metadata:"+strconv.FormatInt(noteID, 10), noteID, func(ctx context.Context) Result {
		return r.processor.UploadMetadata(ctx, noteID)
	})
}

// Wait blocks until every scheduled run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) start(ctx context.Context, key string, noteID int64, fn func(context.Context) Result) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	task := newTask()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		task.complete(r.execute(ctx, key, noteID, fn))
	}()
	return task
}

func (r *Runner) execute(ctx context.Context, key string, noteID int64, fn func(context.Context) Result) Result {
	runOnce := func() Result {
		result := r.acquireAndRun(ctx, noteID, fn)
		for _, hook := range r.hooks {
			r.callHook(hook, result)
		}
		return result
	}
	if key == "" {
		return runOnce()
	}
	value, _, shared := r.group.Do(key, func() (any, error) {
		return runOnce(), nil
	})
	if shared {
		r.logger.Debug("joined in-flight run", logging.String("key", key))
	}
	return value.(Result)
}

func (r *Runner) acquireAndRun(ctx context.Context, noteID int64, fn func(context.Context) Result) (result Result) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{NoteID: noteID, State: StateFailed, Err: err}
	}
	defer r.sem.Release(1)

	r.metrics.trackInflight(1)
	defer r.metrics.trackInflight(-1)

	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(r.logger, "pipeline panic", "pipeline_panic",
				logging.Int64(logging.FieldNoteID, noteID),
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			result = Result{NoteID: noteID, State: StateFailed, Err: fmt.Errorf("pipeline panic: %v", rec)}
		}
	}()
	return fn(ctx)
}

func (r *Runner) callHook(hook Hook, result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("result hook panic", logging.Any("panic", rec))
		}
	}()
	hook(result)
}
