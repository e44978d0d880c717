package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"winecellar/internal/config"
	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/notifications"
	"winecellar/internal/pipeline"
)

// ErrResyncRunning is returned when a resync pass is already underway.
var ErrResyncRunning = errors.New("resync already running")

// PendingLister lists notes that still need syncing.
type PendingLister interface {
	Pending(ctx context.Context) ([]*notes.Note, error)
}

// Resyncer schedules a resync of a stored note. *pipeline.Runner satisfies it.
type Resyncer interface {
	Resync(ctx context.Context, noteID int64) *pipeline.Task
}

// Daemon coordinates scheduled resyncs and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    PendingLister
	runner   Resyncer
	notifier notifications.Service
	gatherer prometheus.Gatherer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	scheduler *cron.Cron
	entry     cron.EntryID
	server    *http.Server
	listener  net.Listener
	passes    sync.WaitGroup

	running   atomic.Bool
	resyncing atomic.Bool
	lastPass  atomic.Pointer[ResyncSummary]
	ctx       context.Context
	cancel    context.CancelFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier sets the service told about completed resync passes.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithGatherer sets the registry served on the metrics endpoint.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(d *Daemon) {
		if g != nil {
			d.gatherer = g
		}
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Resyncing    bool
	LockFilePath string
	DatabasePath string
	Schedule     string
	NextResync   time.Time
	MetricsAddr  string
	LastResync   *ResyncSummary
}

// ResyncSummary describes one resync pass.
type ResyncSummary struct {
	Started  time.Time
	Duration time.Duration
	Pending  int
	Synced   int
	Failed   int
	Skipped  int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store PendingLister, runner Resyncer, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || runner == nil {
		return nil, errors.New("daemon requires config, store, and runner")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		runner:   runner,
		notifier: notifications.NewService(cfg),
		gatherer: prometheus.DefaultGatherer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, schedules resync passes, and starts the
// metrics endpoint when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another winecellar daemon instance is already running")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.startScheduler(); err != nil {
		d.abortStart()
		return err
	}
	if err := d.startMetricsServer(); err != nil {
		if d.scheduler != nil {
			d.scheduler.Stop()
			d.scheduler = nil
		}
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("winecellar daemon started",
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.cfg.Daemon.ResyncSchedule),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

func (d *Daemon) startScheduler() error {
	schedule := strings.TrimSpace(d.cfg.Daemon.ResyncSchedule)
	if schedule == "" {
		return nil
	}
	loc, err := d.cfg.Location()
	if err != nil {
		return err
	}
	scheduler := cron.New(
		cron.WithParser(ScheduleParser()),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger: d.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: d.logger}), cron.SkipIfStillRunning(cronLogger{logger: d.logger})),
	)
	runCtx := d.ctx
	entry, err := scheduler.AddFunc(schedule, func() {
		if _, err := d.ResyncAll(runCtx); err != nil && !errors.Is(err, ErrResyncRunning) && runCtx.Err() == nil {
			logging.WarnWithContext(d.logger, "scheduled resync failed", "resync_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "unsynced notes stay pending until the next pass"),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("daemon.resync_schedule %q: %w", schedule, err)
	}
	scheduler.Start()
	d.scheduler = scheduler
	d.entry = entry
	return nil
}

func (d *Daemon) startMetricsServer() error {
	bind := strings.TrimSpace(d.cfg.Daemon.MetricsBind)
	if bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", bind, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.server = server
	d.listener = listener
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server stopped", logging.Error(err))
		}
	}()
	d.logger.Info("metrics endpoint listening", logging.String("addr", listener.Addr().String()))
	return nil
}

// Stop halts scheduling, waits for an in-flight resync pass, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
		d.scheduler = nil
	}
	d.passes.Wait()
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("metrics server shutdown failed", logging.Error(err))
		}
		cancel()
		d.server = nil
		d.listener = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("winecellar daemon stopped")
}

// ResyncAll replays every unsynced note through the runner and waits for the
// pass to finish. Only one pass runs at a time.
func (d *Daemon) ResyncAll(ctx context.Context) (ResyncSummary, error) {
	if !d.resyncing.CompareAndSwap(false, true) {
		return ResyncSummary{}, ErrResyncRunning
	}
	defer d.resyncing.Store(false)
	d.passes.Add(1)
	defer d.passes.Done()

	summary := ResyncSummary{Started: time.Now()}
	pending, err := d.store.Pending(ctx)
	if err != nil {
		return summary, fmt.Errorf("list pending notes: %w", err)
	}
	summary.Pending = len(pending)
	if len(pending) == 0 {
		d.logger.Debug("resync pass found nothing to do")
		summary.Duration = time.Since(summary.Started)
		d.lastPass.Store(&summary)
		return summary, nil
	}

	d.logger.Info("resync pass started", logging.Int("pending", len(pending)))
	tasks := make([]*pipeline.Task, 0, len(pending))
	for _, note := range pending {
		tasks = append(tasks, d.runner.Resync(ctx, note.ID))
	}
	for _, task := range tasks {
		result, err := task.Wait(ctx)
		if err != nil {
			return summary, err
		}
		switch {
		case result.Synced():
			summary.Synced++
		case result.Skipped():
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	summary.Duration = time.Since(summary.Started)
	d.lastPass.Store(&summary)

	d.logger.Info("resync pass finished",
		logging.Int("synced", summary.Synced),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("duration", summary.Duration),
	)
	if err := d.notifier.NotifyResyncCompleted(ctx, summary.Synced, summary.Failed, summary.Duration); err != nil {
		d.logger.Warn("resync notification failed", logging.Error(err))
	}
	return summary, nil
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (d *Daemon) MetricsAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Resyncing:    d.resyncing.Load(),
		LockFilePath: d.lockPath,
		DatabasePath: d.cfg.DatabasePath(),
		Schedule:     d.cfg.Daemon.ResyncSchedule,
		LastResync:   d.lastPass.Load(),
	}
	d.mu.Lock()
	if d.scheduler != nil {
		status.NextResync = d.scheduler.Entry(d.entry).Next
	}
	if d.listener != nil {
		status.MetricsAddr = d.listener.Addr().String()
	}
	d.mu.Unlock()
	return status
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}
