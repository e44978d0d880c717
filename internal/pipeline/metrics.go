package pipeline

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"winecellar/internal/transport"
)

// Metrics exposes pipeline activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	results       *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	httpAttempts  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	inflight      prometheus.Gauge
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winecellar",
			Name:      "sync_results_total",
			Help:      "Completed pipeline runs by final state and failed stage.",
		}, []string{"state", "failed_stage"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "winecellar",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"state"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "winecellar",
			Name:      "stage_duration_seconds",
			Help:      "Time spent reaching each pipeline state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2.5, 12),
		}, []string{"state"}),
		httpAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "winecellar",
			Name:      "http_attempts_total",
			Help:      "HTTP round trips by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "winecellar",
			Name:      "http_attempt_duration_seconds",
			Help:      "Latency of individual HTTP round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "winecellar",
			Name:      "sync_inflight",
			Help:      "Pipeline runs currently holding a concurrency slot.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.results, m.runDuration, m.stageDuration, m.httpAttempts, m.httpDuration, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStage records the time taken to reach state.
func (m *Metrics) ObserveStage(state State, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

// ObserveResult records a finished run.
func (m *Metrics) ObserveResult(r Result) {
	if m == nil {
		return
	}
	state := string(r.State)
	if r.Skipped() {
		state = "skipped"
	}
	m.results.WithLabelValues(state, string(r.FailedStage)).Inc()
	m.runDuration.WithLabelValues(state).Observe(r.Duration.Seconds())
}

// ObserveHTTP records one round trip. It matches transport.Observer.
func (m *Metrics) ObserveHTTP(a transport.Attempt) {
	if m == nil {
		return
	}
	status := "error"
	if a.StatusCode > 0 {
		status = strconv.Itoa(a.StatusCode)
	}
	m.httpAttempts.WithLabelValues(a.Method, status).Inc()
	m.httpDuration.WithLabelValues(a.Method).Observe(a.Duration.Seconds())
}

func (m *Metrics) trackInflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
