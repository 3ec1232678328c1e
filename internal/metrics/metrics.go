package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// Run holds the metrics of one run. Each run has its own registry, so several
// runs in one process never collide on registration.
//
// Metrics:
//   - autofix_findings_total{outcome} - findings by terminal outcome
//   - autofix_transitions_total{from,to} - fix loop state changes
//   - autofix_attempts_per_finding - recorded fix attempts per admitted finding
//   - autofix_provider_retries_total - provider calls retried after a ProviderError
//   - autofix_commits_total{result} - change-set commits by result
//   - autofix_run_duration_seconds - wall-clock duration of the run
type Run struct {
	registry *prometheus.Registry

	FindingsTotal        *prometheus.CounterVec
	TransitionsTotal     *prometheus.CounterVec
	AttemptsPerFinding   prometheus.Histogram
	ProviderRetriesTotal prometheus.Counter
	CommitsTotal         *prometheus.CounterVec
	RunDuration          prometheus.Gauge
}

// New creates the metrics of the run runID.
func New(runID string) *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"run_id": runID}, reg))

	return &Run{
		registry: reg,
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autofix_findings_total",
				Help: "Findings by terminal outcome",
			},
			[]string{"outcome"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autofix_transitions_total",
				Help: "Fix loop state transitions",
			},
			[]string{"from", "to"},
		),
		AttemptsPerFinding: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "autofix_attempts_per_finding",
				Help:    "Recorded fix attempts per admitted finding",
				Buckets: []float64{0, 1, 2, 3, 5, 8},
			},
		),
		ProviderRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "autofix_provider_retries_total",
				Help: "Provider calls retried after a provider error",
			},
		),
		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autofix_commits_total",
				Help: "Change-set commits by result",
			},
			[]string{"result"}, // "committed", "conflict", "error"
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "autofix_run_duration_seconds",
				Help: "Wall-clock duration of the run",
			},
		),
	}
}

// Transition records a state change. It matches the orchestrator's transition hook.
func (r *Run) Transition(from, to string) {
	if r == nil {
		return
	}
	r.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// Finding records the terminal outcome of one finding.
func (r *Run) Finding(outcome string, attempts int, retries int) {
	if r == nil {
		return
	}
	r.FindingsTotal.WithLabelValues(outcome).Inc()
	r.AttemptsPerFinding.Observe(float64(attempts))
	r.ProviderRetriesTotal.Add(float64(retries))
}

// Commit records the result of staging one fix.
func (r *Run) Commit(result string) {
	if r == nil {
		return
	}
	r.CommitsTotal.WithLabelValues(result).Inc()
}

// Finish records the run duration.
func (r *Run) Finish(d time.Duration) {
	if r == nil {
		return
	}
	r.RunDuration.Set(d.Seconds())
}

// Gatherer exposes the registry, e.g. for tests or an HTTP handler.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (r *Run) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	full, err := files.ExpandPath(path)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(full, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %q: %w", full, err)
	}
	return nil
}
