// Package metrics exposes Prometheus collectors for the orchestration core.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for delegate.
type Metrics struct {
	// Resource governor
	SlotsInUse  prometheus.Gauge
	DepthTokens prometheus.Gauge

	// Worker lifecycle
	WorkersActive prometheus.Gauge
	WorkerOpens   *prometheus.CounterVec
	WorkerTurns   *prometheus.CounterVec
	TurnDuration  *prometheus.HistogramVec
	WorkerEnds    *prometheus.CounterVec

	// Plans and runs
	PlanSubmissions *prometheus.CounterVec
	TaskOutcomes    *prometheus.CounterVec
	Runs            *prometheus.CounterVec

	// Events
	EventsDropped prometheus.Counter

	// Model usage
	Tokens *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SlotsInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "delegate_concurrency_slots_in_use",
			Help: "Concurrency slots currently held by workers",
		}),
		DepthTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "delegate_depth_tokens_outstanding",
			Help: "Depth tokens currently held by workers",
		}),
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "delegate_workers_live",
			Help: "Workers registered and not yet ended",
		}),
		WorkerOpens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_worker_opens_total",
			Help: "Worker open attempts by result",
		}, []string{"result"}),
		WorkerTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_worker_turns_total",
			Help: "Completed worker turns by mode and reply kind",
		}, []string{"mode", "kind"}),
		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delegate_worker_turn_duration_seconds",
			Help:    "Wall-clock duration of worker turns",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"mode"}),
		WorkerEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_worker_ends_total",
			Help: "Workers ended by final state",
		}, []string{"state"}),
		PlanSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_plan_submissions_total",
			Help: "Plan submissions by result",
		}, []string{"result"}),
		TaskOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_task_outcomes_total",
			Help: "Plan tasks by terminal state",
		}, []string{"state"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_runs_total",
			Help: "Plan runs by final status",
		}, []string{"status"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "delegate_events_dropped_total",
			Help: "Events dropped because the event channel was full",
		}),
		Tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delegate_model_tokens_total",
			Help: "Model tokens consumed by workers, by direction",
		}, []string{"direction"}),
	}
}

// ObserveResources records governor usage.
func (m *Metrics) ObserveResources(slots, depthTokens int) {
	if m == nil {
		return
	}
	m.SlotsInUse.Set(float64(slots))
	m.DepthTokens.Set(float64(depthTokens))
}

// WorkerOpened records an open attempt. result is "ok" or an error class.
func (m *Metrics) WorkerOpened(result string) {
	if m == nil {
		return
	}
	m.WorkerOpens.WithLabelValues(result).Inc()
	if result == "ok" {
		m.WorkersActive.Inc()
	}
}

// WorkerEnded records a teardown.
func (m *Metrics) WorkerEnded(state string) {
	if m == nil {
		return
	}
	m.WorkersActive.Dec()
	m.WorkerEnds.WithLabelValues(state).Inc()
}

// TurnCompleted records one finished turn.
func (m *Metrics) TurnCompleted(mode, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.WorkerTurns.WithLabelValues(mode, kind).Inc()
	m.TurnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// PlanSubmitted records a submission result: "accepted" or a validation kind.
func (m *Metrics) PlanSubmitted(result string) {
	if m == nil {
		return
	}
	m.PlanSubmissions.WithLabelValues(result).Inc()
}

// TaskFinished records a task's terminal state.
func (m *Metrics) TaskFinished(state string) {
	if m == nil {
		return
	}
	m.TaskOutcomes.WithLabelValues(state).Inc()
}

// RunFinished records a run's final status.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}

// EventDropped records a dropped event.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// TokensUsed records the token counts of one model response.
func (m *Metrics) TokensUsed(input, output int64) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues("input").Add(float64(input))
	m.Tokens.WithLabelValues("output").Add(float64(output))
}
