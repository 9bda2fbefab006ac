package orchestrator

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ShayCichocki/delegate/internal/config"
	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/logging"
	"github.com/ShayCichocki/delegate/internal/metrics"
	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/internal/state"
	"github.com/ShayCichocki/delegate/internal/worker"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// Config holds the limits and parent description an Orchestrator is built
// with. Unset limits fall back to the config package defaults; MaxDepth
// counts as unset only when negative.
type Config struct {
	// MaxConcurrency is the global cap on live workers.
	MaxConcurrency int
	// MaxDepth is the nesting ceiling; 1 allows children but no grandchildren
	// and 0 forbids children entirely.
	MaxDepth int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
	// PersistWorkers stores the snapshot of every worker the executor ends.
	PersistWorkers bool
	// PollInterval is the kill-signal polling interval used when file
	// notifications are unavailable.
	PollInterval time.Duration
	// Parent is the conversation children derive their config from.
	Parent worker.Parent
}

// ConfigFrom maps a loaded configuration onto orchestrator settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxConcurrency: cfg.Orchestrator.MaxConcurrency,
		MaxDepth:       cfg.Orchestrator.MaxDepth,
		EventBuffer:    cfg.Orchestrator.EventBuffer,
		PersistWorkers: cfg.Orchestrator.PersistWorkers,
		PollInterval:   cfg.Orchestrator.PollInterval,
		Parent: worker.Parent{
			ID:               "root",
			Instructions:     cfg.Parent.Instructions,
			Model:            cfg.Parent.Model,
			WorkingDirectory: cfg.Parent.WorkingDirectory,
			Sandbox:          models.SandboxPolicy(cfg.Parent.Sandbox),
		},
	}
}

func (c Config) withDefaults() Config {
	d := config.Default()
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = d.Orchestrator.MaxConcurrency
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = d.Orchestrator.MaxDepth
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.Orchestrator.EventBuffer
	}
	if c.Parent.ID == "" {
		c.Parent.ID = "root"
	}
	return c
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	spawner        session.Spawner
	store          state.StateStore
	sinks          []events.Sink
	metrics        *metrics.Metrics
	tracerProvider trace.TracerProvider
	logger         *logging.DebugLogger
	projectRoot    string
	nudge          string
	now            func() time.Time
}

// WithSpawner sets the backend that starts child conversations.
// Without one, the offline echo backend is used.
func WithSpawner(s session.Spawner) Option {
	return func(o *orchestratorOptions) { o.spawner = s }
}

// WithStore persists plans, runs and ended workers. The caller keeps
// ownership and closes it after the Orchestrator.
func WithStore(s state.StateStore) Option {
	return func(o *orchestratorOptions) { o.store = s }
}

// WithSink adds a synchronous event sink.
func WithSink(s events.Sink) Option {
	return func(o *orchestratorOptions) { o.sinks = append(o.sinks, s) }
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithTracerProvider sets the provider for run, task and turn spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *orchestratorOptions) { o.tracerProvider = tp }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithProjectRoot enables the kill-signal watcher under
// <root>/.delegate/signals for every run.
func WithProjectRoot(root string) Option {
	return func(o *orchestratorOptions) { o.projectRoot = root }
}

// WithQuestionNudge replaces the message sent when a task's worker asks a
// question and turns remain.
func WithQuestionNudge(msg string) Option {
	return func(o *orchestratorOptions) { o.nudge = msg }
}
