package worker

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/metrics"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// Store keeps snapshots of ended workers that asked to be persisted.
type Store interface {
	SaveWorker(w models.Worker, history []models.Notification) error
	// GetWorker returns nil, nil, nil when the worker was never persisted.
	GetWorker(id string) (*models.Worker, []models.Notification, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sets where lifecycle events go.
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.events = p
		}
	}
}

// WithStore enables persist-on-end and History.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithMetrics records worker metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracerProvider sets the provider for turn spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(r *Registry) {
		if fn != nil {
			r.debugLog = fn
		}
	}
}

const tracerName = "github.com/ShayCichocki/delegate/internal/worker"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
