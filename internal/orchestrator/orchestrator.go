package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/governor"
	"github.com/ShayCichocki/delegate/internal/logging"
	"github.com/ShayCichocki/delegate/internal/mailbox"
	"github.com/ShayCichocki/delegate/internal/metrics"
	"github.com/ShayCichocki/delegate/internal/plan"
	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/internal/state"
	"github.com/ShayCichocki/delegate/internal/worker"
	"github.com/ShayCichocki/delegate/pkg/models"
)

const tracerName = "github.com/ShayCichocki/delegate/internal/orchestrator"

// DefaultQuestionNudge answers a worker's question when its task still has
// turns left.
const DefaultQuestionNudge = "No further input is available. Proceed with your best judgement, " +
	"state any assumption you make, and finish the task."

// Orchestrator is the single state object behind every delegation operation.
type Orchestrator struct {
	cfg Config

	plans    *plan.Store
	governor *governor.Governor
	mailbox  *mailbox.Mailbox
	registry *worker.Registry
	emitter  *events.Emitter

	store       state.StateStore
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *logging.DebugLogger
	projectRoot string
	nudge       string
	now         func() time.Time

	mu     sync.Mutex
	runs   map[string]*Run
	closed bool
}

// New builds an Orchestrator. When a store is configured, runs left running
// by an earlier process are marked interrupted first.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg = cfg.withDefaults()

	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.spawner == nil {
		o.spawner = session.Echo{}
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.nudge == "" {
		o.nudge = DefaultQuestionNudge
	}
	if o.now == nil {
		o.now = time.Now
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	if db, ok := o.store.(*state.DB); ok {
		interrupted, err := state.NewRecoveryManager(db).SettleAll()
		if err != nil {
			return nil, fmt.Errorf("recover interrupted runs: %w", err)
		}
		for _, r := range interrupted {
			log.Printf("[orchestrator] run %s of plan %s was interrupted (%d tasks running)", r.RunID, r.PlanID, len(r.RunningTasks))
		}
	}

	emitterOpts := []events.EmitterOption{
		events.WithDropHook(func(events.Event) { o.metrics.EventDropped() }),
	}
	for _, s := range o.sinks {
		emitterOpts = append(emitterOpts, events.WithSink(s))
	}
	emitter := events.NewEmitter(cfg.EventBuffer, emitterOpts...)

	gov := governor.New(cfg.MaxConcurrency, cfg.MaxDepth, governor.WithObserver(func(s governor.Stats) {
		o.metrics.ObserveResources(s.SlotsInUse, s.DepthTokens)
	}))
	mb := mailbox.New()

	planOpts := []plan.Option{
		plan.WithPublisher(emitter),
		plan.WithDebugLog(o.logger.Func()),
	}
	workerOpts := []worker.Option{
		worker.WithPublisher(emitter),
		worker.WithMetrics(o.metrics),
		worker.WithTracerProvider(tp),
		worker.WithDebugLog(o.logger.Func()),
	}
	if o.store != nil {
		planOpts = append(planOpts, plan.WithPersister(o.store))
		workerOpts = append(workerOpts, worker.WithStore(o.store))
	}

	orch := &Orchestrator{
		cfg:         cfg,
		plans:       plan.NewStore(cfg.MaxConcurrency, planOpts...),
		governor:    gov,
		mailbox:     mb,
		registry:    worker.NewRegistry(gov, mb, o.spawner, cfg.Parent, workerOpts...),
		emitter:     emitter,
		store:       o.store,
		metrics:     o.metrics,
		tracer:      tp.Tracer(tracerName),
		logger:      o.logger,
		projectRoot: o.projectRoot,
		nudge:       o.nudge,
		now:         o.now,
		runs:        make(map[string]*Run),
	}
	o.logger.Log("orchestrator ready: max_concurrency=%d max_depth=%d", cfg.MaxConcurrency, cfg.MaxDepth)
	return orch, nil
}

// SubmitPlan validates and stores a draft.
func (o *Orchestrator) SubmitPlan(draft models.PlanDraft) (*models.Plan, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	id, err := o.plans.Submit(draft)
	if err != nil {
		var verr *plan.ValidationError
		if errors.As(err, &verr) {
			o.metrics.PlanSubmitted(string(verr.Kind))
		} else {
			o.metrics.PlanSubmitted("error")
		}
		return nil, err
	}
	o.metrics.PlanSubmitted("ok")
	return o.plans.Get(id)
}

// GetPlan returns a stored plan.
func (o *Orchestrator) GetPlan(id string) (*models.Plan, error) {
	return o.plans.Get(id)
}

// ListPlans lists plans, newest first. With a store, plans from earlier
// processes are included.
func (o *Orchestrator) ListPlans() ([]models.PlanSummary, error) {
	if o.store != nil {
		return o.store.ListPlans(0)
	}
	return o.plans.List(), nil
}

// Registry returns the worker registry for ad hoc worker operations.
func (o *Orchestrator) Registry() *worker.Registry {
	return o.registry
}

// Governor returns the resource governor.
func (o *Orchestrator) Governor() *governor.Governor {
	return o.governor
}

// Events returns the channel of lifecycle events.
func (o *Orchestrator) Events() <-chan events.Event {
	return o.emitter.Events()
}

// DroppedEvents returns how many events the channel dropped.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.emitter.DroppedCount()
}

// Run returns a run started by this Orchestrator.
func (o *Orchestrator) Run(id string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}
	return r, nil
}

// RunSummary returns the summary of a finished or persisted run.
func (o *Orchestrator) RunSummary(id string) (*models.RunSummary, error) {
	o.mu.Lock()
	r, ok := o.runs[id]
	o.mu.Unlock()
	if ok {
		if s := r.Summary(); s != nil {
			return s, nil
		}
	}
	if o.store != nil {
		s, err := o.store.GetRun(id)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close aborts every active run, ends every live worker and closes the
// event channel. The store stays open.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	runs := make([]*Run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		r.Abort()
	}
	for _, r := range runs {
		if _, err := r.Wait(ctx); err != nil {
			log.Printf("[orchestrator] WARNING: run %s did not stop: %v", r.ID, err)
		}
	}

	err := o.registry.Close(ctx)
	o.emitter.Close()
	o.logger.Log("orchestrator closed")
	return err
}
