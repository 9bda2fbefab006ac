package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// ExecuteOptions controls one Execute call.
type ExecuteOptions struct {
	// Concurrency overrides the plan's cap for this run. Zero keeps the
	// plan's cap; values above the global cap are clamped.
	Concurrency int
	// Confirm must be true to spawn workers. Otherwise Execute returns the
	// plan for review.
	Confirm bool
}

// ExecuteResult is either a preview (Confirm was false) or a started run.
type ExecuteResult struct {
	Preview *models.Plan
	Run     *Run
}

// Run is a single execution of a plan.
type Run struct {
	ID     string
	PlanID string
	// Concurrency is the effective per-run cap.
	Concurrency int

	progress chan models.ProgressEvent
	done     chan struct{}
	cancel   context.CancelFunc

	mu      sync.Mutex
	summary *models.RunSummary
}

func newRun(id, planID string, concurrency, tasks int, cancel context.CancelFunc) *Run {
	return &Run{
		ID:          id,
		PlanID:      planID,
		Concurrency: concurrency,
		// Every task emits at most four progress events; the summary is one more.
		progress: make(chan models.ProgressEvent, 4*tasks+4),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// Progress returns the run's progress stream. The final event carries the
// summary, after which the channel is closed.
func (r *Run) Progress() <-chan models.ProgressEvent {
	return r.progress
}

// Done is closed once the run reached a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Abort stops scheduling, ends the run's live workers and settles the
// remaining tasks.
func (r *Run) Abort() {
	r.cancel()
}

// Wait blocks until the run finishes and returns its summary.
func (r *Run) Wait(ctx context.Context) (*models.RunSummary, error) {
	select {
	case <-r.done:
		return r.Summary(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Summary returns the final summary, or nil while the run is in progress.
func (r *Run) Summary() *models.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return nil
	}
	s := *r.summary
	s.Tasks = append([]models.TaskOutcome(nil), r.summary.Tasks...)
	return &s
}

func (r *Run) finish(s *models.RunSummary) {
	r.mu.Lock()
	r.summary = s
	r.mu.Unlock()
	close(r.done)
}

func (r *Run) send(ev models.ProgressEvent) {
	select {
	case r.progress <- ev:
	default:
		log.Printf("[orchestrator] WARNING: progress buffer full for run %s, dropping %s/%s", r.ID, ev.TaskID, ev.Status)
	}
}
