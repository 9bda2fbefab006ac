package state

import (
	"io"

	"github.com/ShayCichocki/delegate/internal/plan"
	"github.com/ShayCichocki/delegate/internal/worker"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// PlanStore handles plan persistence.
type PlanStore interface {
	SavePlan(p *models.Plan) error
	GetPlan(id string) (*models.Plan, error)
	ListPlans(limit int) ([]models.PlanSummary, error)
}

// RunStore handles run persistence.
type RunStore interface {
	CreateRun(run *models.RunSummary) error
	UpdateRunTask(runID string, t models.TaskOutcome) error
	FinishRun(run *models.RunSummary) error
	GetRun(id string) (*models.RunSummary, error)
	ListRuns(status *models.RunStatus, limit int) ([]models.RunSummary, error)
}

// WorkerStore handles ended-worker persistence.
type WorkerStore interface {
	SaveWorker(w models.Worker, history []models.Notification) error
	GetWorker(id string) (*models.Worker, []models.Notification, error)
	ListWorkers(limit int) ([]models.Worker, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore composes everything the orchestrator persists.
type StateStore interface {
	io.Closer
	Migrator
	PlanStore
	RunStore
	WorkerStore
}

var (
	_ StateStore     = (*DB)(nil)
	_ plan.Persister = (*DB)(nil)
	_ worker.Store   = (*DB)(nil)
)
