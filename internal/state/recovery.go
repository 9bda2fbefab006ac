package state

import (
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// InterruptedRun describes a run that was still marked running on startup.
// Live workers never outlive the process, so such a run cannot resume.
type InterruptedRun struct {
	RunID        string
	PlanID       string
	StartedAt    time.Time
	RunningTasks []string
}

// RecoveryManager detects and settles runs left behind by a crash.
type RecoveryManager struct {
	db  *DB
	now func() time.Time
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db, now: time.Now}
}

// CheckForInterrupted lists runs still marked running.
func (rm *RecoveryManager) CheckForInterrupted() ([]InterruptedRun, error) {
	status := models.RunRunning
	runs, err := rm.db.ListRuns(&status, 0)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}

	var out []InterruptedRun
	for _, r := range runs {
		tasks, err := rm.db.runTasks(r.RunID)
		if err != nil {
			return nil, err
		}
		ir := InterruptedRun{RunID: r.RunID, PlanID: r.PlanID, StartedAt: r.StartedAt}
		for _, t := range tasks {
			if t.State == models.TaskRunning {
				ir.RunningTasks = append(ir.RunningTasks, t.TaskID)
			}
		}
		out = append(out, ir)
	}
	return out, nil
}

// Settle marks a run interrupted. Tasks that were running become failed,
// tasks that never started become blocked.
func (rm *RecoveryManager) Settle(runID string) error {
	run, err := rm.db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	if run.Status != models.RunRunning {
		return nil
	}

	for i := range run.Tasks {
		t := &run.Tasks[i]
		switch t.State {
		case models.TaskRunning:
			t.State = models.TaskFailed
			t.Error = "run interrupted"
		case models.TaskPending, models.TaskEligible:
			t.State = models.TaskBlocked
			t.Error = "run interrupted"
		}
	}
	run.Status = models.RunInterrupted
	run.FinishedAt = rm.now()

	if err := rm.db.FinishRun(run); err != nil {
		return fmt.Errorf("settle run %s: %w", runID, err)
	}
	log.Printf("[state] run %s marked interrupted", runID)
	return nil
}

// SettleAll settles every interrupted run and returns what was found.
func (rm *RecoveryManager) SettleAll() ([]InterruptedRun, error) {
	runs, err := rm.CheckForInterrupted()
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if err := rm.Settle(r.RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}
