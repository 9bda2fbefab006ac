package state

import (
	"database/sql"
	"fmt"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// CreateRun records a new run and one row per task, in declared order.
func (db *DB) CreateRun(run *models.RunSummary) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, plan_id, status, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?)
		`, run.RunID, run.PlanID, string(run.Status), formatTime(run.StartedAt), nullableTime(run.FinishedAt))
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}

		for i, t := range run.Tasks {
			_, err := tx.Exec(`
				INSERT INTO run_tasks (run_id, task_id, position, state, subagent_id, output, error)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, run.RunID, t.TaskID, i, string(t.State), nullString(t.SubagentID), nullString(t.Output), nullString(t.Error))
			if err != nil {
				return fmt.Errorf("create run task %s: %w", t.TaskID, err)
			}
		}
		return nil
	})
}

// UpdateRunTask records the latest state of one task.
func (db *DB) UpdateRunTask(runID string, t models.TaskOutcome) error {
	_, err := db.Exec(`
		UPDATE run_tasks SET state = ?, subagent_id = ?, output = ?, error = ?
		WHERE run_id = ? AND task_id = ?
	`, string(t.State), nullString(t.SubagentID), nullString(t.Output), nullString(t.Error), runID, t.TaskID)
	if err != nil {
		return fmt.Errorf("update run task %s: %w", t.TaskID, err)
	}
	return nil
}

// FinishRun records the final status and every task outcome.
func (db *DB) FinishRun(run *models.RunSummary) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
		`, string(run.Status), nullableTime(run.FinishedAt), run.RunID)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}

		for _, t := range run.Tasks {
			_, err := tx.Exec(`
				UPDATE run_tasks SET state = ?, subagent_id = ?, output = ?, error = ?
				WHERE run_id = ? AND task_id = ?
			`, string(t.State), nullString(t.SubagentID), nullString(t.Output), nullString(t.Error), run.RunID, t.TaskID)
			if err != nil {
				return fmt.Errorf("finish run task %s: %w", t.TaskID, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run with its task outcomes. It returns nil, nil if
// there is none.
func (db *DB) GetRun(id string) (*models.RunSummary, error) {
	var run models.RunSummary
	var startedAt string
	var finishedAt sql.NullString
	err := db.QueryRow(`
		SELECT id, plan_id, status, started_at, finished_at FROM runs WHERE id = ?
	`, id).Scan(&run.RunID, &run.PlanID, &run.Status, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.StartedAt, _ = parseTime(startedAt)
	run.FinishedAt = parseNullableTime(finishedAt)

	tasks, err := db.runTasks(id)
	if err != nil {
		return nil, err
	}
	run.Tasks = tasks
	return &run, nil
}

func (db *DB) runTasks(runID string) ([]models.TaskOutcome, error) {
	rows, err := db.Query(`
		SELECT task_id, state, subagent_id, output, error
		FROM run_tasks WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run tasks: %w", err)
	}
	defer rows.Close()

	var out []models.TaskOutcome
	for rows.Next() {
		var t models.TaskOutcome
		var subagentID, output, errText sql.NullString
		if err := rows.Scan(&t.TaskID, &t.State, &subagentID, &output, &errText); err != nil {
			return nil, fmt.Errorf("scan run task: %w", err)
		}
		t.SubagentID = subagentID.String
		t.Output = output.String
		t.Error = errText.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListRuns lists runs newest first, optionally filtered by status. Task
// outcomes are not loaded. A limit of zero lists all.
func (db *DB) ListRuns(status *models.RunStatus, limit int) ([]models.RunSummary, error) {
	query := "SELECT id, plan_id, status, started_at, finished_at FROM runs"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var run models.RunSummary
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&run.RunID, &run.PlanID, &run.Status, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = parseTime(startedAt)
		run.FinishedAt = parseNullableTime(finishedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run, or nil if none exist.
func (db *DB) LatestRun() (*models.RunSummary, error) {
	runs, err := db.ListRuns(nil, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return db.GetRun(runs[0].RunID)
}
