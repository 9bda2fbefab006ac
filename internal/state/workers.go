package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// SaveWorker stores the final snapshot of an ended worker together with
// its notification history. Saving the same ID again replaces it.
func (db *DB) SaveWorker(w models.Worker, history []models.Notification) error {
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode worker: %w", err)
	}
	if history == nil {
		history = []models.Notification{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode worker history: %w", err)
	}

	_, err = db.Exec(`
		INSERT OR REPLACE INTO workers (id, parent_id, task_id, state, created_at, ended_at, body, history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, nullString(w.ParentID), nullString(w.TaskID), string(w.State),
		formatTime(w.CreatedAt), nullableTime(w.EndedAt), string(body), string(hist))
	if err != nil {
		return fmt.Errorf("save worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a persisted worker and its history. It returns
// nil, nil, nil if the worker was never persisted.
func (db *DB) GetWorker(id string) (*models.Worker, []models.Notification, error) {
	var body, hist string
	err := db.QueryRow("SELECT body, history FROM workers WHERE id = ?", id).Scan(&body, &hist)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get worker: %w", err)
	}

	var w models.Worker
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, nil, fmt.Errorf("decode worker %s: %w", id, err)
	}
	var history []models.Notification
	if err := json.Unmarshal([]byte(hist), &history); err != nil {
		return nil, nil, fmt.Errorf("decode worker %s history: %w", id, err)
	}
	return &w, history, nil
}

// ListWorkers lists persisted workers, most recently ended first.
// A limit of zero lists all.
func (db *DB) ListWorkers(limit int) ([]models.Worker, error) {
	query := "SELECT body FROM workers ORDER BY ended_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		var w models.Worker
		if err := json.Unmarshal([]byte(body), &w); err != nil {
			return nil, fmt.Errorf("decode worker: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}
