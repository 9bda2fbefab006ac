package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// SavePlan stores a validated plan. Plans are immutable, so saving an
// existing ID is an error.
func (db *DB) SavePlan(p *models.Plan) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO plans (id, objective, task_count, concurrency, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Objective, len(p.Tasks), p.Concurrency, formatTime(p.CreatedAt), string(body))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID. It returns nil, nil if there is none.
func (db *DB) GetPlan(id string) (*models.Plan, error) {
	var body string
	err := db.QueryRow("SELECT body FROM plans WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	var p models.Plan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	return &p, nil
}

// ListPlans lists stored plans, newest first. A limit of zero lists all.
func (db *DB) ListPlans(limit int) ([]models.PlanSummary, error) {
	query := `
		SELECT id, objective, task_count, concurrency, created_at
		FROM plans ORDER BY created_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.PlanSummary
	for rows.Next() {
		var p models.PlanSummary
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Objective, &p.TaskCount, &p.Concurrency, &createdAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		p.CreatedAt, _ = parseTime(createdAt)
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
