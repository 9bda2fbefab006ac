package models

import "time"

// PlanDraft is a plan as submitted, before validation.
type PlanDraft struct {
	Objective   string   `json:"objective" yaml:"objective"`
	Assumptions []string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
	// Concurrency is the requested cap. Zero means "use the global cap".
	Concurrency int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Tasks       []Task `json:"tasks" yaml:"tasks"`
}

// Plan is a validated, immutable task graph.
type Plan struct {
	// ID is assigned by the plan store; resubmission yields a new ID.
	ID          string   `json:"plan_id"`
	Objective   string   `json:"objective"`
	Assumptions []string `json:"assumptions,omitempty"`
	// Concurrency is the effective cap after clamping to the global cap.
	Concurrency int `json:"concurrency"`
	// Tasks are kept in declared order.
	Tasks []Task `json:"tasks"`
	// Warnings collects non-fatal validation notes such as clamping.
	Warnings  []string  `json:"warnings,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Task returns the task with the given ID.
func (p *Plan) Task(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Assumptions = cloneStrings(p.Assumptions)
	c.Warnings = cloneStrings(p.Warnings)
	c.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		c.Tasks[i] = t.Clone()
	}
	return &c
}

// PlanSummary is a compact listing entry.
type PlanSummary struct {
	ID          string    `json:"plan_id"`
	Objective   string    `json:"objective"`
	TaskCount   int       `json:"task_count"`
	Concurrency int       `json:"concurrency"`
	CreatedAt   time.Time `json:"created_at"`
}
