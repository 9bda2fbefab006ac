package models

import "time"

// RunStatus is the aggregate state of a plan run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunAborted     RunStatus = "aborted"
	RunInterrupted RunStatus = "interrupted"
)

// TaskOutcome is the final record for one task of a run.
type TaskOutcome struct {
	TaskID     string    `json:"task_id"`
	State      TaskState `json:"state"`
	SubagentID string    `json:"subagent_id,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunSummary reports the final state of every task, in declared order.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	PlanID     string        `json:"plan_id"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Tasks      []TaskOutcome `json:"tasks"`
}

// Count returns how many tasks ended in the given state.
func (s RunSummary) Count(state TaskState) int {
	n := 0
	for _, t := range s.Tasks {
		if t.State == state {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for a task ID.
func (s RunSummary) Outcome(taskID string) (TaskOutcome, bool) {
	for _, t := range s.Tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return TaskOutcome{}, false
}

// ProgressEvent is one entry of a run's progress stream. The last event of
// a stream carries the summary.
type ProgressEvent struct {
	TaskID     string      `json:"task_id,omitempty"`
	Status     TaskState   `json:"status,omitempty"`
	SubagentID string      `json:"subagent_id,omitempty"`
	Message    string      `json:"message,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Summary    *RunSummary `json:"summary,omitempty"`
}
