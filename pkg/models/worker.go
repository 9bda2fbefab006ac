package models

import "time"

// WorkerState represents the lifecycle state of a subagent.
type WorkerState string

const (
	// WorkerSpawning indicates the child session has been requested but is not ready.
	WorkerSpawning WorkerState = "spawning"
	// WorkerActive indicates the child is ready and accepting replies.
	WorkerActive WorkerState = "active"
	// WorkerCompleted indicates the child finished or was ended cleanly.
	WorkerCompleted WorkerState = "completed"
	// WorkerError indicates spawn, reply or idle-timeout failure.
	WorkerError WorkerState = "error"
)

// Valid returns true if the state is a known value.
func (s WorkerState) Valid() bool {
	switch s {
	case WorkerSpawning, WorkerActive, WorkerCompleted, WorkerError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s WorkerState) IsTerminal() bool {
	return s == WorkerCompleted || s == WorkerError
}

// WorkerConfig is the effective configuration of a child after inheriting
// from, and narrowing, the parent.
type WorkerConfig struct {
	Model            string        `json:"model,omitempty"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	Instructions     string        `json:"instructions"`
	Sandbox          SandboxPolicy `json:"sandbox"`
	MaxTurns         int           `json:"max_turns,omitempty"`
	MaxIdleRuntime   time.Duration `json:"max_idle_runtime,omitempty"`
}

// Worker is a point-in-time snapshot of a subagent.
type Worker struct {
	// ID is opaque and globally unique.
	ID string `json:"subagent_id"`
	// ParentID identifies the owning conversation.
	ParentID string `json:"parent_id,omitempty"`
	// Depth is the parent's depth plus one.
	Depth int `json:"depth"`
	// TaskID back-references the plan task, if any.
	TaskID string `json:"task_id,omitempty"`
	// Goal is the goal the worker was opened with.
	Goal   string       `json:"goal"`
	Config WorkerConfig `json:"config"`
	State  WorkerState  `json:"state"`
	// Error holds the reason when State is WorkerError.
	Error        string    `json:"error,omitempty"`
	Turns        int       `json:"turns"`
	UnreadCount  int       `json:"unread_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
}
