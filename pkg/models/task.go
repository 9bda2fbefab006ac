package models

import "time"

// Mode selects how a worker reply is delivered to the caller.
type Mode string

const (
	// ModeBlocking suspends the caller until the worker's turn completes.
	ModeBlocking Mode = "blocking"
	// ModeNonBlocking returns immediately; the reply lands in the mailbox.
	ModeNonBlocking Mode = "nonblocking"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeBlocking, ModeNonBlocking:
		return true
	default:
		return false
	}
}

// OrDefault returns the mode, or ModeNonBlocking when unset.
func (m Mode) OrDefault() Mode {
	if m == "" {
		return ModeNonBlocking
	}
	return m
}

// TaskState is the execution state of a task within one plan run.
type TaskState string

const (
	// TaskPending indicates at least one dependency has not completed.
	TaskPending TaskState = "pending"
	// TaskEligible indicates all dependencies completed and the task awaits a slot.
	TaskEligible TaskState = "eligible"
	// TaskRunning indicates the task is bound to a live worker.
	TaskRunning TaskState = "running"
	// TaskCompleted indicates the worker finished successfully.
	TaskCompleted TaskState = "completed"
	// TaskFailed indicates the worker errored or could not be spawned.
	TaskFailed TaskState = "failed"
	// TaskBlocked indicates an ancestor failed; the task is never scheduled.
	TaskBlocked TaskState = "blocked"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskPending, TaskEligible, TaskRunning, TaskCompleted, TaskFailed, TaskBlocked:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state is final for the run.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskBlocked
}

// Task is one unit of delegated work inside a plan.
type Task struct {
	// ID is unique within the owning plan.
	ID string `json:"id" yaml:"id"`
	// Goal is what the worker is asked to accomplish.
	Goal string `json:"goal" yaml:"goal"`
	// RolePrompt is extra persona text appended to the worker instructions.
	RolePrompt string `json:"role_prompt,omitempty" yaml:"role_prompt,omitempty"`
	// WorkingDirectory overrides the parent's working directory.
	WorkingDirectory string `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	// ModelOverride replaces the parent's model for this worker.
	ModelOverride string `json:"model_override,omitempty" yaml:"model_override,omitempty"`
	// Mode controls reply delivery. Empty means nonblocking.
	Mode Mode `json:"mode,omitempty" yaml:"mode,omitempty"`
	// MaxTurns bounds the number of reply cycles. Zero means one.
	MaxTurns int `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	// MaxIdleRuntimeMS is the idle timeout in milliseconds. Zero disables it.
	MaxIdleRuntimeMS int64 `json:"max_idle_runtime_ms,omitempty" yaml:"max_idle_runtime_ms,omitempty"`
	// Dependencies lists task IDs that must complete first.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Deliverables lists the expected outputs.
	Deliverables []string `json:"deliverables,omitempty" yaml:"deliverables,omitempty"`
	// InScope describes what the worker may touch.
	InScope string `json:"in_scope,omitempty" yaml:"in_scope,omitempty"`
	// OutOfScope describes what the worker must leave alone.
	OutOfScope string `json:"out_of_scope,omitempty" yaml:"out_of_scope,omitempty"`
	// Resources lists files, links or notes useful to the worker.
	Resources []string `json:"resources,omitempty" yaml:"resources,omitempty"`
	// Risks lists known hazards.
	Risks []string `json:"risks,omitempty" yaml:"risks,omitempty"`
}

// IdleTimeout returns MaxIdleRuntimeMS as a duration.
func (t Task) IdleTimeout() time.Duration {
	return time.Duration(t.MaxIdleRuntimeMS) * time.Millisecond
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	c.Dependencies = cloneStrings(t.Dependencies)
	c.Deliverables = cloneStrings(t.Deliverables)
	c.Resources = cloneStrings(t.Resources)
	c.Risks = cloneStrings(t.Risks)
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
