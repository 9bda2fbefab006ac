// Package events defines the lifecycle and progress events published by the
// orchestration core, and the emitter that delivers them.
package events

import (
	"time"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// EventType represents the type of orchestration event.
type EventType string

const (
	// EventPlanProposed indicates a plan passed validation and was stored.
	EventPlanProposed EventType = "plan_proposed"
	// EventPlanPreview indicates execution was requested without confirmation.
	EventPlanPreview EventType = "plan_preview"
	// EventRunStarted indicates a plan run began.
	EventRunStarted EventType = "run_started"
	// EventRunCompleted indicates every task of a run reached a terminal state.
	EventRunCompleted EventType = "run_completed"
	// EventTaskEligible indicates all dependencies of a task completed.
	EventTaskEligible EventType = "task_eligible"
	// EventTaskStarted indicates a task is bound to a running worker.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a task will never run because an ancestor failed.
	EventTaskBlocked EventType = "task_blocked"
	// EventSubagentOpened indicates a worker became active.
	EventSubagentOpened EventType = "subagent_opened"
	// EventSubagentReplied indicates a worker finished a turn.
	EventSubagentReplied EventType = "subagent_replied"
	// EventSubagentEnded indicates a worker was torn down.
	EventSubagentEnded EventType = "subagent_ended"
	// EventSubagentError indicates a worker entered the error state.
	EventSubagentError EventType = "subagent_error"
)

// Event is one published notification. Delivery is at-least-once; consumers
// deduplicate by ID.
type Event struct {
	// ID identifies the event for deduplication.
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	// Timestamp is when the event occurred.
	Timestamp  time.Time `json:"timestamp"`
	PlanID     string    `json:"plan_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	SubagentID string    `json:"subagent_id,omitempty"`
	// State is the task or worker state after the event, when relevant.
	State string `json:"state,omitempty"`
	// Message is a human-readable description.
	Message string `json:"message,omitempty"`
	// Error contains error details for failure events.
	Error string `json:"error,omitempty"`
	// Plan is set on plan_proposed and plan_preview.
	Plan *models.Plan `json:"plan,omitempty"`
	// Summary is set on run_completed.
	Summary *models.RunSummary `json:"summary,omitempty"`
}

// Publisher is implemented by anything that accepts events.
type Publisher interface {
	Emit(Event)
}

// Sink receives every emitted event synchronously.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Emit(Event) {}
