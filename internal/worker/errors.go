package worker

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	// ErrConcurrencyUnavailable is returned by Open when no slot is free.
	ErrConcurrencyUnavailable = errors.New("concurrency unavailable")
	// ErrDepthExceeded is returned by Open when the child would nest too deep.
	ErrDepthExceeded = errors.New("depth exceeded")
	// ErrSandboxWidening is returned when an override is less restrictive than the parent.
	ErrSandboxWidening = errors.New("sandbox override widens parent policy")
	// ErrEmptyGoal is returned by Open without a goal.
	ErrEmptyGoal = errors.New("goal is required")
	// ErrTurnInProgress is returned by Reply while a previous turn runs.
	ErrTurnInProgress = errors.New("turn already in progress")
	// ErrWorkerTerminal is returned by Reply once a worker completed or errored.
	ErrWorkerTerminal = errors.New("worker is no longer active")
	// ErrTurnLimit is returned by Reply once max_turns replies were sent.
	ErrTurnLimit = errors.New("turn limit reached")
	// ErrIdleTimeout is the cause recorded when a worker idles out.
	ErrIdleTimeout = errors.New("idle timeout")
	// ErrInvalidMode is returned by Reply for an unknown mode.
	ErrInvalidMode = errors.New("invalid reply mode")
	// ErrClosed is returned once the registry has been closed.
	ErrClosed = errors.New("registry closed")
)

// SpawnError wraps a failure of the session backend to start a child.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn subagent: %v", e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
