package orchestrator

import "errors"

var (
	// ErrClosed is returned by operations on a closed Orchestrator.
	ErrClosed = errors.New("orchestrator closed")
	// ErrRunAborted is recorded on tasks that were running when a run was aborted.
	ErrRunAborted = errors.New("run aborted")
	// ErrInvalidConcurrency is returned for a negative concurrency override.
	ErrInvalidConcurrency = errors.New("invalid concurrency override")
)
