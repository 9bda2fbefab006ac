package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is the umbrella for every rejected draft.
var ErrValidation = errors.New("plan validation failed")

// Kind names the rule a draft broke.
type Kind string

const (
	KindEmptyPlan          Kind = "empty_plan"
	KindMissingTaskID      Kind = "missing_task_id"
	KindMissingGoal        Kind = "missing_goal"
	KindInvalidMode        Kind = "invalid_mode"
	KindInvalidLimits      Kind = "invalid_limits"
	KindUnknownDependency  Kind = "unknown_dependency"
	KindCyclicDependency   Kind = "cyclic_dependency"
	KindDuplicateTaskID    Kind = "duplicate_task_id"
	KindInvalidConcurrency Kind = "invalid_concurrency"
)

// ValidationError describes why a draft was rejected. Nothing is stored and
// no resource is touched when one is returned.
type ValidationError struct {
	Kind Kind
	// TaskID is the offending task, when there is one.
	TaskID string
	// Ref is the missing dependency for KindUnknownDependency.
	Ref string
	// Cycle is the offending cycle for KindCyclicDependency.
	Cycle   []string
	Message string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindUnknownDependency:
		return fmt.Sprintf("%s: task %q depends on unknown task %q", e.Kind, e.TaskID, e.Ref)
	case KindCyclicDependency:
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Cycle, " -> "))
	case KindDuplicateTaskID:
		return fmt.Sprintf("%s: %q", e.Kind, e.TaskID)
	}
	if e.TaskID != "" {
		return fmt.Sprintf("%s: task %q: %s", e.Kind, e.TaskID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsKind reports whether err is a ValidationError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}
