package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/delegate/internal/graph"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// Validate checks a draft and returns the normalized plan without an ID.
// Shape rules run first, then dependency references, acyclicity, ID
// uniqueness and the concurrency request, in that order. A concurrency above
// globalCap is clamped and recorded as a warning.
func Validate(draft models.PlanDraft, globalCap int) (*models.Plan, error) {
	if len(draft.Tasks) == 0 {
		return nil, &ValidationError{Kind: KindEmptyPlan, Message: "plan has no tasks"}
	}

	tasks := make([]models.Task, len(draft.Tasks))
	for i, t := range draft.Tasks {
		t = t.Clone()
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, &ValidationError{Kind: KindMissingTaskID, Message: fmt.Sprintf("task #%d has no id", i+1)}
		}
		if strings.TrimSpace(t.Goal) == "" {
			return nil, &ValidationError{Kind: KindMissingGoal, TaskID: t.ID, Message: "goal is required"}
		}
		if t.Mode != "" && !t.Mode.Valid() {
			return nil, &ValidationError{Kind: KindInvalidMode, TaskID: t.ID, Message: fmt.Sprintf("unknown mode %q", t.Mode)}
		}
		t.Mode = t.Mode.OrDefault()
		if t.MaxTurns < 0 || t.MaxIdleRuntimeMS < 0 {
			return nil, &ValidationError{Kind: KindInvalidLimits, TaskID: t.ID, Message: "max_turns and max_idle_runtime_ms must not be negative"}
		}
		tasks[i] = t
	}

	if err := graph.New().Build(tasks); err != nil {
		return nil, graphError(err)
	}

	p := &models.Plan{
		Objective:   draft.Objective,
		Assumptions: append([]string(nil), draft.Assumptions...),
		Tasks:       tasks,
	}

	switch {
	case draft.Concurrency < 0:
		return nil, &ValidationError{Kind: KindInvalidConcurrency, Message: fmt.Sprintf("concurrency must be positive, got %d", draft.Concurrency)}
	case draft.Concurrency == 0:
		p.Concurrency = globalCap
	case draft.Concurrency > globalCap:
		p.Concurrency = globalCap
		p.Warnings = append(p.Warnings, fmt.Sprintf("requested concurrency %d exceeds global cap %d; clamped to %d", draft.Concurrency, globalCap, globalCap))
	default:
		p.Concurrency = draft.Concurrency
	}

	return p, nil
}

func graphError(err error) error {
	var unknown *graph.UnknownDependencyError
	if errors.As(err, &unknown) {
		return &ValidationError{Kind: KindUnknownDependency, TaskID: unknown.TaskID, Ref: unknown.DepID}
	}
	var cycle *graph.CycleError
	if errors.As(err, &cycle) {
		return &ValidationError{Kind: KindCyclicDependency, Cycle: cycle.Path}
	}
	var dup *graph.DuplicateTaskError
	if errors.As(err, &dup) {
		return &ValidationError{Kind: KindDuplicateTaskID, TaskID: dup.TaskID}
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
