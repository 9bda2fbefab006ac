package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/delegate/internal/governor"
	"github.com/ShayCichocki/delegate/internal/orchestrator"
	"github.com/ShayCichocki/delegate/internal/plan"
	"github.com/ShayCichocki/delegate/internal/worker"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// Executor runs delegation tool calls on behalf of one caller. The caller's
// depth decides whether it may open workers: the root conversation is 0.
type Executor struct {
	orch     *orchestrator.Orchestrator
	depth    int
	parentID string
}

// NewExecutor creates an executor for a caller at the given depth.
func NewExecutor(orch *orchestrator.Orchestrator, depth int) *Executor {
	return &Executor{orch: orch, depth: depth}
}

// ForWorker returns an executor for tool calls made from inside a worker.
func (e *Executor) ForWorker(w models.Worker) *Executor {
	return &Executor{orch: e.orch, depth: w.Depth, parentID: w.ID}
}

// Result is the outcome of one tool call. Content is JSON.
type Result struct {
	Content string
	IsError bool
}

// Execute runs a tool by name with the given JSON input.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) Result {
	switch name {
	case PlanSubmit:
		return e.execPlanSubmit(input)
	case PlanGet:
		return e.execPlanGet(input)
	case PlanExecute:
		return e.execPlanExecute(ctx, input)
	case SubagentOpen:
		return e.execOpen(ctx, input)
	case SubagentReply:
		return e.execReply(ctx, input)
	case SubagentMailbox:
		return e.execMailbox(input)
	case SubagentRead:
		return e.execRead(input)
	case SubagentEnd:
		return e.execEnd(ctx, input)
	case SubagentList:
		return ok(map[string]interface{}{"subagents": e.orch.Registry().List()})
	case SubagentInbox:
		return e.execInbox(input)
	default:
		return Result{Content: fmt.Sprintf(`{"error":"unknown tool: %s","kind":"unknown_tool"}`, name), IsError: true}
	}
}

func (e *Executor) execPlanSubmit(input json.RawMessage) Result {
	var draft models.PlanDraft
	if err := decode(input, &draft); err != nil {
		return fail(err)
	}
	p, err := e.orch.SubmitPlan(draft)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{
		"plan_id":     p.ID,
		"concurrency": p.Concurrency,
		"warnings":    p.Warnings,
	})
}

func (e *Executor) execPlanGet(input json.RawMessage) Result {
	var params struct {
		PlanID string `json:"plan_id"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	p, err := e.orch.GetPlan(params.PlanID)
	if err != nil {
		return fail(err)
	}
	return ok(p)
}

func (e *Executor) execPlanExecute(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		PlanID      string `json:"plan_id"`
		Concurrency int    `json:"concurrency"`
		Confirm     bool   `json:"confirm"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	if maxDepth := e.orch.Governor().MaxDepth(); params.Confirm && e.depth+1 > maxDepth {
		return fail(fmt.Errorf("%w: %w: caller at depth %d, max %d", worker.ErrDepthExceeded, governor.ErrDepthExceeded, e.depth, maxDepth))
	}

	res, err := e.orch.Execute(ctx, params.PlanID, orchestrator.ExecuteOptions{
		Concurrency: params.Concurrency,
		Confirm:     params.Confirm,
	})
	if err != nil {
		return fail(err)
	}
	if res.Preview != nil {
		return ok(map[string]interface{}{"preview": res.Preview})
	}

	progress := make([]models.ProgressEvent, 0)
	var summary *models.RunSummary
	for ev := range res.Run.Progress() {
		if ev.Summary != nil {
			summary = ev.Summary
			continue
		}
		progress = append(progress, ev)
	}
	if summary == nil {
		summary = res.Run.Summary()
	}
	return ok(map[string]interface{}{
		"run_id":   res.Run.ID,
		"progress": progress,
		"summary":  summary,
	})
}

func (e *Executor) execOpen(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Goal             string               `json:"goal"`
		RolePrompt       string               `json:"role_prompt"`
		Model            string               `json:"model"`
		WorkingDirectory string               `json:"working_directory"`
		Sandbox          models.SandboxPolicy `json:"sandbox"`
		MaxTurns         int                  `json:"max_turns"`
		MaxIdleRuntimeMS int64                `json:"max_idle_runtime_ms"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	id, err := e.orch.Registry().Open(ctx, worker.OpenRequest{
		Goal:             params.Goal,
		RolePrompt:       params.RolePrompt,
		ModelOverride:    params.Model,
		WorkingDirectory: params.WorkingDirectory,
		SandboxOverride:  params.Sandbox,
		MaxTurns:         params.MaxTurns,
		MaxIdleRuntime:   time.Duration(params.MaxIdleRuntimeMS) * time.Millisecond,
		ParentDepth:      e.depth,
		ParentID:         e.parentID,
	})
	if err != nil {
		return fail(err)
	}
	return ok(map[string]string{"subagent_id": id})
}

func (e *Executor) execReply(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		SubagentID string      `json:"subagent_id"`
		Message    string      `json:"message"`
		Mode       models.Mode `json:"mode"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	res, err := e.orch.Registry().Reply(ctx, params.SubagentID, params.Message, params.Mode)
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

func (e *Executor) execMailbox(input json.RawMessage) Result {
	var params struct {
		SubagentID string `json:"subagent_id"`
		OnlyUnread bool   `json:"only_unread"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	list, err := e.orch.Registry().Mailbox(params.SubagentID, params.OnlyUnread)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"notifications": nonNil(list)})
}

func (e *Executor) execRead(input json.RawMessage) Result {
	var params struct {
		SubagentID string `json:"subagent_id"`
		MailID     string `json:"mail_id"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	n, err := e.orch.Registry().Read(params.SubagentID, params.MailID)
	if err != nil {
		return fail(err)
	}
	return ok(n)
}

func (e *Executor) execEnd(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		SubagentID string `json:"subagent_id"`
		Persist    bool   `json:"persist"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	w, err := e.orch.Registry().End(ctx, params.SubagentID, params.Persist)
	if err != nil {
		return fail(err)
	}
	return ok(w)
}

func (e *Executor) execInbox(input json.RawMessage) Result {
	var params struct {
		OnlyUnread bool `json:"only_unread"`
		MarkRead   bool `json:"mark_read"`
	}
	if err := decode(input, &params); err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{
		"notifications": nonNil(e.orch.Registry().Inbox(params.OnlyUnread, params.MarkRead)),
	})
}

func decode(input json.RawMessage, v interface{}) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	return nil
}

var errInvalidInput = errors.New("invalid parameters")

func nonNil(list []models.Notification) []models.Notification {
	if list == nil {
		return []models.Notification{}
	}
	return list
}

func ok(v interface{}) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return fail(err)
	}
	return Result{Content: string(data)}
}

func fail(err error) Result {
	data, _ := json.Marshal(map[string]string{
		"error": err.Error(),
		"kind":  ErrorKind(err),
	})
	return Result{Content: string(data), IsError: true}
}

// ErrorKind names the error category a tool caller can act on.
func ErrorKind(err error) string {
	var verr *plan.ValidationError
	var serr *worker.SpawnError
	switch {
	case errors.As(err, &verr):
		return string(verr.Kind)
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, worker.ErrDepthExceeded), errors.Is(err, governor.ErrDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, worker.ErrConcurrencyUnavailable):
		return "concurrency_unavailable"
	case errors.As(err, &serr):
		return "spawn_error"
	case errors.Is(err, worker.ErrTurnInProgress):
		return "turn_in_progress"
	case errors.Is(err, worker.ErrTurnLimit):
		return "turn_limit"
	case errors.Is(err, worker.ErrWorkerTerminal):
		return "worker_terminal"
	case errors.Is(err, worker.ErrSandboxWidening):
		return "sandbox_widening"
	case errors.Is(err, orchestrator.ErrInvalidConcurrency):
		return "invalid_concurrency"
	case errors.Is(err, errInvalidInput), errors.Is(err, worker.ErrEmptyGoal), errors.Is(err, worker.ErrInvalidMode):
		return "invalid_input"
	default:
		return "error"
	}
}
