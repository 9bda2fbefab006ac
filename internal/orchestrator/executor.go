package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/governor"
	"github.com/ShayCichocki/delegate/internal/graph"
	"github.com/ShayCichocki/delegate/internal/signals"
	"github.com/ShayCichocki/delegate/internal/worker"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// taskRecord is the per-run state of one task. Records live in declared
// order and refer to each other by task ID only.
type taskRecord struct {
	task  models.Task
	index int
	state models.TaskState
	// eligibleSeq orders Eligible tasks by when they became eligible.
	eligibleSeq uint64
	dispatched  bool
	subagentID  string
	output      string
	err         string
}

// taskUpdate is sent by a task goroutine to the scheduling loop.
type taskUpdate struct {
	index      int
	subagentID string
	started    bool
	output     string
	err        error
}

// executor runs one plan. Only the scheduling goroutine touches records.
type executor struct {
	o     *Orchestrator
	run   *Run
	plan  *models.Plan
	graph *graph.DependencyGraph

	records []*taskRecord
	byID    map[string]*taskRecord
	limit   int
	running int
	seq     uint64
	updates chan taskUpdate

	startedAt time.Time
}

// Execute runs a stored plan. With Confirm false nothing is spawned and the
// validated plan is returned for review. Otherwise the run starts in the
// background and is bounded by ctx: cancelling ctx aborts it.
func (o *Orchestrator) Execute(ctx context.Context, planID string, opts ExecuteOptions) (*ExecuteResult, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrency, opts.Concurrency)
	}
	p, err := o.plans.Get(planID)
	if err != nil {
		return nil, err
	}

	limit := p.Concurrency
	if opts.Concurrency > 0 {
		limit = opts.Concurrency
	}
	if capacity := o.governor.Capacity(); limit > capacity {
		log.Printf("[orchestrator] WARNING: concurrency %d exceeds global cap %d, clamping", limit, capacity)
		limit = capacity
	}

	if !opts.Confirm {
		o.emitter.Emit(events.Event{
			Type:    events.EventPlanPreview,
			PlanID:  p.ID,
			Message: fmt.Sprintf("Plan %s ready for review (%d tasks)", p.ID, len(p.Tasks)),
			Plan:    p.Clone(),
		})
		return &ExecuteResult{Preview: p}, nil
	}

	g := graph.New()
	g.SetDebugLog(o.logger.Func())
	if err := g.Build(p.Tasks); err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.ID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := newRun(uuid.New().String(), p.ID, limit, len(p.Tasks), cancel)

	e := &executor{
		o:         o,
		run:       run,
		plan:      p,
		graph:     g,
		byID:      make(map[string]*taskRecord, len(p.Tasks)),
		limit:     limit,
		updates:   make(chan taskUpdate, 2*len(p.Tasks)),
		startedAt: o.now(),
	}
	for i, t := range p.Tasks {
		rec := &taskRecord{task: t, index: i, state: models.TaskPending}
		e.records = append(e.records, rec)
		e.byID[t.ID] = rec
	}

	if o.store != nil {
		if err := o.store.CreateRun(e.summary(models.RunRunning)); err != nil {
			cancel()
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	o.runs[run.ID] = run
	o.mu.Unlock()

	o.emitter.Emit(events.Event{
		Type:    events.EventRunStarted,
		PlanID:  p.ID,
		RunID:   run.ID,
		Message: fmt.Sprintf("Run %s started for plan %s (concurrency %d)", run.ID, p.ID, limit),
	})
	o.logger.Log("[executor] run %s started: plan=%s tasks=%d concurrency=%d", run.ID, p.ID, len(p.Tasks), limit)

	if o.projectRoot != "" {
		w, err := signals.NewWatcher(o.projectRoot, signals.WithPollInterval(o.cfg.PollInterval))
		if err != nil {
			log.Printf("[orchestrator] WARNING: kill signal watcher unavailable: %v", err)
		} else {
			go func() {
				defer w.Close()
				select {
				case <-w.Stopped():
					log.Printf("[orchestrator] kill signal received, aborting run %s", run.ID)
					run.Abort()
				case <-run.Done():
				}
			}()
		}
	}

	go e.loop(runCtx)
	return &ExecuteResult{Run: run}, nil
}

func (e *executor) loop(ctx context.Context) {
	ctx, span := e.o.tracer.Start(ctx, "plan.execute", trace.WithAttributes(
		attribute.String("plan.id", e.plan.ID),
		attribute.String("run.id", e.run.ID),
		attribute.Int("plan.tasks", len(e.records)),
		attribute.Int("run.concurrency", e.limit),
	))

	aborted := false
	for !aborted {
		e.promote()
		for e.running < e.limit && !aborted {
			rec := e.next()
			if rec == nil {
				break
			}
			res, err := e.o.governor.Reserve(ctx, 0, true)
			if err != nil {
				if ctx.Err() != nil {
					aborted = true
					break
				}
				e.settle(rec, models.TaskFailed, "", err.Error())
				e.promote()
				continue
			}
			e.dispatch(ctx, rec, res)
		}
		if aborted {
			break
		}
		if e.running == 0 && e.next() == nil {
			break
		}
		select {
		case u := <-e.updates:
			e.apply(u)
		case <-ctx.Done():
			aborted = true
		}
	}

	status := models.RunCompleted
	if aborted {
		status = models.RunAborted
		e.abort()
	} else {
		for _, rec := range e.records {
			if rec.state != models.TaskCompleted {
				status = models.RunFailed
				break
			}
		}
	}
	e.finish(status, span)
}

// promote moves Pending tasks whose dependencies all completed to Eligible,
// in declared order.
func (e *executor) promote() {
	done := make(map[string]bool, len(e.records))
	for _, rec := range e.records {
		if rec.state == models.TaskCompleted {
			done[rec.task.ID] = true
		}
	}
	for _, rec := range e.records {
		if rec.state != models.TaskPending || !e.graph.Satisfied(rec.task.ID, done) {
			continue
		}
		e.seq++
		rec.state = models.TaskEligible
		rec.eligibleSeq = e.seq
		e.progress(rec, "eligible")
		e.o.emitter.Emit(events.Event{
			Type:    events.EventTaskEligible,
			PlanID:  e.plan.ID,
			RunID:   e.run.ID,
			TaskID:  rec.task.ID,
			State:   string(rec.state),
			Message: fmt.Sprintf("Task %s is eligible", rec.task.ID),
		})
	}
}

// next returns the earliest-eligible task not yet dispatched. Ties cannot
// happen across passes; within a pass declared order decides.
func (e *executor) next() *taskRecord {
	var best *taskRecord
	for _, rec := range e.records {
		if rec.state != models.TaskEligible || rec.dispatched {
			continue
		}
		if best == nil || rec.eligibleSeq < best.eligibleSeq {
			best = rec
		}
	}
	return best
}

func (e *executor) dispatch(ctx context.Context, rec *taskRecord, res governor.Reservation) {
	rec.dispatched = true
	e.running++
	prompt := buildTaskPrompt(e.plan, rec.task, e.dependencyOutputs(rec.task))
	e.o.logger.Log("[executor] run %s: dispatching task %s (%d/%d running)", e.run.ID, rec.task.ID, e.running, e.limit)
	go e.driveTask(ctx, rec.index, rec.task, prompt, res)
}

func (e *executor) dependencyOutputs(t models.Task) []dependencyOutput {
	out := make([]dependencyOutput, 0, len(t.Dependencies))
	for _, dep := range e.graph.Dependencies(t.ID) {
		if rec, ok := e.byID[dep]; ok {
			out = append(out, dependencyOutput{TaskID: dep, Output: rec.output})
		}
	}
	return out
}

func (e *executor) apply(u taskUpdate) {
	rec := e.records[u.index]
	if u.started {
		rec.subagentID = u.subagentID
		rec.state = models.TaskRunning
		e.persist(rec)
		e.progress(rec, fmt.Sprintf("running on %s", u.subagentID))
		e.o.emitter.Emit(events.Event{
			Type:       events.EventTaskStarted,
			PlanID:     e.plan.ID,
			RunID:      e.run.ID,
			TaskID:     rec.task.ID,
			SubagentID: u.subagentID,
			State:      string(rec.state),
			Message:    fmt.Sprintf("Task %s started on subagent %s", rec.task.ID, u.subagentID),
		})
		return
	}

	e.running--
	if u.subagentID != "" {
		rec.subagentID = u.subagentID
	}
	if u.err != nil {
		e.settle(rec, models.TaskFailed, "", u.err.Error())
		return
	}
	e.settle(rec, models.TaskCompleted, u.output, "")
}

// settle records a terminal state. A failure blocks every transitive
// dependent that has not started.
func (e *executor) settle(rec *taskRecord, state models.TaskState, output, reason string) {
	rec.state = state
	rec.output = output
	rec.err = reason
	e.persist(rec)
	e.o.metrics.TaskFinished(string(state))

	ev := events.Event{
		PlanID:     e.plan.ID,
		RunID:      e.run.ID,
		TaskID:     rec.task.ID,
		SubagentID: rec.subagentID,
		State:      string(state),
	}
	switch state {
	case models.TaskCompleted:
		ev.Type = events.EventTaskCompleted
		ev.Message = fmt.Sprintf("Task %s completed", rec.task.ID)
		e.progress(rec, "completed")
	case models.TaskFailed:
		ev.Type = events.EventTaskFailed
		ev.Message = fmt.Sprintf("Task %s failed", rec.task.ID)
		ev.Error = reason
		e.progress(rec, reason)
	case models.TaskBlocked:
		ev.Type = events.EventTaskBlocked
		ev.Message = fmt.Sprintf("Task %s blocked", rec.task.ID)
		ev.Error = reason
		e.progress(rec, reason)
	}
	e.o.emitter.Emit(ev)

	if state != models.TaskFailed {
		return
	}
	for _, id := range e.graph.TransitiveDependents(rec.task.ID) {
		dep := e.byID[id]
		if dep == nil || dep.state != models.TaskPending {
			continue
		}
		e.settle(dep, models.TaskBlocked, "", fmt.Sprintf("dependency %s failed", rec.task.ID))
	}
}

// abort waits for dispatched tasks to wind down and settles the rest.
func (e *executor) abort() {
	log.Printf("[orchestrator] run %s aborted with %d tasks running", e.run.ID, e.running)
	for e.running > 0 {
		u := <-e.updates
		if u.started {
			e.records[u.index].subagentID = u.subagentID
			continue
		}
		e.running--
		rec := e.records[u.index]
		if u.subagentID != "" {
			rec.subagentID = u.subagentID
		}
		if u.err == nil {
			e.settle(rec, models.TaskCompleted, u.output, "")
		} else {
			e.settle(rec, models.TaskFailed, "", ErrRunAborted.Error())
		}
	}
	for _, rec := range e.records {
		if rec.state == models.TaskPending || rec.state == models.TaskEligible {
			e.settle(rec, models.TaskBlocked, "", ErrRunAborted.Error())
		}
	}
}

func (e *executor) finish(status models.RunStatus, span trace.Span) {
	summary := e.summary(status)
	summary.FinishedAt = e.o.now()

	if e.o.store != nil {
		if err := e.o.store.FinishRun(summary); err != nil {
			log.Printf("[orchestrator] WARNING: failed to record run %s: %v", e.run.ID, err)
		}
	}
	e.o.metrics.RunFinished(string(status))

	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Int("run.completed", summary.Count(models.TaskCompleted)),
		attribute.Int("run.failed", summary.Count(models.TaskFailed)),
		attribute.Int("run.blocked", summary.Count(models.TaskBlocked)),
	)
	if status != models.RunCompleted {
		span.SetStatus(codes.Error, string(status))
	}
	span.End()

	e.o.emitter.Emit(events.Event{
		Type:    events.EventRunCompleted,
		PlanID:  e.plan.ID,
		RunID:   e.run.ID,
		State:   string(status),
		Message: fmt.Sprintf("Run %s %s", e.run.ID, status),
		Summary: summary,
	})
	e.o.logger.Log("[executor] run %s finished: %s", e.run.ID, status)

	e.run.send(models.ProgressEvent{Timestamp: summary.FinishedAt, Summary: summary})
	close(e.run.progress)
	e.run.finish(summary)
	e.run.cancel()
}

func (e *executor) summary(status models.RunStatus) *models.RunSummary {
	s := &models.RunSummary{
		RunID:     e.run.ID,
		PlanID:    e.plan.ID,
		Status:    status,
		StartedAt: e.startedAt,
		Tasks:     make([]models.TaskOutcome, 0, len(e.records)),
	}
	for _, rec := range e.records {
		s.Tasks = append(s.Tasks, rec.outcome())
	}
	return s
}

func (rec *taskRecord) outcome() models.TaskOutcome {
	return models.TaskOutcome{
		TaskID:     rec.task.ID,
		State:      rec.state,
		SubagentID: rec.subagentID,
		Output:     rec.output,
		Error:      rec.err,
	}
}

func (e *executor) persist(rec *taskRecord) {
	if e.o.store == nil {
		return
	}
	if err := e.o.store.UpdateRunTask(e.run.ID, rec.outcome()); err != nil {
		log.Printf("[orchestrator] WARNING: failed to record task %s: %v", rec.task.ID, err)
	}
}

func (e *executor) progress(rec *taskRecord, msg string) {
	e.run.send(models.ProgressEvent{
		TaskID:     rec.task.ID,
		Status:     rec.state,
		SubagentID: rec.subagentID,
		Message:    msg,
		Timestamp:  e.o.now(),
	})
}

// driveTask opens a worker for the task, converses until it completes and
// always ends it. It reports to the scheduling loop through e.updates.
func (e *executor) driveTask(ctx context.Context, index int, t models.Task, prompt string, res governor.Reservation) {
	ctx, span := e.o.tracer.Start(ctx, "plan.task", trace.WithAttributes(
		attribute.String("plan.id", e.plan.ID),
		attribute.String("task.id", t.ID),
	))
	defer span.End()

	budget := t.MaxTurns
	if budget <= 0 {
		budget = 1
	}

	reg := e.o.registry
	id, err := reg.Open(ctx, worker.OpenRequest{
		Goal:             t.Goal,
		RolePrompt:       t.RolePrompt,
		ModelOverride:    t.ModelOverride,
		WorkingDirectory: t.WorkingDirectory,
		MaxTurns:         budget,
		MaxIdleRuntime:   t.IdleTimeout(),
		ParentDepth:      0,
		TaskID:           t.ID,
		Reservation:      &res,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.updates <- taskUpdate{index: index, err: err}
		return
	}
	span.SetAttributes(attribute.String("subagent.id", id))
	e.updates <- taskUpdate{index: index, subagentID: id, started: true}

	output, err := e.converse(ctx, id, t.Mode.OrDefault(), prompt, budget)
	if _, endErr := reg.End(context.Background(), id, e.o.cfg.PersistWorkers); endErr != nil && !errors.Is(endErr, models.ErrNotFound) {
		log.Printf("[orchestrator] WARNING: end subagent %s: %v", id, endErr)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.updates <- taskUpdate{index: index, subagentID: id, output: output, err: err}
}

// converse sends the prompt and answers questions with the nudge until the
// worker completes or the turn budget runs out.
func (e *executor) converse(ctx context.Context, id string, mode models.Mode, prompt string, budget int) (string, error) {
	input := prompt
	for turn := 1; ; turn++ {
		kind, text, err := e.turn(ctx, id, mode, input)
		if err != nil {
			return "", err
		}
		if kind != models.NotifyQuestion {
			return text, nil
		}
		if turn >= budget {
			return "", fmt.Errorf("subagent needs input: %s", text)
		}
		e.o.logger.Log("[executor] task worker %s asked a question, nudging (turn %d/%d)", id, turn, budget)
		input = e.o.nudge
	}
}

func (e *executor) turn(ctx context.Context, id string, mode models.Mode, input string) (models.NotificationKind, string, error) {
	reg := e.o.registry
	res, err := reg.Reply(ctx, id, input, mode)
	if err != nil {
		return "", "", err
	}
	if mode == models.ModeBlocking {
		return res.Kind, res.Reply, nil
	}

	if _, err := reg.Wait(ctx, id); err != nil {
		return "", "", err
	}
	n, ok := reg.Latest(id)
	if !ok {
		return "", "", fmt.Errorf("subagent %s left no notification", id)
	}
	if _, err := reg.Read(id, n.ID); err != nil {
		return "", "", err
	}
	if n.Kind == models.NotifyError {
		return "", "", errors.New(n.Content)
	}
	return n.Kind, n.Content, nil
}
