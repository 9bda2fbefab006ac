// Package worker owns the live subagents: their identity, effective config,
// lifecycle state, idle timers and mailboxes. Every teardown goes through
// the Registry so resources are released exactly once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/governor"
	"github.com/ShayCichocki/delegate/internal/mailbox"
	"github.com/ShayCichocki/delegate/internal/metrics"
	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// OpenRequest describes a worker to open.
type OpenRequest struct {
	Goal             string
	RolePrompt       string
	ModelOverride    string
	WorkingDirectory string
	// SandboxOverride may only narrow the parent's policy.
	SandboxOverride models.SandboxPolicy
	// MaxTurns bounds reply cycles. Zero is unlimited.
	MaxTurns int
	// MaxIdleRuntime is the idle timeout. Zero disables it.
	MaxIdleRuntime time.Duration
	// ParentDepth is the depth of the caller. The root conversation is 0.
	ParentDepth int
	// ParentID overrides the registry's parent ID.
	ParentID string
	// TaskID links the worker to a plan task.
	TaskID string
	// Reservation, when set, was acquired by the caller and is handed over:
	// the registry releases it on every path, including a failed Open.
	Reservation *governor.Reservation
}

// ReplyResult is what Reply returns. Blocking replies carry the text;
// nonblocking replies only report acceptance.
type ReplyResult struct {
	Accepted bool                    `json:"accepted,omitempty"`
	Kind     models.NotificationKind `json:"kind,omitempty"`
	Reply    string                  `json:"reply,omitempty"`
}

type handle struct {
	w           models.Worker
	conv        session.Conversation
	reservation governor.Reservation
	released    bool
	convClosed  bool

	idle *time.Timer

	turnCancel context.CancelFunc
	turnDone   chan struct{}
}

// Registry tracks live workers.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*handle
	closed  bool

	governor *governor.Governor
	mailbox  *mailbox.Mailbox
	spawner  session.Spawner
	parent   Parent

	// baseCtx bounds nonblocking turns; Close cancels it.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	events   events.Publisher
	store    Store
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	debugLog func(format string, args ...interface{})
	now      func() time.Time
}

// NewRegistry creates a registry that spawns children of parent.
func NewRegistry(gov *governor.Governor, mb *mailbox.Mailbox, spawner session.Spawner, parent Parent, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		workers:    make(map[string]*handle),
		governor:   gov,
		mailbox:    mb,
		spawner:    spawner,
		parent:     parent,
		baseCtx:    ctx,
		baseCancel: cancel,
		events:     events.Discard,
		tracer:     defaultTracer(),
		debugLog:   func(format string, args ...interface{}) {},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parent returns the parent the registry derives children from.
func (r *Registry) Parent() Parent {
	return r.parent
}

// Open spawns a worker and returns its ID. The record is created only once
// the backend reports the child ready, so a failed spawn never shows up.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (string, error) {
	handOver := req.Reservation
	fail := func(result string, err error) (string, error) {
		if handOver != nil {
			r.releaseReservation(*handOver)
		}
		r.metrics.WorkerOpened(result)
		r.debugLog("[worker.Open] rejected goal=%q: %v", truncate(req.Goal, 60), err)
		return "", err
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return fail("closed", ErrClosed)
	}
	if strings.TrimSpace(req.Goal) == "" {
		return fail("invalid", ErrEmptyGoal)
	}
	cfg, err := deriveConfig(r.parent, req)
	if err != nil {
		return fail("invalid", err)
	}

	var res governor.Reservation
	if handOver != nil {
		res = *handOver
	} else {
		res, err = r.governor.Reserve(ctx, req.ParentDepth, false)
		switch {
		case errors.Is(err, governor.ErrDepthExceeded):
			return fail("depth_exceeded", fmt.Errorf("%w: %w", ErrDepthExceeded, err))
		case errors.Is(err, governor.ErrWouldBlock):
			return fail("concurrency_unavailable", fmt.Errorf("%w: %w", ErrConcurrencyUnavailable, err))
		case err != nil:
			return fail("error", err)
		}
		handOver = &res
	}

	id := uuid.New().String()
	conv, err := r.spawner.Spawn(ctx, session.Config{
		SubagentID:       id,
		Depth:            res.Depth.Depth(),
		Model:            cfg.Model,
		WorkingDirectory: cfg.WorkingDirectory,
		Instructions:     cfg.Instructions,
		Sandbox:          cfg.Sandbox,
	})
	if err != nil {
		r.events.Emit(events.Event{
			Type:    events.EventSubagentError,
			TaskID:  req.TaskID,
			State:   string(models.WorkerError),
			Message: "Subagent spawn failed",
			Error:   err.Error(),
		})
		return fail("spawn_error", &SpawnError{Err: err})
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = r.parent.ID
	}
	now := r.now()
	h := &handle{
		w: models.Worker{
			ID:           id,
			ParentID:     parentID,
			Depth:        res.Depth.Depth(),
			TaskID:       req.TaskID,
			Goal:         req.Goal,
			Config:       cfg,
			State:        models.WorkerActive,
			CreatedAt:    now,
			LastActivity: now,
		},
		conv:        conv,
		reservation: res,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conv.Close(ctx)
		return fail("closed", ErrClosed)
	}
	r.workers[id] = h
	r.mailbox.Open(id)
	if cfg.MaxIdleRuntime > 0 {
		h.idle = time.AfterFunc(cfg.MaxIdleRuntime, func() { r.expire(id, h) })
	}
	r.mu.Unlock()

	r.metrics.WorkerOpened("ok")
	r.debugLog("[worker.Open] opened %s depth=%d task=%s sandbox=%s", id, h.w.Depth, req.TaskID, cfg.Sandbox)
	r.events.Emit(events.Event{
		Type:       events.EventSubagentOpened,
		TaskID:     req.TaskID,
		SubagentID: id,
		State:      string(models.WorkerActive),
		Message:    fmt.Sprintf("Subagent %s opened", id),
	})
	return id, nil
}

// Reply sends a message to a worker. In blocking mode it waits for the
// turn and returns the reply. In nonblocking mode it returns at once and
// the reply, or the error, is appended to the mailbox exactly once.
func (r *Registry) Reply(ctx context.Context, id, message string, mode models.Mode) (ReplyResult, error) {
	mode = mode.OrDefault()
	if !mode.Valid() {
		return ReplyResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	r.mu.Lock()
	h, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return ReplyResult{}, fmt.Errorf("subagent %s: %w", id, models.ErrNotFound)
	}
	if h.w.State.IsTerminal() {
		state, reason := h.w.State, h.w.Error
		r.mu.Unlock()
		if reason != "" {
			return ReplyResult{}, fmt.Errorf("subagent %s is %s (%s): %w", id, state, reason, ErrWorkerTerminal)
		}
		return ReplyResult{}, fmt.Errorf("subagent %s is %s: %w", id, state, ErrWorkerTerminal)
	}
	if h.turnDone != nil {
		r.mu.Unlock()
		return ReplyResult{}, fmt.Errorf("subagent %s: %w", id, ErrTurnInProgress)
	}
	if limit := h.w.Config.MaxTurns; limit > 0 && h.w.Turns >= limit {
		r.mu.Unlock()
		return ReplyResult{}, fmt.Errorf("subagent %s: %w (%d)", id, ErrTurnLimit, limit)
	}
	h.w.Turns++
	turn := h.w.Turns
	// The idle clock only runs between turns.
	h.w.LastActivity = r.now()
	if h.idle != nil {
		h.idle.Stop()
	}

	parent := r.baseCtx
	if mode == models.ModeBlocking {
		parent = ctx
	}
	turnCtx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	h.turnCancel = cancel
	h.turnDone = done
	conv := h.conv
	r.mu.Unlock()

	run := func() (session.Reply, error) {
		defer cancel()
		spanCtx, span := r.tracer.Start(turnCtx, "subagent.turn", trace.WithAttributes(
			attribute.String("subagent.id", id),
			attribute.String("subagent.mode", string(mode)),
			attribute.Int("subagent.turn", turn),
		))
		start := r.now()
		reply, err := conv.Turn(spanCtx, message)
		reply, err = r.finishTurn(id, h, mode, reply, err, done)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("subagent.reply_kind", string(reply.Kind)))
		}
		span.End()
		r.metrics.TurnCompleted(string(mode), string(reply.Kind), r.now().Sub(start))
		return reply, err
	}

	if mode == models.ModeNonBlocking {
		go run()
		return ReplyResult{Accepted: true}, nil
	}

	reply, err := run()
	if err != nil {
		return ReplyResult{}, fmt.Errorf("subagent %s turn: %w", id, err)
	}
	return ReplyResult{Kind: reply.Kind, Reply: reply.Text}, nil
}

// finishTurn records the outcome of a turn, restarts the idle clock and
// closes done once its events are out.
func (r *Registry) finishTurn(id string, h *handle, mode models.Mode, reply session.Reply, turnErr error, done chan struct{}) (session.Reply, error) {
	var emit []events.Event

	r.mu.Lock()
	h.turnCancel = nil
	h.turnDone = nil
	live := r.workers[id] == h

	switch {
	case turnErr != nil && live && !h.w.State.IsTerminal():
		r.terminateLocked(h, models.WorkerError, turnErr.Error())
		emit = append(emit, events.Event{
			Type:       events.EventSubagentError,
			TaskID:     h.w.TaskID,
			SubagentID: id,
			State:      string(models.WorkerError),
			Message:    fmt.Sprintf("Subagent %s failed", id),
			Error:      turnErr.Error(),
		})
	case turnErr == nil && live:
		h.w.LastActivity = r.now()
		if h.idle != nil && !h.w.State.IsTerminal() {
			h.idle.Reset(h.w.Config.MaxIdleRuntime)
		}
		if reply.Kind == models.NotifyCompleted {
			r.terminateLocked(h, models.WorkerCompleted, "")
		}
		emit = append(emit, events.Event{
			Type:       events.EventSubagentReplied,
			TaskID:     h.w.TaskID,
			SubagentID: id,
			State:      string(h.w.State),
			Message:    fmt.Sprintf("Subagent %s replied", id),
		})
	}

	if live && h.w.State.IsTerminal() && !h.convClosed {
		h.convClosed = true
		go h.conv.Close(context.Background())
	}
	if live {
		switch {
		case turnErr != nil:
			r.mailbox.Enqueue(id, models.NotifyError, turnErr.Error())
		case mode == models.ModeNonBlocking:
			r.mailbox.Enqueue(id, reply.Kind, reply.Text)
		}
	}
	r.mu.Unlock()

	for _, e := range emit {
		r.events.Emit(e)
	}
	close(done)
	if turnErr != nil {
		return session.Reply{Kind: models.NotifyError, Text: turnErr.Error()}, turnErr
	}
	return reply, nil
}

// expire fires from the idle timer. A fire that raced with a turn starting
// is ignored; finishTurn re-arms the timer. A stale fire, one that raced with
// new activity, re-arms the timer for the remaining time instead.
func (r *Registry) expire(id string, h *handle) {
	r.mu.Lock()
	if r.workers[id] != h || h.w.State.IsTerminal() || h.turnDone != nil {
		r.mu.Unlock()
		return
	}
	timeout := h.w.Config.MaxIdleRuntime
	if idleFor := r.now().Sub(h.w.LastActivity); idleFor < timeout {
		h.idle.Reset(timeout - idleFor)
		r.mu.Unlock()
		return
	}

	reason := fmt.Sprintf("idle for %s with no activity", timeout)
	r.mailbox.Enqueue(id, models.NotifyError, fmt.Sprintf("%v: %s", ErrIdleTimeout, reason))
	r.terminateLocked(h, models.WorkerError, reason)
	r.mu.Unlock()

	log.Printf("[worker] subagent %s idle timeout after %s", id, timeout)
	r.events.Emit(events.Event{
		Type:       events.EventSubagentError,
		TaskID:     h.w.TaskID,
		SubagentID: id,
		State:      string(models.WorkerError),
		Message:    fmt.Sprintf("Subagent %s timed out", id),
		Error:      reason,
	})
}

// terminateLocked moves a worker to a terminal state and tears down its
// session and resources. The record stays so its mailbox remains readable.
func (r *Registry) terminateLocked(h *handle, state models.WorkerState, reason string) {
	h.w.State = state
	h.w.Error = reason
	if h.idle != nil {
		h.idle.Stop()
	}
	r.releaseLocked(h)
	if !h.convClosed && h.turnDone == nil {
		h.convClosed = true
		go h.conv.Close(context.Background())
	}
}

// releaseLocked returns the worker's reservation once.
func (r *Registry) releaseLocked(h *handle) {
	if h.released {
		return
	}
	h.released = true
	r.releaseReservation(h.reservation)
}

func (r *Registry) releaseReservation(res governor.Reservation) {
	if err := r.governor.Release(res); err != nil {
		log.Printf("[worker] WARNING: release reservation: %v", err)
	}
}

// End tears a worker down and returns its final snapshot. A second End for
// the same ID returns ErrNotFound and releases nothing.
func (r *Registry) End(ctx context.Context, id string, persist bool) (models.Worker, error) {
	r.mu.Lock()
	h, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return models.Worker{}, fmt.Errorf("subagent %s: %w", id, models.ErrNotFound)
	}
	delete(r.workers, id)

	if h.idle != nil {
		h.idle.Stop()
	}
	if !h.w.State.IsTerminal() {
		h.w.State = models.WorkerCompleted
	}
	r.releaseLocked(h)

	cancel := h.turnCancel
	closeConv := !h.convClosed
	h.convClosed = true
	h.w.UnreadCount = r.mailbox.UnreadCount(id)
	h.w.EndedAt = r.now()
	snap := h.w
	history := r.mailbox.Drop(id)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closeConv {
		if err := h.conv.Close(ctx); err != nil {
			log.Printf("[worker] WARNING: close subagent %s: %v", id, err)
		}
	}
	if persist && r.store != nil {
		if err := r.store.SaveWorker(snap, history); err != nil {
			log.Printf("[worker] WARNING: persist subagent %s: %v", id, err)
		}
	}

	r.metrics.WorkerEnded(string(snap.State))
	r.debugLog("[worker.End] ended %s state=%s persist=%v", id, snap.State, persist)
	r.events.Emit(events.Event{
		Type:       events.EventSubagentEnded,
		TaskID:     snap.TaskID,
		SubagentID: id,
		State:      string(snap.State),
		Message:    fmt.Sprintf("Subagent %s ended", id),
		Error:      snap.Error,
	})
	return snap, nil
}

// Wait blocks until the worker has no turn in flight and returns its
// snapshot.
func (r *Registry) Wait(ctx context.Context, id string) (models.Worker, error) {
	r.mu.Lock()
	h, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return models.Worker{}, fmt.Errorf("subagent %s: %w", id, models.ErrNotFound)
	}
	done := h.turnDone
	r.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return models.Worker{}, ctx.Err()
		}
	}
	return r.Get(id)
}

// Get returns a snapshot of a live worker.
func (r *Registry) Get(id string) (models.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.workers[id]
	if !ok {
		return models.Worker{}, fmt.Errorf("subagent %s: %w", id, models.ErrNotFound)
	}
	return r.snapshotLocked(id, h), nil
}

// List returns every live worker, most recent activity first.
func (r *Registry) List() []models.Worker {
	r.mu.Lock()
	out := make([]models.Worker, 0, len(r.workers))
	for id, h := range r.workers {
		out = append(out, r.snapshotLocked(id, h))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Count returns the number of live workers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *Registry) snapshotLocked(id string, h *handle) models.Worker {
	w := h.w
	w.UnreadCount = r.mailbox.UnreadCount(id)
	return w
}

// Mailbox lists a worker's notifications, most recent first.
func (r *Registry) Mailbox(id string, onlyUnread bool) ([]models.Notification, error) {
	return r.mailbox.List(id, onlyUnread)
}

// Read returns one notification and marks it read.
func (r *Registry) Read(id, mailID string) (models.Notification, error) {
	return r.mailbox.Read(id, mailID)
}

// Latest returns a worker's most recent notification.
func (r *Registry) Latest(id string) (models.Notification, bool) {
	return r.mailbox.Latest(id)
}

// Inbox returns notifications across all live workers, most recent first.
func (r *Registry) Inbox(onlyUnread, markRead bool) []models.Notification {
	return r.mailbox.Inbox(onlyUnread, markRead)
}

// History returns a persisted snapshot and its notifications.
func (r *Registry) History(id string) (models.Worker, []models.Notification, error) {
	if r.store == nil {
		return models.Worker{}, nil, fmt.Errorf("subagent %s: %w", id, models.ErrNotFound)
	}
	w, history, err := r.store.GetWorker(id)
	if err != nil {
		return models.Worker{}, nil, fmt.Errorf("load subagent %s: %w", id, err)
	}
	if w == nil {
		return models.Worker{}, nil, fmt.Errorf("subagent %s: %w", id, models.ErrNotFound)
	}
	return *w, history, nil
}

// Close ends every live worker and rejects further opens.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			_, err := r.End(gctx, id, false)
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	r.baseCancel()
	return err
}

// truncate shortens s to at most n runes for log lines.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
