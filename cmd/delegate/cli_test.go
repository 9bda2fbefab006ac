package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/delegate/internal/config"
	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/internal/logging"
	"github.com/ShayCichocki/delegate/internal/orchestrator"
	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/pkg/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate kept %q", got)
	}
	if got := truncate("a long line of text", 10); got != "a long ..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("héllo wörld ünïcode", 8); got != "héllo..." {
		t.Errorf("truncate split a rune: %q", got)
	}
	if got := firstLine("  first\nsecond"); got != "first" {
		t.Errorf("firstLine = %q", got)
	}
}

func TestNewSpawner(t *testing.T) {
	cfg := config.Default()

	cfg.Backend = config.BackendEcho
	s, err := newSpawner(cfg, nil)
	if err != nil {
		t.Fatalf("echo backend: %v", err)
	}
	if _, ok := s.(session.Echo); !ok {
		t.Errorf("echo backend returned %T", s)
	}

	cfg.Backend = config.BackendCommand
	s, err = newSpawner(cfg, nil)
	if err != nil {
		t.Fatalf("command backend: %v", err)
	}
	if _, ok := s.(*session.CommandSpawner); !ok {
		t.Errorf("command backend returned %T", s)
	}

	cfg.Backend = "carrier-pigeon"
	if _, err := newSpawner(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestRenderSummary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := renderSummary(&models.RunSummary{
		RunID:      "run-1",
		PlanID:     "plan-1",
		Status:     models.RunFailed,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Tasks: []models.TaskOutcome{
			{TaskID: "parser", State: models.TaskCompleted, Output: "done\nmore"},
			{TaskID: "render", State: models.TaskFailed, Error: "boom"},
			{TaskID: "integrate", State: models.TaskBlocked, Error: "dependency render failed"},
		},
	})

	for _, want := range []string{"run-1", "parser", "render", "integrate", "boom", "1 completed", "1 failed", "1 blocked"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "more") {
		t.Errorf("summary should only show the first output line:\n%s", out)
	}
}

func TestResolvePlan(t *testing.T) {
	orch, err := orchestrator.New(orchestrator.Config{MaxConcurrency: 2, MaxDepth: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer orch.Close(context.Background())

	path := filepath.Join(t.TempDir(), "plan.yaml")
	body := `objective: Ship it
tasks:
  - id: a
    goal: Do a
  - id: b
    goal: Do b
    dependencies: [a]
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	id, err := resolvePlan(orch, path)
	if err != nil {
		t.Fatalf("resolve file: %v", err)
	}
	again, err := resolvePlan(orch, id)
	if err != nil {
		t.Fatalf("resolve id: %v", err)
	}
	if again != id {
		t.Errorf("resolvePlan(%q) = %q", id, again)
	}

	if _, err := resolvePlan(orch, "no-such-plan"); err == nil {
		t.Error("expected error for unknown plan")
	}
}

func TestEventLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := eventLogSink(logging.NewWriterLogger(&buf))

	sink.Publish(events.Event{Type: events.EventTaskStarted, State: "running", Message: "Task A started"})
	sink.Publish(events.Event{Type: events.EventTaskFailed, State: "failed", Message: "Task B failed", Error: "boom"})

	out := buf.String()
	for _, want := range []string{"[event] task_started running: Task A started", "[event] task_failed failed: Task B failed (boom)"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug log missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPlan_GroupsWaves(t *testing.T) {
	out := renderPlan(&models.Plan{
		ID:          "plan-1",
		Objective:   "Ship it",
		Concurrency: 2,
		Tasks: []models.Task{
			{ID: "integrate", Goal: "Wire it up", Dependencies: []string{"parser", "render"}},
			{ID: "parser", Goal: "Parse"},
			{ID: "render", Goal: "Render"},
		},
	})

	wave1 := strings.Index(out, "wave 1")
	wave2 := strings.Index(out, "wave 2")
	parser := strings.Index(out, "○ parser")
	integrate := strings.Index(out, "○ integrate")
	if wave1 < 0 || wave2 < 0 || parser < 0 || integrate < 0 {
		t.Fatalf("plan render missing rows:\n%s", out)
	}
	if !(wave1 < parser && parser < wave2 && wave2 < integrate) {
		t.Errorf("integrate should render in the second wave:\n%s", out)
	}
	if strings.Contains(out, "wave 3") {
		t.Errorf("unexpected third wave:\n%s", out)
	}
}
