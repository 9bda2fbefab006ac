package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ShayCichocki/delegate/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantKind models.NotificationKind
		wantText string
	}{
		{"completion marker", "TASK COMPLETE: parser written", models.NotifyCompleted, "parser written"},
		{"marker is case insensitive", "task complete: ok", models.NotifyCompleted, "ok"},
		{"leading whitespace", "\n  QUESTION: which db?", models.NotifyQuestion, "which db?"},
		{"plain message", "still working on it", models.NotifyMessage, "still working on it"},
		{"marker mid-text is a message", "I will say TASK COMPLETE: later", models.NotifyMessage, "I will say TASK COMPLETE: later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got.Kind != tt.wantKind {
				t.Errorf("Classify(%q).Kind = %q, want %q", tt.text, got.Kind, tt.wantKind)
			}
			if got.Text != tt.wantText {
				t.Errorf("Classify(%q).Text = %q, want %q", tt.text, got.Text, tt.wantText)
			}
		})
	}
}

func TestHelperGuidanceMentionsMarkers(t *testing.T) {
	if !strings.Contains(HelperGuidance, CompleteMarker) || !strings.Contains(HelperGuidance, QuestionMarker) {
		t.Error("HelperGuidance must tell children about both reply markers")
	}
}

func TestEcho(t *testing.T) {
	conv, err := Echo{}.Spawn(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	r, err := conv.Turn(context.Background(), "build the thing\nwith details")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if r.Kind != models.NotifyCompleted || r.Text != "echo: build the thing" {
		t.Errorf("reply = %+v", r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conv.Turn(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Turn on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestScripted_RecordsSpawnsAndTurns(t *testing.T) {
	s := NewScripted(func(ctx context.Context, cfg Config, turn int, input string) (Reply, error) {
		if turn == 1 {
			return Reply{Kind: models.NotifyQuestion, Text: "which?"}, nil
		}
		return Reply{Kind: models.NotifyCompleted, Text: cfg.Model}, nil
	})

	conv, err := s.Spawn(context.Background(), Config{Model: "m1"})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	r1, _ := conv.Turn(context.Background(), "go")
	r2, _ := conv.Turn(context.Background(), "answer")
	if r1.Kind != models.NotifyQuestion || r2.Text != "m1" {
		t.Errorf("replies = %+v, %+v", r1, r2)
	}
	conv.Close(context.Background())

	if len(s.Spawned()) != 1 || s.Closed() != 1 {
		t.Errorf("spawned=%d closed=%d, want 1/1", len(s.Spawned()), s.Closed())
	}

	s.SpawnErr = func(Config) error { return errors.New("no capacity") }
	if _, err := s.Spawn(context.Background(), Config{}); err == nil {
		t.Error("Spawn with SpawnErr succeeded")
	}
}

type fakeRunner struct {
	calls   [][]string
	workDir string
	output  string
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	f.workDir = workDir
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.output), f.err
}

func TestCommandSpawner_Turn(t *testing.T) {
	runner := &fakeRunner{output: "TASK COMPLETE: wrote docs\n"}
	s := NewCommandSpawner(runner, "claude", "-p")
	s.lookPath = nil

	conv, err := s.Spawn(context.Background(), Config{
		WorkingDirectory: "/repo",
		Instructions:     "be brief",
		Sandbox:          models.SandboxReadOnly,
	})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	r, err := conv.Turn(context.Background(), "write the docs")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if r.Kind != models.NotifyCompleted || r.Text != "wrote docs" {
		t.Errorf("reply = %+v", r)
	}
	if runner.workDir != "/repo" {
		t.Errorf("workDir = %q, want /repo", runner.workDir)
	}
	call := runner.calls[0]
	if call[0] != "claude" || call[1] != "-p" {
		t.Errorf("command = %v, want claude -p <prompt>", call[:2])
	}
	prompt := call[2]
	for _, want := range []string{"be brief", "read-only", "write the docs"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// The second turn carries the transcript.
	conv.Turn(context.Background(), "now the changelog")
	if !strings.Contains(runner.calls[1][2], "You: TASK COMPLETE: wrote docs") {
		t.Errorf("second prompt lacks transcript:\n%s", runner.calls[1][2])
	}
}

func TestCommandSpawner_TurnError(t *testing.T) {
	runner := &fakeRunner{output: "boom", err: errors.New("exit status 1")}
	s := NewCommandSpawner(runner, "claude")
	s.lookPath = nil

	conv, _ := s.Spawn(context.Background(), Config{})
	if _, err := conv.Turn(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Turn error = %v, want command output in error", err)
	}
}

func TestCommandSpawner_MissingBinary(t *testing.T) {
	s := NewCommandSpawner(&fakeRunner{}, "definitely-not-a-real-binary-xyz")
	if _, err := s.Spawn(context.Background(), Config{}); err == nil {
		t.Error("Spawn with missing binary succeeded")
	}
}
