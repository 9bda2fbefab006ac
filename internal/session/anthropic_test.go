package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// fakeMessages serves canned Messages API responses in order and keeps the
// request bodies.
type fakeMessages struct {
	mu        sync.Mutex
	responses []string
	requests  []string
}

func (f *fakeMessages) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, string(body))
	i := len(f.requests) - 1
	f.mu.Unlock()
	if i >= len(f.responses) {
		http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"no more responses"}}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, f.responses[i])
}

func messageJSON(stopReason, content string) string {
	return fmt.Sprintf(`{"id":"msg_test","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",`+
		`"content":[%s],"stop_reason":%q,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`,
		content, stopReason)
}

type recordingToolbox struct {
	calls []string
}

func (b *recordingToolbox) Definitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{{
		OfTool: &anthropic.ToolParam{
			Name:        "subagent_list",
			InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]interface{}{}},
		},
	}}
}

func (b *recordingToolbox) Execute(ctx context.Context, name string, input json.RawMessage) ToolResult {
	b.calls = append(b.calls, name)
	return ToolResult{Content: `{"subagents":["worker-7"]}`}
}

type staticTools struct{ box Toolbox }

func (s staticTools) ToolsFor(cfg Config) Toolbox { return s.box }

func newTestSpawner(t *testing.T, fake *fakeMessages) *AnthropicSpawner {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := NewClient(ClientConfig{APIKey: "sk-ant-test-key-000000000", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return NewAnthropicSpawner(client, 1024)
}

func TestAnthropicTurn_RunsToolCalls(t *testing.T) {
	fake := &fakeMessages{responses: []string{
		messageJSON("tool_use", `{"type":"tool_use","id":"toolu_1","name":"subagent_list","input":{}}`),
		messageJSON("end_turn", `{"type":"text","text":"TASK COMPLETE: one worker running"}`),
	}}
	spawner := newTestSpawner(t, fake)
	box := &recordingToolbox{}
	spawner.SetTools(staticTools{box: box})

	conv, err := spawner.Spawn(context.Background(), Config{SubagentID: "w1", Instructions: "Help."})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	reply, err := conv.Turn(context.Background(), "How many workers?")
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	if reply.Kind != models.NotifyCompleted || reply.Text != "one worker running" {
		t.Errorf("reply = %+v", reply)
	}
	if len(box.calls) != 1 || box.calls[0] != "subagent_list" {
		t.Errorf("tool calls = %v", box.calls)
	}
	if len(fake.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(fake.requests))
	}
	if !strings.Contains(fake.requests[0], `"subagent_list"`) {
		t.Errorf("first request did not offer the tools: %s", fake.requests[0])
	}
	if !strings.Contains(fake.requests[1], `"tool_result"`) || !strings.Contains(fake.requests[1], "worker-7") {
		t.Errorf("second request missing tool result: %s", fake.requests[1])
	}
}

func TestAnthropicTurn_KeepsHistory(t *testing.T) {
	fake := &fakeMessages{responses: []string{
		messageJSON("end_turn", `{"type":"text","text":"Working on it"}`),
		messageJSON("end_turn", `{"type":"text","text":"QUESTION: which branch?"}`),
	}}
	spawner := newTestSpawner(t, fake)

	conv, err := spawner.Spawn(context.Background(), Config{SubagentID: "w1", Instructions: "Help."})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if _, err := conv.Turn(context.Background(), "first"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	reply, err := conv.Turn(context.Background(), "second")
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if reply.Kind != models.NotifyQuestion {
		t.Errorf("reply kind = %s, want question", reply.Kind)
	}
	if strings.Contains(fake.requests[0], `"tools"`) {
		t.Errorf("request without a toolbox offered tools: %s", fake.requests[0])
	}
	if !strings.Contains(fake.requests[1], "Working on it") || !strings.Contains(fake.requests[1], "first") {
		t.Errorf("second request missing history: %s", fake.requests[1])
	}
}
