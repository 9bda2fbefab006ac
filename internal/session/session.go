// Package session defines the child-conversation collaborator that the
// worker registry drives, and its backends.
package session

import (
	"context"
	"strings"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// Config is everything a backend needs to start a child conversation.
type Config struct {
	SubagentID string
	// Depth is the child's nesting level; the root conversation is 0.
	Depth            int
	Model            string
	WorkingDirectory string
	Instructions     string
	Sandbox          models.SandboxPolicy
}

// Reply is the outcome of one turn.
type Reply struct {
	Kind models.NotificationKind
	Text string
}

// Conversation is a live child session. Turns are never issued concurrently
// on the same conversation.
type Conversation interface {
	// Turn sends input and blocks until the child's reply is complete.
	Turn(ctx context.Context, input string) (Reply, error)
	// Close releases the session. It may be called while a turn is in flight.
	Close(ctx context.Context) error
}

// Spawner turns a config into a running conversation. Spawn returns only
// once the child is ready to accept turns.
type Spawner interface {
	Spawn(ctx context.Context, cfg Config) (Conversation, error)
}

// Markers children use to tag a reply.
const (
	CompleteMarker = "TASK COMPLETE:"
	QuestionMarker = "QUESTION:"
)

// HelperGuidance is appended to the parent's instructions for every child.
const HelperGuidance = `## Scoped helper
You are a subagent working on one narrowly scoped task for a parent agent.
Stay inside the goal and scope you were given. Do not start unrelated work.
Your parent reads your replies asynchronously, so make each reply self-contained.
When the task is finished, start your reply with "` + CompleteMarker + `" followed by a short summary of what you produced.
If you cannot continue without input, start your reply with "` + QuestionMarker + `" followed by one precise question.`

// Classify maps reply text to a notification kind using the markers in
// HelperGuidance. The marker is stripped from the returned text.
func Classify(text string) Reply {
	trimmed := strings.TrimSpace(text)
	switch {
	case hasMarker(trimmed, CompleteMarker):
		return Reply{Kind: models.NotifyCompleted, Text: stripMarker(trimmed, CompleteMarker)}
	case hasMarker(trimmed, QuestionMarker):
		return Reply{Kind: models.NotifyQuestion, Text: stripMarker(trimmed, QuestionMarker)}
	default:
		return Reply{Kind: models.NotifyMessage, Text: trimmed}
	}
}

func hasMarker(s, marker string) bool {
	return len(s) >= len(marker) && strings.EqualFold(s[:len(marker)], marker)
}

func stripMarker(s, marker string) string {
	return strings.TrimSpace(s[len(marker):])
}
