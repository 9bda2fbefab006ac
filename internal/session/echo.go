package session

import (
	"context"
	"strings"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// Echo is an offline backend: every turn completes immediately with the
// first line of its input. It backs dry runs.
type Echo struct{}

// Spawn returns a conversation that never fails.
func (Echo) Spawn(ctx context.Context, cfg Config) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return echoConversation{}, nil
}

type echoConversation struct{}

func (echoConversation) Turn(ctx context.Context, input string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(input), "\n")
	return Reply{Kind: models.NotifyCompleted, Text: "echo: " + line}, nil
}

func (echoConversation) Close(ctx context.Context) error { return nil }
