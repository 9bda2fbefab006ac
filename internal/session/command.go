package session

import (
	"context"
	"fmt"
	osexec "os/exec"
	"strings"
	"sync"

	"github.com/ShayCichocki/delegate/internal/exec"
)

// CommandSpawner runs each turn through an external agent CLI, for example
// "claude -p <prompt>", inside the child's working directory.
type CommandSpawner struct {
	runner exec.CommandRunner
	path   string
	args   []string
	// lookPath resolves path at spawn time; nil skips the check.
	lookPath func(string) (string, error)
}

// NewCommandSpawner creates a spawner for the given command.
func NewCommandSpawner(runner exec.CommandRunner, path string, args ...string) *CommandSpawner {
	return &CommandSpawner{
		runner:   runner,
		path:     path,
		args:     args,
		lookPath: osexec.LookPath,
	}
}

// Spawn checks the command is runnable. The process itself starts per turn.
func (s *CommandSpawner) Spawn(ctx context.Context, cfg Config) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.lookPath != nil {
		if _, err := s.lookPath(s.path); err != nil {
			return nil, fmt.Errorf("agent command %q: %w", s.path, err)
		}
	}
	return &commandConversation{spawner: s, cfg: cfg}, nil
}

type commandConversation struct {
	spawner *CommandSpawner
	cfg     Config

	mu         sync.Mutex
	transcript []string
}

func (c *commandConversation) Turn(ctx context.Context, input string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prompt := c.prompt(input)
	args := append(append([]string(nil), c.spawner.args...), prompt)
	out, err := c.spawner.runner.Run(ctx, c.cfg.WorkingDirectory, c.spawner.path, args...)
	if err != nil {
		return Reply{}, fmt.Errorf("%s: %w: %s", c.spawner.path, err, strings.TrimSpace(string(out)))
	}

	text := strings.TrimSpace(string(out))
	c.transcript = append(c.transcript, "Parent: "+input, "You: "+text)
	return Classify(text), nil
}

func (c *commandConversation) Close(ctx context.Context) error {
	return nil
}

// prompt flattens instructions, prior turns and the new input, since the
// command keeps no state between invocations.
func (c *commandConversation) prompt(input string) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt(c.cfg))
	if len(c.transcript) > 0 {
		sb.WriteString("\n## Conversation so far\n")
		for _, line := range c.transcript {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n## Message from parent\n")
	sb.WriteString(input)
	return sb.String()
}
