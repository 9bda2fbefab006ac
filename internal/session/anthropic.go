package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	defaultMaxTokens = 8192
	// maxToolRounds caps tool-use round trips within one turn.
	maxToolRounds = 20
)

// ToolResult is the outcome of one tool call made by a child.
type ToolResult struct {
	Content string
	IsError bool
}

// Toolbox is the set of tools one child conversation may call.
type Toolbox interface {
	Definitions() []anthropic.ToolUnionParam
	Execute(ctx context.Context, name string, input json.RawMessage) ToolResult
}

// ToolProvider hands each spawned child its toolbox.
type ToolProvider interface {
	ToolsFor(cfg Config) Toolbox
}

// AnthropicSpawner starts children as multi-turn Messages API conversations.
type AnthropicSpawner struct {
	client    *Client
	maxTokens int64
	tools     ToolProvider
}

// NewAnthropicSpawner creates a spawner on an existing client.
func NewAnthropicSpawner(client *Client, maxTokens int64) *AnthropicSpawner {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicSpawner{client: client, maxTokens: maxTokens}
}

// SetTools gives children spawned from now on a toolbox.
func (s *AnthropicSpawner) SetTools(p ToolProvider) {
	s.tools = p
}

// Spawn prepares a conversation. No request is made until the first turn.
func (s *AnthropicSpawner) Spawn(ctx context.Context, cfg Config) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := s.client.Model()
	if cfg.Model != "" {
		model = s.client.TranslateModel(anthropic.Model(cfg.Model))
	}
	conv := &anthropicConversation{
		client:    s.client,
		model:     model,
		maxTokens: s.maxTokens,
		system:    systemPrompt(cfg),
	}
	if s.tools != nil {
		conv.tools = s.tools.ToolsFor(cfg)
	}
	return conv, nil
}

type anthropicConversation struct {
	client    *Client
	model     anthropic.Model
	maxTokens int64
	system    string
	tools     Toolbox

	// mu serializes turns; Close only flips closed so it never waits on one.
	mu      sync.Mutex
	history []anthropic.MessageParam
	closed  atomic.Bool
}

// Turn sends input and runs tool calls until the model ends its turn.
func (c *anthropicConversation) Turn(ctx context.Context, input string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return Reply{}, fmt.Errorf("conversation closed")
	}

	messages := append(append([]anthropic.MessageParam(nil), c.history...),
		anthropic.NewUserMessage(anthropic.NewTextBlock(input)))

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: c.system},
		},
	}
	if c.tools != nil {
		params.Tools = c.tools.Definitions()
	}

	for round := 0; round < maxToolRounds; round++ {
		params.Messages = messages
		resp, err := c.client.inner.Messages.New(ctx, params)
		if err != nil {
			return Reply{}, fmt.Errorf("API error: %w", err)
		}
		c.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var sb strings.Builder
		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))
			case anthropic.ToolUseBlock:
				result := ToolResult{Content: fmt.Sprintf("tool %s is not available", variant.Name), IsError: true}
				if c.tools != nil {
					result = c.tools.Execute(ctx, variant.Name, variant.Input)
				}
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, result.Content, result.IsError))
			}
		}

		if len(toolResultBlocks) > 0 {
			messages = append(messages,
				anthropic.NewAssistantMessage(assistantBlocks...),
				anthropic.NewUserMessage(toolResultBlocks...))
			continue
		}

		text := sb.String()
		if text == "" {
			return Reply{}, fmt.Errorf("empty response (stop reason %s)", resp.StopReason)
		}
		c.history = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		return Classify(text), nil
	}
	return Reply{}, fmt.Errorf("turn exceeded %d tool rounds", maxToolRounds)
}

func (c *anthropicConversation) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

// systemPrompt renders the child's instructions plus its environment.
func systemPrompt(cfg Config) string {
	var sb strings.Builder
	sb.WriteString(cfg.Instructions)
	sb.WriteString("\n\n## Environment\n")
	if cfg.WorkingDirectory != "" {
		fmt.Fprintf(&sb, "- Working directory: %s\n", cfg.WorkingDirectory)
	}
	fmt.Fprintf(&sb, "- Sandbox policy: %s\n", cfg.Sandbox)
	return sb.String()
}
