package tools

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// ToolsFor gives a spawned child the delegation tools, bound to its own ID
// and depth so the depth cap applies to anything it opens.
func (e *Executor) ToolsFor(cfg session.Config) session.Toolbox {
	return &toolbox{exec: e.ForWorker(models.Worker{ID: cfg.SubagentID, Depth: cfg.Depth})}
}

type toolbox struct {
	exec *Executor
}

func (t *toolbox) Definitions() []anthropic.ToolUnionParam {
	return Definitions()
}

func (t *toolbox) Execute(ctx context.Context, name string, input json.RawMessage) session.ToolResult {
	res := t.exec.Execute(ctx, name, input)
	return session.ToolResult{Content: res.Content, IsError: res.IsError}
}

var _ session.ToolProvider = (*Executor)(nil)
