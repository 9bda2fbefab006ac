package worker

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/delegate/internal/session"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// Parent describes the conversation workers are opened from.
type Parent struct {
	ID               string
	Instructions     string
	Model            string
	WorkingDirectory string
	Sandbox          models.SandboxPolicy
}

// DeriveInstructions builds a child's instructions: the parent's text
// followed by the fixed helper guidance, the role prompt and the goal.
func DeriveInstructions(parent, rolePrompt, goal string) string {
	var sb strings.Builder
	if p := strings.TrimSpace(parent); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	sb.WriteString(session.HelperGuidance)
	if r := strings.TrimSpace(rolePrompt); r != "" {
		sb.WriteString("\n\n## Role\n")
		sb.WriteString(r)
	}
	sb.WriteString("\n\n## Goal\n")
	sb.WriteString(strings.TrimSpace(goal))
	return sb.String()
}

// deriveConfig resolves the child's effective config from the parent and
// the request overrides.
func deriveConfig(parent Parent, req OpenRequest) (models.WorkerConfig, error) {
	base := parent.Sandbox
	if base == "" {
		base = models.SandboxWorkspaceWrite
	}
	sandbox, err := base.Narrow(req.SandboxOverride)
	if err != nil {
		return models.WorkerConfig{}, fmt.Errorf("%w: %v", ErrSandboxWidening, err)
	}

	cfg := models.WorkerConfig{
		Model:            parent.Model,
		WorkingDirectory: parent.WorkingDirectory,
		Instructions:     DeriveInstructions(parent.Instructions, req.RolePrompt, req.Goal),
		Sandbox:          sandbox,
		MaxTurns:         req.MaxTurns,
		MaxIdleRuntime:   req.MaxIdleRuntime,
	}
	if req.ModelOverride != "" {
		cfg.Model = req.ModelOverride
	}
	if req.WorkingDirectory != "" {
		cfg.WorkingDirectory = req.WorkingDirectory
	}
	return cfg, nil
}
