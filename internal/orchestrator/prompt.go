package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/delegate/pkg/models"
)

type dependencyOutput struct {
	TaskID string
	Output string
}

// buildTaskPrompt renders the first message a task's worker receives.
func buildTaskPrompt(p *models.Plan, t models.Task, deps []dependencyOutput) string {
	var sb strings.Builder

	sb.WriteString("## Objective\n")
	sb.WriteString(p.Objective)
	sb.WriteString("\n\n")

	if len(p.Assumptions) > 0 {
		sb.WriteString("## Assumptions\n")
		writeList(&sb, p.Assumptions)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## Your task (%s)\n", t.ID)
	sb.WriteString(t.Goal)
	sb.WriteString("\n\n")

	if t.InScope != "" {
		sb.WriteString("## In scope\n")
		sb.WriteString(t.InScope)
		sb.WriteString("\n\n")
	}
	if t.OutOfScope != "" {
		sb.WriteString("## Out of scope\n")
		sb.WriteString(t.OutOfScope)
		sb.WriteString("\n\n")
	}
	if len(t.Deliverables) > 0 {
		sb.WriteString("## Deliverables\n")
		writeList(&sb, t.Deliverables)
		sb.WriteString("\n")
	}
	if len(t.Resources) > 0 {
		sb.WriteString("## Resources\n")
		writeList(&sb, t.Resources)
		sb.WriteString("\n")
	}
	if len(t.Risks) > 0 {
		sb.WriteString("## Risks\n")
		writeList(&sb, t.Risks)
		sb.WriteString("\n")
	}

	if len(deps) > 0 {
		sb.WriteString("## Results from completed dependencies\n")
		for _, d := range deps {
			fmt.Fprintf(&sb, "### %s\n", d.TaskID)
			if out := strings.TrimSpace(d.Output); out != "" {
				sb.WriteString(out)
			} else {
				sb.WriteString("(no output)")
			}
			sb.WriteString("\n\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeList(sb *strings.Builder, items []string) {
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}
