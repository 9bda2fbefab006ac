package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/delegate/internal/graph"
	"github.com/ShayCichocki/delegate/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	faintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")) // Green

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")) // Dark green

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	blockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")) // Orange
)

func stateStyle(s models.TaskState) lipgloss.Style {
	switch s {
	case models.TaskRunning, models.TaskEligible:
		return runningStyle
	case models.TaskCompleted:
		return doneStyle
	case models.TaskFailed:
		return failedStyle
	case models.TaskBlocked:
		return blockedStyle
	default:
		return faintStyle
	}
}

func stateSymbol(s models.TaskState) string {
	switch s {
	case models.TaskCompleted:
		return "✓"
	case models.TaskFailed:
		return "✗"
	case models.TaskBlocked:
		return "⊘"
	case models.TaskRunning:
		return "▶"
	case models.TaskEligible:
		return "…"
	default:
		return "○"
	}
}

func runStatusColor(s models.RunStatus) *color.Color {
	switch s {
	case models.RunCompleted:
		return color.New(color.FgGreen)
	case models.RunRunning:
		return color.New(color.FgCyan)
	case models.RunAborted, models.RunInterrupted:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// printStatus prints a status line with a colored symbol.
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// printProgress prints one progress event as a single line.
func printProgress(w io.Writer, ev models.ProgressEvent) {
	if ev.Summary != nil {
		return
	}
	ts := ev.Timestamp.Format("15:04:05")
	line := fmt.Sprintf("%s %-12s %s", stateSymbol(ev.Status), ev.TaskID, ev.Status)
	if ev.Message != "" && ev.Message != string(ev.Status) {
		line += "  " + faintStyle.Render(truncate(ev.Message, 80))
	}
	fmt.Fprintf(w, "%s %s\n", faintStyle.Render(ts), stateStyle(ev.Status).Render(line))
}

// renderSummary renders a run summary as a boxed table.
func renderSummary(s *models.RunSummary) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Run %s", s.RunID)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("plan %s · %s", s.PlanID, runStatusColor(s.Status).Sprint(s.Status)))
	if !s.FinishedAt.IsZero() && !s.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf(" · %s", formatDuration(s.FinishedAt.Sub(s.StartedAt))))
	}
	sb.WriteString("\n\n")

	width := len("task")
	for _, t := range s.Tasks {
		width = max(width, len(t.TaskID))
	}
	for _, t := range s.Tasks {
		row := fmt.Sprintf("%s %-*s  %-9s", stateSymbol(t.State), width, t.TaskID, t.State)
		sb.WriteString(stateStyle(t.State).Render(row))
		detail := t.Output
		if t.Error != "" {
			detail = t.Error
		}
		if detail != "" {
			sb.WriteString("  ")
			sb.WriteString(faintStyle.Render(truncate(firstLine(detail), 60)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n%d completed · %d failed · %d blocked",
		s.Count(models.TaskCompleted), s.Count(models.TaskFailed), s.Count(models.TaskBlocked)))
	return boxStyle.Render(sb.String())
}

// renderPlan renders a plan for review, tasks grouped into the waves they
// can start in.
func renderPlan(p *models.Plan) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Plan %s", p.ID)))
	sb.WriteString("\n")
	sb.WriteString(p.Objective)
	sb.WriteString("\n")
	sb.WriteString(faintStyle.Render(fmt.Sprintf("%d tasks · concurrency %d", len(p.Tasks), p.Concurrency)))
	sb.WriteString("\n")
	for _, a := range p.Assumptions {
		sb.WriteString(faintStyle.Render("assumes: " + a))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	byID := make(map[string]models.Task, len(p.Tasks))
	for _, t := range p.Tasks {
		byID[t.ID] = t
	}
	for i, layer := range planLayers(p) {
		sb.WriteString(faintStyle.Render(fmt.Sprintf("wave %d", i+1)))
		sb.WriteString("\n")
		for _, id := range layer {
			t := byID[id]
			sb.WriteString(fmt.Sprintf("○ %s  %s", t.ID, truncate(firstLine(t.Goal), 70)))
			if len(t.Dependencies) > 0 {
				sb.WriteString(faintStyle.Render(" ← " + strings.Join(t.Dependencies, ", ")))
			}
			sb.WriteString("\n")
		}
	}
	for _, w := range p.Warnings {
		sb.WriteString("\n")
		sb.WriteString(blockedStyle.Render("warning: " + w))
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// planLayers returns the plan's waves, or a single wave in declared order
// when the graph does not build.
func planLayers(p *models.Plan) [][]string {
	g := graph.New()
	if err := g.Build(p.Tasks); err == nil {
		if layers, err := g.Layers(); err == nil {
			return layers
		}
	}
	ids := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		ids[i] = t.ID
	}
	return [][]string{ids}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
