package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/delegate/pkg/models"
)

var workerLimit int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Inspect persisted subagents",
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted subagents, most recently ended first",
	Args:  cobra.NoArgs,
	RunE:  runWorkerList,
}

var workerHistoryCmd = &cobra.Command{
	Use:   "history <subagent-id>",
	Short: "Show a persisted subagent and its notifications",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkerHistory,
}

func init() {
	workerListCmd.Flags().IntVarP(&workerLimit, "limit", "n", 20, "Maximum subagents to list (0 for all)")

	workerCmd.AddCommand(workerListCmd)
	workerCmd.AddCommand(workerHistoryCmd)
}

func runWorkerList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openStore(cfg, root)
	if err != nil {
		return err
	}
	defer db.Close()

	workers, err := db.ListWorkers(workerLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(workers) == 0 {
		fmt.Fprintln(out, "No persisted subagents.")
		return nil
	}
	for _, w := range workers {
		fmt.Fprintf(out, "%s  %s  %s\n", w.ID, workerStateStyle(w.State).Render(string(w.State)), truncate(firstLine(w.Goal), 60))
	}
	return nil
}

func runWorkerHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}
	db, err := openStore(cfg, root)
	if err != nil {
		return err
	}
	defer db.Close()

	w, history, err := db.GetWorker(args[0])
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("subagent %s: %w", args[0], models.ErrNotFound)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Subagent "+w.ID))
	fmt.Fprintf(out, "State:   %s\n", workerStateStyle(w.State).Render(string(w.State)))
	if w.TaskID != "" {
		fmt.Fprintf(out, "Task:    %s\n", w.TaskID)
	}
	fmt.Fprintf(out, "Depth:   %d\n", w.Depth)
	fmt.Fprintf(out, "Sandbox: %s\n", w.Config.Sandbox)
	if w.Config.Model != "" {
		fmt.Fprintf(out, "Model:   %s\n", w.Config.Model)
	}
	fmt.Fprintf(out, "Goal:    %s\n", firstLine(w.Goal))
	if w.Error != "" {
		fmt.Fprintf(out, "Error:   %s\n", failedStyle.Render(w.Error))
	}

	if len(history) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	for _, n := range history {
		fmt.Fprintf(out, "%s %-9s %s\n",
			faintStyle.Render(n.Timestamp.Format("15:04:05")),
			n.Kind,
			truncate(firstLine(n.Content), 80))
	}
	return nil
}

func workerStateStyle(s models.WorkerState) lipgloss.Style {
	switch s {
	case models.WorkerActive, models.WorkerSpawning:
		return runningStyle
	case models.WorkerCompleted:
		return doneStyle
	default:
		return failedStyle
	}
}
