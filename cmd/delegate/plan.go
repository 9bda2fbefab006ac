package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/delegate/internal/config"
	"github.com/ShayCichocki/delegate/internal/orchestrator"
	"github.com/ShayCichocki/delegate/internal/plan"
	"github.com/ShayCichocki/delegate/pkg/models"
)

var (
	runConfirm     bool
	runConcurrency int
	runDry         bool
	listLimit      int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Submit, inspect and run plans",
}

var planSubmitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Validate a plan file and store it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanSubmit,
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show a stored plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored plans, newest first",
	Args:  cobra.NoArgs,
	RunE:  runPlanList,
}

var planRunCmd = &cobra.Command{
	Use:   "run <file|plan-id>",
	Short: "Run a plan",
	Long: `Run a plan file or a previously submitted plan.

Without --confirm the plan is validated and shown but nothing is spawned.
Use --dry to run against the offline echo backend.

Press Ctrl+C or run 'delegate stop' to abort; running subagents are ended
and unstarted tasks are reported as blocked.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanRun,
}

func init() {
	planRunCmd.Flags().BoolVarP(&runConfirm, "confirm", "y", false, "Start subagents (otherwise preview only)")
	planRunCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 0, "Override the plan's concurrency for this run")
	planRunCmd.Flags().BoolVar(&runDry, "dry", false, "Use the echo backend")
	planListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum plans to list (0 for all)")

	planCmd.AddCommand(planSubmitCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planRunCmd)
}

func runPlanSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	draft, err := plan.LoadDraft(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.orch.SubmitPlan(draft)
	if err != nil {
		printStatus(cmd.ErrOrStderr(), "✗", err.Error(), color.FgRed)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderPlan(p))
	printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Stored plan %s", p.ID), color.FgGreen)
	return nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.orch.GetPlan(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderPlan(p))
	return nil
}

func runPlanList(cmd *cobra.Command, args []string) error {
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

	plans, err := db.ListPlans(listLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(plans) == 0 {
		fmt.Fprintln(out, "No plans stored. Run 'delegate plan submit <file>' to add one.")
		return nil
	}
	for _, p := range plans {
		fmt.Fprintf(out, "%s  %s  %s\n",
			p.ID,
			faintStyle.Render(fmt.Sprintf("%d tasks, c=%d, %s", p.TaskCount, p.Concurrency, p.CreatedAt.Format("2006-01-02 15:04"))),
			truncate(firstLine(p.Objective), 60))
	}
	return nil
}

func runPlanRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDry {
		cfg.Backend = config.BackendEcho
	}

	a, err := openApp(cfg, runConfirm)
	if err != nil {
		return err
	}
	defer a.Close()

	planID, err := resolvePlan(a.orch, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	res, err := a.orch.Execute(ctx, planID, orchestrator.ExecuteOptions{
		Concurrency: runConcurrency,
		Confirm:     runConfirm,
	})
	if err != nil {
		return err
	}
	if res.Preview != nil {
		fmt.Fprintln(out, renderPlan(res.Preview))
		printStatus(out, "→", "Preview only. Re-run with --confirm to start subagents.", color.FgCyan)
		return nil
	}

	run := res.Run
	printStatus(out, "▶", fmt.Sprintf("Run %s started (concurrency %d)", run.ID, run.Concurrency), color.FgCyan)

	var summary *models.RunSummary
	for ev := range run.Progress() {
		if ev.Summary != nil {
			summary = ev.Summary
			continue
		}
		printProgress(out, ev)
	}
	if summary == nil {
		summary = run.Summary()
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSummary(summary))
	if summary.Status != models.RunCompleted {
		return fmt.Errorf("run %s %s", summary.RunID, summary.Status)
	}
	return nil
}

// resolvePlan submits the argument as a plan file, or treats it as the ID
// of a stored plan when no such file exists.
func resolvePlan(orch *orchestrator.Orchestrator, arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		draft, err := plan.LoadDraft(arg)
		if err != nil {
			return "", err
		}
		p, err := orch.SubmitPlan(draft)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", arg, err)
	}

	if _, err := orch.GetPlan(arg); err != nil {
		return "", err
	}
	return arg, nil
}
