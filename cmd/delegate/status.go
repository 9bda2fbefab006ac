package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/delegate/internal/state"
	"github.com/ShayCichocki/delegate/pkg/models"
)

var (
	statusRunID string
	statusLimit int
	statusPurge time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs",
	Long: `Display the latest run with its per-task outcomes, followed by a
list of recent runs.

Use --run to show a specific run and --purge to delete finished runs
older than the given age.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Show a specific run")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Maximum recent runs to list")
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete finished runs older than this age (e.g. 720h)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.StatePath(root)); os.IsNotExist(err) {
		fmt.Fprintln(out, "No runs yet. Run 'delegate plan run <file> --confirm' to start one.")
		return nil
	}

	db, err := openStore(cfg, root)
	if err != nil {
		return err
	}
	defer db.Close()

	if statusPurge > 0 {
		n, err := db.PurgeOldRuns(statusPurge)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Purged %d runs older than %s\n", n, formatDuration(statusPurge))
	}

	var current *models.RunSummary
	if statusRunID != "" {
		if current, err = db.GetRun(statusRunID); err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("run %s: %w", statusRunID, models.ErrNotFound)
		}
	} else if current, err = db.LatestRun(); err != nil {
		return err
	}

	if current == nil {
		fmt.Fprintln(out, "No runs yet. Run 'delegate plan run <file> --confirm' to start one.")
		return nil
	}
	fmt.Fprintln(out, renderSummary(current))

	if statusRunID != "" {
		return nil
	}
	return displayRecentRuns(cmd, db, current.RunID)
}

func displayRecentRuns(cmd *cobra.Command, db *state.DB, skip string) error {
	runs, err := db.ListRuns(nil, statusLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printed := false
	for _, r := range runs {
		if r.RunID == skip {
			continue
		}
		if !printed {
			fmt.Fprintln(out, "\nRecent runs:")
			printed = true
		}
		age := formatDuration(time.Since(r.StartedAt))
		fmt.Fprintf(out, "  %s  %-11s %s  %s\n",
			r.RunID,
			runStatusColor(r.Status).Sprint(r.Status),
			faintStyle.Render(age+" ago"),
			faintStyle.Render(fmt.Sprintf("plan %s", r.PlanID)))
	}
	return nil
}
