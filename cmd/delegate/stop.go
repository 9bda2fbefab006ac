package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/delegate/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Abort the run in progress in this project",
	Long: `Write the kill signal for this project. A running 'delegate plan run'
ends its subagents, reports unstarted tasks as blocked and exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		if err := signals.SendKill(root); err != nil {
			return fmt.Errorf("send kill signal: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "■", "Kill signal sent", color.FgYellow)
		return nil
	},
}
