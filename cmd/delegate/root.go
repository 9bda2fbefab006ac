package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDebug   bool
	flagBackend string
)

var rootCmd = &cobra.Command{
	Use:   "delegate",
	Short: "Plan-driven subagent orchestration",
	Long: `Delegate turns a plan of dependent tasks into scoped subagent
conversations, runs them under a global concurrency and nesting cap, and
reports every task's outcome.

Plans are YAML or JSON files:

  objective: Ship the feature
  concurrency: 2
  tasks:
    - id: parser
      goal: Build the parser
    - id: integrate
      goal: Wire the parser into the CLI
      dependencies: [parser]

Runs, plans and ended subagents are recorded in .delegate/state.db.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Write a debug log to .delegate/logs")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Session backend: anthropic, command or echo (overrides config)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
