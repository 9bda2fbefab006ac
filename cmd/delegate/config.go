package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/delegate/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
	Long: `View or initialize delegate configuration.

Configuration is read from ~/.config/delegate/config.yaml, then from a
.delegate.yaml in the current directory or a parent, then from DELEGATE_*
environment variables (e.g. DELEGATE_ORCHESTRATOR_MAX_CONCURRENCY).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		displayConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a .delegate.yaml with the defaults to the current directory",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing .delegate.yaml")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// displayConfig prints the effective configuration. The API key is masked.
func displayConfig(w io.Writer, cfg *config.Config) {
	key, _ := config.GetAPIKey(cfg)

	fmt.Fprintf(w, "orchestrator.max_concurrency: %d\n", cfg.Orchestrator.MaxConcurrency)
	fmt.Fprintf(w, "orchestrator.max_depth: %d\n", cfg.Orchestrator.MaxDepth)
	fmt.Fprintf(w, "orchestrator.event_buffer: %d\n", cfg.Orchestrator.EventBuffer)
	fmt.Fprintf(w, "orchestrator.persist_workers: %t\n", cfg.Orchestrator.PersistWorkers)
	fmt.Fprintf(w, "orchestrator.poll_interval: %s\n", cfg.Orchestrator.PollInterval)
	fmt.Fprintf(w, "parent.model: %s\n", orUnset(cfg.Parent.Model))
	fmt.Fprintf(w, "parent.sandbox: %s\n", cfg.Parent.Sandbox)
	fmt.Fprintf(w, "parent.working_directory: %s\n", orUnset(cfg.Parent.WorkingDirectory))
	fmt.Fprintf(w, "parent.instructions: %s\n", orUnset(truncate(firstLine(cfg.Parent.Instructions), 60)))
	fmt.Fprintf(w, "backend: %s\n", cfg.Backend)
	fmt.Fprintf(w, "anthropic.api_key: %s (%s)\n", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	fmt.Fprintf(w, "anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Fprintf(w, "anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Fprintf(w, "command.path: %s\n", cfg.Command.Path)
	fmt.Fprintf(w, "command.args: %s\n", orUnset(strings.Join(cfg.Command.Args, " ")))
	fmt.Fprintf(w, "state.path: %s\n", cfg.State.Path)
	fmt.Fprintf(w, "logging.debug: %t\n", cfg.Logging.Debug)
	fmt.Fprintf(w, "logging.dir: %s\n", orUnset(cfg.Logging.Dir))
	fmt.Fprintf(w, "metrics.addr: %s\n", orUnset(cfg.Metrics.Addr))

	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Fprintf(w, "\nproject config: %s\n", p)
	}
	fmt.Fprintf(w, "user config: %s\n", config.GetUserConfigPath())
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, ".delegate.yaml")
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if err := config.SaveToPath(cfg, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Wrote %s", path), color.FgGreen)
	return nil
}
