// Package config handles configuration loading and management for delegate.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// Backend names accepted by the backend key.
const (
	BackendAnthropic = "anthropic"
	BackendCommand   = "command"
	BackendEcho      = "echo"
)

// Config holds all configuration for delegate.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Parent       ParentConfig       `mapstructure:"parent"`
	Backend      string             `mapstructure:"backend"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Command      CommandConfig      `mapstructure:"command"`
	State        StateConfig        `mapstructure:"state"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// OrchestratorConfig holds the global resource limits.
type OrchestratorConfig struct {
	// MaxConcurrency is the global cap on live workers.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// MaxDepth is the nesting ceiling. The root conversation is depth 0.
	MaxDepth int `mapstructure:"max_depth"`
	// EventBuffer is the capacity of the event channel.
	EventBuffer int `mapstructure:"event_buffer"`
	// PersistWorkers stores every ended worker's snapshot by default.
	PersistWorkers bool `mapstructure:"persist_workers"`
	// PollInterval is how often a run checks for the kill signal when file
	// notifications are unavailable.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ParentConfig describes the conversation workers are derived from.
type ParentConfig struct {
	Instructions     string `mapstructure:"instructions"`
	Model            string `mapstructure:"model"`
	Sandbox          string `mapstructure:"sandbox"`
	WorkingDirectory string `mapstructure:"working_directory"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
}

// CommandConfig holds settings for the external agent CLI backend.
type CommandConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the sqlite file. Relative paths resolve against the project root.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	Debug bool   `mapstructure:"debug"`
	Dir   string `mapstructure:"dir"`
}

// MetricsConfig holds the prometheus listener settings.
type MetricsConfig struct {
	// Addr is the listen address. Empty disables the listener.
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, DELEGATE_*)
// 2. Project config (.delegate.yaml in current directory or parent)
// 3. User config (~/.config/delegate/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return decode(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

// envKeyReplacer maps orchestrator.max_depth to DELEGATE_ORCHESTRATOR_MAX_DEPTH.
var envKeyReplacer = strings.NewReplacer(".", "_")

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("DELEGATE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	for _, w := range cfg.Validate() {
		log.Printf("[config] WARNING: %s", w)
	}
	return cfg, nil
}

// Validate clamps out-of-range values to their defaults and returns a
// warning for each adjustment.
func (c *Config) Validate() []string {
	d := Default()
	var warnings []string

	if c.Orchestrator.MaxConcurrency < 1 {
		warnings = append(warnings, fmt.Sprintf("orchestrator.max_concurrency %d is below 1; using %d",
			c.Orchestrator.MaxConcurrency, d.Orchestrator.MaxConcurrency))
		c.Orchestrator.MaxConcurrency = d.Orchestrator.MaxConcurrency
	}
	if c.Orchestrator.MaxDepth < 0 {
		warnings = append(warnings, fmt.Sprintf("orchestrator.max_depth %d is negative; using %d",
			c.Orchestrator.MaxDepth, d.Orchestrator.MaxDepth))
		c.Orchestrator.MaxDepth = d.Orchestrator.MaxDepth
	}
	if c.Orchestrator.EventBuffer < 0 {
		warnings = append(warnings, fmt.Sprintf("orchestrator.event_buffer %d is negative; using %d",
			c.Orchestrator.EventBuffer, d.Orchestrator.EventBuffer))
		c.Orchestrator.EventBuffer = d.Orchestrator.EventBuffer
	}
	if c.Orchestrator.PollInterval <= 0 {
		c.Orchestrator.PollInterval = d.Orchestrator.PollInterval
	}
	if c.Parent.Sandbox == "" {
		c.Parent.Sandbox = d.Parent.Sandbox
	} else if !models.SandboxPolicy(c.Parent.Sandbox).Valid() {
		warnings = append(warnings, fmt.Sprintf("parent.sandbox %q is unknown; using %s",
			c.Parent.Sandbox, d.Parent.Sandbox))
		c.Parent.Sandbox = d.Parent.Sandbox
	}
	switch c.Backend {
	case BackendAnthropic, BackendCommand, BackendEcho:
	default:
		warnings = append(warnings, fmt.Sprintf("backend %q is unknown; using %s", c.Backend, d.Backend))
		c.Backend = d.Backend
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = d.Anthropic.MaxTokens
	}
	if c.Command.Path == "" {
		c.Command.Path = d.Command.Path
	}
	if c.State.Path == "" {
		c.State.Path = d.State.Path
	}
	return warnings
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveToPath(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveToPath writes the configuration to path.
func SaveToPath(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("orchestrator.max_concurrency", cfg.Orchestrator.MaxConcurrency)
	v.Set("orchestrator.max_depth", cfg.Orchestrator.MaxDepth)
	v.Set("orchestrator.event_buffer", cfg.Orchestrator.EventBuffer)
	v.Set("orchestrator.persist_workers", cfg.Orchestrator.PersistWorkers)
	v.Set("orchestrator.poll_interval", cfg.Orchestrator.PollInterval.String())
	v.Set("parent.instructions", cfg.Parent.Instructions)
	v.Set("parent.model", cfg.Parent.Model)
	v.Set("parent.sandbox", cfg.Parent.Sandbox)
	v.Set("parent.working_directory", cfg.Parent.WorkingDirectory)
	v.Set("backend", cfg.Backend)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("command.path", cfg.Command.Path)
	v.Set("command.args", cfg.Command.Args)
	v.Set("state.path", cfg.State.Path)
	v.Set("logging.debug", cfg.Logging.Debug)
	v.Set("logging.dir", cfg.Logging.Dir)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("orchestrator.max_concurrency", d.Orchestrator.MaxConcurrency)
	v.SetDefault("orchestrator.max_depth", d.Orchestrator.MaxDepth)
	v.SetDefault("orchestrator.event_buffer", d.Orchestrator.EventBuffer)
	v.SetDefault("orchestrator.persist_workers", d.Orchestrator.PersistWorkers)
	v.SetDefault("orchestrator.poll_interval", d.Orchestrator.PollInterval.String())

	v.SetDefault("parent.instructions", "")
	v.SetDefault("parent.model", "")
	v.SetDefault("parent.sandbox", d.Parent.Sandbox)
	v.SetDefault("parent.working_directory", "")

	v.SetDefault("backend", d.Backend)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)

	v.SetDefault("command.path", d.Command.Path)
	v.SetDefault("command.args", d.Command.Args)

	v.SetDefault("state.path", d.State.Path)

	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.dir", "")

	v.SetDefault("metrics.addr", "")
}

// getUserConfigDir returns the XDG config directory for delegate.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "delegate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "delegate")
	}
	return filepath.Join(home, ".config", "delegate")
}

// findProjectConfig searches for .delegate.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".delegate.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrency: 4,
			MaxDepth:       1,
			EventBuffer:    256,
			PollInterval:   50 * time.Millisecond,
		},
		Parent: ParentConfig{
			Sandbox: string(models.SandboxWorkspaceWrite),
		},
		Backend: BackendAnthropic,
		Anthropic: AnthropicConfig{
			MaxTokens: 8192,
		},
		Command: CommandConfig{
			Path: "claude",
			Args: []string{"-p"},
		},
		State: StateConfig{
			Path: filepath.Join(".delegate", "state.db"),
		},
	}
}

// StatePath resolves the sqlite path against the project root.
func (c *Config) StatePath(projectRoot string) string {
	if filepath.IsAbs(c.State.Path) {
		return c.State.Path
	}
	return filepath.Join(projectRoot, c.State.Path)
}
