package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// NeedsAPIKey reports whether the configured backend talks to the
// Anthropic API directly. Bedrock and the offline backends don't.
func NeedsAPIKey(cfg *Config) bool {
	return cfg != nil && cfg.Backend == BackendAnthropic && !cfg.Anthropic.UseBedrock
}

// resolveAPIKey finds the key and where it came from. ANTHROPIC_API_KEY
// wins over anthropic.api_key; an unexpanded ${VAR} reference counts as unset.
func resolveAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return "", KeySourceNone
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// GetAPIKey returns the Anthropic API key for the anthropic backend.
func GetAPIKey(cfg *Config) (string, error) {
	key, src := resolveAPIKey(cfg)
	if src == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	_, src := resolveAPIKey(cfg)
	return src
}

// ValidateAPIKey checks the key's shape without calling the API.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	case len(key) < 20:
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// CheckCredentials reports whether the configured backend can start
// sessions. Only the direct anthropic backend needs a key.
func CheckCredentials(cfg *Config) error {
	if !NeedsAPIKey(cfg) {
		return nil
	}
	key, err := GetAPIKey(cfg)
	if err != nil {
		return fmt.Errorf("backend %s: %w (set ANTHROPIC_API_KEY, anthropic.api_key, or use --backend echo)", cfg.Backend, err)
	}
	return ValidateAPIKey(key)
}

// MaskAPIKey shows only the sk-ant- prefix and the last four characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
