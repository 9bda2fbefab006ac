package config

import (
	"errors"
	"testing"
)

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		cfgKey  string
		wantKey string
		wantSrc KeySource
	}{
		{"environment wins", "sk-ant-from-env", "sk-ant-from-config", "sk-ant-from-env", KeySourceEnv},
		{"config file", "", "sk-ant-from-config", "sk-ant-from-config", KeySourceConfig},
		{"expanded reference", "", "${DELEGATE_TEST_KEY}", "sk-ant-expanded", KeySourceConfig},
		{"dangling reference", "", "${DELEGATE_TEST_MISSING}", "", KeySourceNone},
		{"nothing set", "", "", "", KeySourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", tt.env)
			t.Setenv("DELEGATE_TEST_KEY", "sk-ant-expanded")
			cfg := &Config{Anthropic: AnthropicConfig{APIKey: tt.cfgKey}}

			key, err := GetAPIKey(cfg)
			if tt.wantSrc == KeySourceNone {
				if !errors.Is(err, ErrNoAPIKey) {
					t.Errorf("GetAPIKey() error = %v, want ErrNoAPIKey", err)
				}
			} else if err != nil || key != tt.wantKey {
				t.Errorf("GetAPIKey() = %q, %v; want %q", key, err, tt.wantKey)
			}
			if src := GetAPIKeySource(cfg); src != tt.wantSrc {
				t.Errorf("GetAPIKeySource() = %v, want %v", src, tt.wantSrc)
			}
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-openai-12345678901234567890", true},
		{"too short", "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if err := CheckCredentials(&Config{Backend: BackendEcho}); err != nil {
		t.Errorf("echo backend needs no key: %v", err)
	}
	if err := CheckCredentials(&Config{Backend: BackendAnthropic, Anthropic: AnthropicConfig{UseBedrock: true}}); err != nil {
		t.Errorf("bedrock needs no key: %v", err)
	}

	err := CheckCredentials(&Config{Backend: BackendAnthropic})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("CheckCredentials() = %v, want ErrNoAPIKey", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")
	if err := CheckCredentials(&Config{Backend: BackendAnthropic}); err != nil {
		t.Errorf("CheckCredentials() with key = %v", err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk-ant-REDACTED", "sk-ant-...wxyz"},
		{"", "(not set)"},
		{"short", "***"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNeedsAPIKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want bool
	}{
		{"anthropic direct", &Config{Backend: BackendAnthropic}, true},
		{"anthropic via bedrock", &Config{Backend: BackendAnthropic, Anthropic: AnthropicConfig{UseBedrock: true}}, false},
		{"command backend", &Config{Backend: BackendCommand}, false},
		{"echo backend", &Config{Backend: BackendEcho}, false},
		{"nil config", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsAPIKey(tt.cfg); got != tt.want {
				t.Errorf("NeedsAPIKey() = %v, want %v", got, tt.want)
			}
		})
	}
}
