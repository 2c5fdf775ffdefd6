package eventchat

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eventchat.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
stream_url: wss://chat.example.com/ws
api_base_url: https://api.example.com/v1
request_timeout: 3s
reconnect_attempts: 0
typing_cooldown: 500ms
page_size: 20
token_db: /var/lib/eventchat/tokens.db
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.StreamURL != "wss://chat.example.com/ws" || cfg.APIBaseURL != "https://api.example.com/v1" {
		t.Fatalf("urls = %q %q", cfg.StreamURL, cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != 3*time.Second || cfg.TypingCooldown != 500*time.Millisecond {
		t.Fatalf("durations = %v %v", cfg.RequestTimeout, cfg.TypingCooldown)
	}
	if cfg.ReconnectAttempts != 0 {
		t.Fatalf("explicit zero reconnect attempts ignored: %d", cfg.ReconnectAttempts)
	}
	if cfg.PageSize != 20 || cfg.MembersLimit != 100 {
		t.Fatalf("page=%d members=%d", cfg.PageSize, cfg.MembersLimit)
	}
	if cfg.HandshakeTimeout != 10*time.Second || cfg.ReconnectInterval != time.Second {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if cfg.TokenDB != "/var/lib/eventchat/tokens.db" {
		t.Fatalf("token db = %q", cfg.TokenDB)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}
	if _, err := LoadConfigFile(writeConfig(t, "request_timeout: soon\n")); err == nil {
		t.Fatalf("expected duration error")
	}
	if _, err := LoadConfigFile(writeConfig(t, "stream_url: [1, 2\n")); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "stream_url: wss://file/ws\napi_base_url: https://file/v1\n")
	t.Setenv("EVENTCHAT_STREAM_URL", "wss://env/ws")
	t.Setenv("EVENTCHAT_RECONNECT_ATTEMPTS", "2")
	t.Setenv("EVENTCHAT_PAGE_SIZE", "not-a-number")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StreamURL != "wss://env/ws" || cfg.APIBaseURL != "https://file/v1" {
		t.Fatalf("urls = %q %q", cfg.StreamURL, cfg.APIBaseURL)
	}
	if cfg.ReconnectAttempts != 2 || cfg.PageSize != 50 {
		t.Fatalf("attempts=%d page=%d", cfg.ReconnectAttempts, cfg.PageSize)
	}
}

func TestLoadConfigMissingFileUsesEnv(t *testing.T) {
	t.Setenv("EVENTCHAT_STREAM_URL", "wss://env/ws")
	t.Setenv("EVENTCHAT_API_BASE_URL", "https://env/v1")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml")); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.StreamURL = "wss://chat/ws"
	valid.APIBaseURL = "https://api/v1"
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no stream url", func(c *Config) { c.StreamURL = "" }},
		{"no api url", func(c *Config) { c.APIBaseURL = "" }},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
		{"negative attempts", func(c *Config) { c.ReconnectAttempts = -1 }},
		{"zero interval", func(c *Config) { c.ReconnectInterval = 0 }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"both token stores", func(c *Config) { c.TokenPath, c.TokenDB = "a", "b" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if CodeOf(err) != ErrorInvalidConfig {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestConfigTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamURL = "wss://chat/ws"
	tc := cfg.Transport()
	if tc.URL != cfg.StreamURL || tc.ReconnectAttempts != 5 || tc.TypingCooldown != 2*time.Second {
		t.Fatalf("transport config = %+v", tc)
	}
}
