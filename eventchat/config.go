package eventchat

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/eventchat-sdk/eventchat/transport"
)

// Config controls how a Session reaches the chat server.
type Config struct {
	StreamURL  string // websocket endpoint, e.g. wss://chat.example.com/ws
	APIBaseURL string // REST root, e.g. https://api.example.com/v1

	RequestTimeout   time.Duration // per REST call; 0 disables
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 waits indefinitely for server events
	WriteTimeout     time.Duration

	ReconnectAttempts int
	ReconnectInterval time.Duration
	TypingCooldown    time.Duration

	PageSize     int // history page size for LoadMoreMessages
	MembersLimit int // roster page size for LoadMembers

	// Exactly one of these selects where the bearer token is read from.
	TokenPath string // plain file
	TokenDB   string // SQLite database
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:    10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectAttempts: 5,
		ReconnectInterval: time.Second,
		TypingCooldown:    2 * time.Second,
		PageSize:          50,
		MembersLimit:      100,
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.StreamURL == "":
		return NewError(ErrorInvalidConfig, "stream URL is required")
	case c.APIBaseURL == "":
		return NewError(ErrorInvalidConfig, "API base URL is required")
	case c.RequestTimeout < 0, c.HandshakeTimeout < 0, c.ReadTimeout < 0, c.WriteTimeout < 0:
		return NewError(ErrorInvalidConfig, "timeouts cannot be negative")
	case c.ReconnectAttempts < 0:
		return NewError(ErrorInvalidConfig, "reconnect attempts cannot be negative")
	case c.ReconnectAttempts > 0 && c.ReconnectInterval <= 0:
		return NewError(ErrorInvalidConfig, "reconnect interval must be positive")
	case c.PageSize <= 0:
		return NewError(ErrorInvalidConfig, "page size must be positive")
	case c.MembersLimit <= 0:
		return NewError(ErrorInvalidConfig, "members limit must be positive")
	case c.TokenPath != "" && c.TokenDB != "":
		return NewError(ErrorInvalidConfig, "token path and token db are mutually exclusive")
	}
	return nil
}

// Transport returns the stream channel settings.
func (c Config) Transport() transport.Config {
	return transport.Config{
		URL:               c.StreamURL,
		HandshakeTimeout:  c.HandshakeTimeout,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		ReconnectAttempts: c.ReconnectAttempts,
		ReconnectInterval: c.ReconnectInterval,
		TypingCooldown:    c.TypingCooldown,
	}
}

// configFile is the YAML layout; durations are strings such as "10s".
type configFile struct {
	StreamURL         string `yaml:"stream_url"`
	APIBaseURL        string `yaml:"api_base_url"`
	RequestTimeout    string `yaml:"request_timeout"`
	HandshakeTimeout  string `yaml:"handshake_timeout"`
	ReadTimeout       string `yaml:"read_timeout"`
	WriteTimeout      string `yaml:"write_timeout"`
	ReconnectAttempts *int   `yaml:"reconnect_attempts"`
	ReconnectInterval string `yaml:"reconnect_interval"`
	TypingCooldown    string `yaml:"typing_cooldown"`
	PageSize          int    `yaml:"page_size"`
	MembersLimit      int    `yaml:"members_limit"`
	TokenPath         string `yaml:"token_path"`
	TokenDB           string `yaml:"token_db"`
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.StreamURL, file.StreamURL)
	setString(&cfg.APIBaseURL, file.APIBaseURL)
	setString(&cfg.TokenPath, file.TokenPath)
	setString(&cfg.TokenDB, file.TokenDB)
	if file.PageSize > 0 {
		cfg.PageSize = file.PageSize
	}
	if file.MembersLimit > 0 {
		cfg.MembersLimit = file.MembersLimit
	}
	if file.ReconnectAttempts != nil {
		cfg.ReconnectAttempts = *file.ReconnectAttempts
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"request_timeout", file.RequestTimeout, &cfg.RequestTimeout},
		{"handshake_timeout", file.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"read_timeout", file.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", file.WriteTimeout, &cfg.WriteTimeout},
		{"reconnect_interval", file.ReconnectInterval, &cfg.ReconnectInterval},
		{"typing_cooldown", file.TypingCooldown, &cfg.TypingCooldown},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return cfg, fmt.Errorf("config file %s: %s: %w", path, d.name, err)
		}
		*d.dst = v
	}
	return cfg, nil
}

// ApplyEnv overrides c from EVENTCHAT_* environment variables. Malformed
// values are ignored.
func (c *Config) ApplyEnv() {
	setString(&c.StreamURL, os.Getenv("EVENTCHAT_STREAM_URL"))
	setString(&c.APIBaseURL, os.Getenv("EVENTCHAT_API_BASE_URL"))
	setString(&c.TokenPath, os.Getenv("EVENTCHAT_TOKEN_PATH"))
	setString(&c.TokenDB, os.Getenv("EVENTCHAT_TOKEN_DB"))

	if v, err := time.ParseDuration(os.Getenv("EVENTCHAT_REQUEST_TIMEOUT")); err == nil {
		c.RequestTimeout = v
	}
	if v, err := time.ParseDuration(os.Getenv("EVENTCHAT_RECONNECT_INTERVAL")); err == nil {
		c.ReconnectInterval = v
	}
	if v, err := strconv.Atoi(os.Getenv("EVENTCHAT_RECONNECT_ATTEMPTS")); err == nil {
		c.ReconnectAttempts = v
	}
	if v, err := strconv.Atoi(os.Getenv("EVENTCHAT_PAGE_SIZE")); err == nil && v > 0 {
		c.PageSize = v
	}
}

// LoadConfig applies defaults, then the file at path (skipped when path is
// empty or missing), then the environment, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := LoadConfigFile(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
