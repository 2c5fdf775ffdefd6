package transport

import "time"

// Config controls how the channel connects and reconnects.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 waits indefinitely for server events
	WriteTimeout     time.Duration

	// ReconnectAttempts bounds automatic reconnects after an unplanned drop;
	// attempts are spaced by ReconnectInterval.
	ReconnectAttempts int
	ReconnectInterval time.Duration

	// TypingCooldown suppresses chat:typing emits closer together than this.
	TypingCooldown time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectAttempts: 5,
		ReconnectInterval: time.Second,
		TypingCooldown:    2 * time.Second,
	}
}
