package eventchat

import (
	"log/slog"

	"github.com/vovakirdan/eventchat-sdk/eventchat/internal/logging"
)

// Logger is a minimal logging interface accepted by the SDK.
type Logger = logging.Logger

// NewSlogLogger adapts a *slog.Logger. Nil uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	return logging.NewSlog(l)
}
