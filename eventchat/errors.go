package eventchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/eventchat-sdk/eventchat/rest"
	"github.com/vovakirdan/eventchat-sdk/eventchat/transport"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Session errors
	ErrorJoinDenied
	ErrorMuted
	ErrorNotJoined
	ErrorInvalidAction

	// Transport errors
	ErrorConnection
	ErrorNotConnected
	ErrorTimeout

	// Server errors
	ErrorAPI
	ErrorProtocol

	// Client-side errors
	ErrorInvalidConfig
	ErrorSerialization
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorJoinDenied:
		return "join_denied"
	case ErrorMuted:
		return "muted"
	case ErrorNotJoined:
		return "not_joined"
	case ErrorInvalidAction:
		return "invalid_action"
	case ErrorConnection:
		return "connection_error"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorTimeout:
		return "timeout"
	case ErrorAPI:
		return "api_error"
	case ErrorProtocol:
		return "protocol_error"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorSerialization:
		return "serialization_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ChatError is a structured error with code and context. Message is safe to
// show to the user.
type ChatError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *ChatError) Unwrap() error {
	return e.Wrapped
}

// Is matches any *ChatError with the same code.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new ChatError with the given code and message.
func NewError(code ErrorCode, message string) *ChatError {
	return &ChatError{Code: code, Message: message}
}

// WrapError wraps an existing error with a ChatError.
func WrapError(code ErrorCode, message string, err error) *ChatError {
	return &ChatError{Code: code, Message: message, Wrapped: err}
}

// Sentinels for errors.Is.
var (
	ErrMuted        = NewError(ErrorMuted, "you are muted in this chat")
	ErrNotJoined    = NewError(ErrorNotJoined, "chat session is not initialized")
	ErrJoinDenied   = NewError(ErrorJoinDenied, "you cannot join this chat")
	ErrNotConnected = NewError(ErrorNotConnected, "chat stream is not connected")
)

// CodeOf returns the code of the first ChatError in err's chain.
func CodeOf(err error) ErrorCode {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrorUnknown
}

// userMessage prefers the server's explanation and falls back to a default.
func userMessage(err error, fallback string) string {
	if msg := rest.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}

// requestError classifies a failed REST call. text is what the user sees
// when the server gave no explanation.
func requestError(err error, text string) *ChatError {
	text = userMessage(err, text)
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(ErrorTimeout, text, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return WrapError(ErrorSerialization, text, err)
	default:
		return WrapError(ErrorAPI, text, err)
	}
}

// streamError maps transport emit failures onto session errors.
func streamError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrNotConnected):
		return WrapError(ErrorNotConnected, ErrNotConnected.Message, err)
	case errors.Is(err, transport.ErrNoRoom):
		return WrapError(ErrorNotJoined, ErrNotJoined.Message, err)
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(ErrorTimeout, "chat stream timed out", err)
	default:
		return WrapError(ErrorConnection, "chat stream error", err)
	}
}
