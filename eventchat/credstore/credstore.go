// Package credstore reads the viewer's bearer token from local persistent
// storage. Every lookup goes back to storage so a token refreshed by another
// process is picked up on the next connect or request.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoToken is returned when storage holds no token.
var ErrNoToken = errors.New("credstore: no token stored")

// TokenSource yields the current bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, mostly for tests and demos.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileStore keeps the token in a single file.
type FileStore struct {
	Path string
}

func (f FileStore) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("credstore: read %s: %w", f.Path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SetToken replaces the stored token. The file is created with mode 0600.
func (f FileStore) SetToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}
	return os.WriteFile(f.Path, []byte(token+"\n"), 0o600)
}

// ClearToken removes the token file if present.
func (f FileStore) ClearToken() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// AuthTransport attaches "Authorization: Bearer <token>" to every request.
// Requests go out unauthenticated when the source has no token.
type AuthTransport struct {
	Source TokenSource
	Base   http.RoundTripper
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Source == nil {
		return base.RoundTrip(req)
	}
	token, err := t.Source.Token(req.Context())
	if errors.Is(err, ErrNoToken) {
		return base.RoundTrip(req)
	}
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(clone)
}
