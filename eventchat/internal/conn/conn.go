// Package conn frames chat events over a websocket with per-call timeouts.
package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame is the wire envelope used in both directions:
//
//	{"event": "chat:message", "data": {...}}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn wraps websocket.Conn with timeouts and frame encoding.
type Conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func New(ws *websocket.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// ReadFrame blocks for the next frame. A zero read timeout waits forever.
func (c *Conn) ReadFrame(ctx context.Context) (Frame, error) {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}
	var f Frame
	if err := wsjson.Read(ctx, c.ws, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// WriteFrame encodes data (nil for none) under event and writes it.
func (c *Conn) WriteFrame(ctx context.Context, event string, data any) error {
	f := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		f.Data = raw
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, c.ws, f)
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

// CloseNow drops the connection without a close handshake.
func (c *Conn) CloseNow() error {
	return c.ws.CloseNow()
}
