// Package transport is the live side of event chat: one websocket connection
// to the chat server, one active room at a time, automatic reconnect with
// room rejoin, and typed multi-subscriber event dispatch.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/eventchat-sdk/eventchat/credstore"
	"github.com/vovakirdan/eventchat-sdk/eventchat/internal/conn"
	"github.com/vovakirdan/eventchat-sdk/eventchat/internal/logging"
	"github.com/vovakirdan/eventchat-sdk/eventchat/model"
)

var (
	// ErrNotConnected is returned by emits while no connection is up.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrNoRoom is returned by emits that need an active room.
	ErrNoRoom = errors.New("transport: no active room")
	// ErrClosed is returned when Disconnect raced a connection attempt.
	ErrClosed = errors.New("transport: channel closed")
)

type outbound struct {
	event string
	data  any
}

// link is one live websocket connection and its loops.
type link struct {
	conn    *conn.Conn
	writeCh chan outbound
	cancel  context.CancelFunc
	done    <-chan struct{}
}

// Channel is a single event-stream connection multiplexed by room id.
// All methods are safe for concurrent use. Server events are delivered from a
// single goroutine in the order the server sent them.
type Channel struct {
	cfg        Config
	tokens     credstore.TokenSource
	dispatcher Dispatcher
	typing     *rate.Limiter
	now        func() time.Time

	mu         sync.Mutex
	logger     logging.Logger
	state      ConnectionState
	link       *link
	room       string
	lifeCancel context.CancelFunc
	life       context.Context

	listenerMu sync.Mutex
	listenerID uint64
	listeners  []stateListener
}

type stateListener struct {
	id uint64
	fn func(StateEvent)
}

// New constructs a channel. tokens is consulted on every (re)connect.
func New(cfg Config, tokens credstore.TokenSource) *Channel {
	limit := rate.Inf
	if cfg.TypingCooldown > 0 {
		limit = rate.Every(cfg.TypingCooldown)
	}
	return &Channel{
		cfg:    cfg,
		tokens: tokens,
		logger: logging.Noop{},
		typing: rate.NewLimiter(limit, 1),
		now:    time.Now,
	}
}

// SetLogger overrides logger (optional); nil discards logs. Safe to call
// while connected.
func (c *Channel) SetLogger(l logging.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logging.OrNoop(l)
}

func (c *Channel) log() logging.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// On registers fn for a server event. See Subscribe for typed handlers.
func (c *Channel) On(event string, fn Handler) (unsubscribe func()) {
	return c.dispatcher.On(event, fn)
}

// Off removes every handler registered for event.
func (c *Channel) Off(event string) {
	c.dispatcher.Off(event)
}

// OnStateChanged registers fn for connection state transitions.
func (c *Channel) OnStateChanged(fn func(StateEvent)) (unsubscribe func()) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listenerID++
	id := c.listenerID
	c.listeners = append(c.listeners, stateListener{id: id, fn: fn})
	return func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// IsConnected reports whether a connection is currently up.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the active room id, empty when none.
func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Connect dials the server with the current bearer token and starts the
// read and write loops. It is a no-op while connected or connecting. A room
// recorded by an earlier JoinRoom is joined again once the connection is up.
func (c *Channel) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return errors.New("transport: empty URL")
	}

	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	life, cancel := context.WithCancel(context.Background())
	c.life, c.lifeCancel = life, cancel
	ev := c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()
	c.notify(ev)

	if err := c.dial(ctx, life); err != nil {
		c.mu.Lock()
		var evs []StateEvent
		if c.life == life {
			cancel()
			evs = append(evs, c.setStateLocked(StateDisconnected, err))
		}
		c.mu.Unlock()
		c.notify(evs...)
		return fmt.Errorf("transport: connect: %w", err)
	}
	return nil
}

// dial opens one connection under life and installs it as the current link.
func (c *Channel) dial(ctx context.Context, life context.Context) error {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		switch {
		case errors.Is(err, credstore.ErrNoToken):
			c.log().Warn("connecting without bearer token", nil)
		case err != nil:
			return err
		default:
			header.Set("Authorization", "Bearer "+token)
		}
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(life)
	l := &link{
		conn:    conn.New(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout),
		writeCh: make(chan outbound, 16),
		cancel:  cancel,
		done:    runCtx.Done(),
	}

	c.mu.Lock()
	if life.Err() != nil || c.life != life {
		c.mu.Unlock()
		cancel()
		_ = ws.CloseNow()
		return ErrClosed
	}
	c.link = l
	room := c.room
	ev := c.setStateLocked(StateConnected, nil)
	c.mu.Unlock()

	c.log().Info("stream connected", map[string]any{"url": c.cfg.URL})
	c.notify(ev)

	go c.readLoop(runCtx, l)
	go c.writeLoop(runCtx, l)

	if room != "" {
		c.enqueue(l, outbound{event: emitJoin, data: RoomPayload{EventID: room}})
	}
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect. The
// recorded room is forgotten.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	cancelLife := c.lifeCancel
	c.life, c.lifeCancel = nil, nil
	l := c.link
	c.link = nil
	c.room = ""
	var ev StateEvent
	changed := c.state != StateClosed
	if changed {
		ev = c.setStateLocked(StateClosed, nil)
	}
	c.mu.Unlock()

	if changed {
		c.notify(ev)
	}
	var err error
	if l != nil {
		err = l.conn.Close(websocket.StatusNormalClosure, "client close")
		l.cancel()
	}
	if cancelLife != nil {
		cancelLife()
	}
	return err
}

// JoinRoom makes id the active room and emits chat:join. A different room
// that was active is left first, since a channel serves one room at a time.
// The room stays recorded even if the emit fails, so a reconnect joins it.
func (c *Channel) JoinRoom(ctx context.Context, id string) error {
	c.mu.Lock()
	prev := c.room
	c.room = id
	c.mu.Unlock()

	if prev != "" && prev != id {
		if err := c.emit(ctx, emitLeave, RoomPayload{EventID: prev}); err != nil && !errors.Is(err, ErrNotConnected) {
			c.log().Warn("leave previous room failed", map[string]any{"room": prev, "error": err.Error()})
		}
	}
	return c.emit(ctx, emitJoin, RoomPayload{EventID: id})
}

// LeaveRoom emits chat:leave for the active room, if any, and clears it.
func (c *Channel) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.room = ""
	c.mu.Unlock()

	if room == "" {
		return nil
	}
	err := c.emit(ctx, emitLeave, RoomPayload{EventID: room})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// SendMessage emits chat:message to the active room without waiting for
// the server's echo.
func (c *Channel) SendMessage(ctx context.Context, payload model.SendPayload) error {
	room := c.Room()
	if room == "" {
		return ErrNoRoom
	}
	return c.emit(ctx, emitMessage, MessagePayload{EventID: room, SendPayload: payload})
}

// SendTyping emits chat:typing unless one was emitted within the cool-down.
// Suppressed calls return nil and are not queued.
func (c *Channel) SendTyping(ctx context.Context) error {
	room := c.Room()
	if room == "" {
		return ErrNoRoom
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if !c.typing.AllowN(c.now(), 1) {
		return nil
	}
	return c.emit(ctx, emitTyping, RoomPayload{EventID: room})
}

// MarkAsRead emits chat:read for messageID in the active room. No-op without
// a room.
func (c *Channel) MarkAsRead(ctx context.Context, messageID string) error {
	room := c.Room()
	if room == "" {
		return nil
	}
	return c.emit(ctx, emitRead, ReadPayload{EventID: room, MessageID: messageID})
}

func (c *Channel) emit(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	select {
	case l.writeCh <- outbound{event: event, data: data}:
		return nil
	case <-l.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue is emit for an already-known link, used by the rejoin path.
func (c *Channel) enqueue(l *link, out outbound) {
	select {
	case l.writeCh <- out:
	case <-l.done:
	}
}

func (c *Channel) readLoop(ctx context.Context, l *link) {
	for {
		frame, err := l.conn.ReadFrame(ctx)
		if err != nil {
			c.drop(ctx, l, err)
			return
		}
		if n := c.dispatcher.Dispatch(frame.Event, frame.Data); n == 0 {
			c.log().Debug("unhandled event", map[string]any{"event": frame.Event})
		}
	}
}

func (c *Channel) writeLoop(ctx context.Context, l *link) {
	for {
		select {
		case out := <-l.writeCh:
			if err := l.conn.WriteFrame(ctx, out.event, out.data); err != nil {
				c.drop(ctx, l, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// drop handles an unplanned loss of l and starts reconnecting.
func (c *Channel) drop(ctx context.Context, l *link, cause error) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	life := c.life
	next := StateReconnecting
	if c.cfg.ReconnectAttempts <= 0 {
		next = StateDisconnected
		c.lifeCancel()
		c.life, c.lifeCancel = nil, nil
	}
	ev := c.setStateLocked(next, cause)
	c.mu.Unlock()

	l.cancel()
	_ = l.conn.CloseNow()
	c.log().Warn("stream connection lost", map[string]any{"error": cause.Error()})
	c.notify(ev)

	if next == StateReconnecting {
		go c.reconnect(life)
	}
}

// reconnect makes up to ReconnectAttempts dial attempts spaced by
// ReconnectInterval, then gives up quietly.
func (c *Channel) reconnect(life context.Context) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-life.Done():
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}
		c.log().Info("reconnecting", map[string]any{
			"attempt":      attempt,
			"max_attempts": c.cfg.ReconnectAttempts,
		})
		err := c.dial(life, life)
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		lastErr = err
		c.log().Debug("reconnect attempt failed", map[string]any{"attempt": attempt, "error": err.Error()})
	}

	c.mu.Lock()
	if c.life != life || life.Err() != nil {
		c.mu.Unlock()
		return
	}
	ev := c.setStateLocked(StateDisconnected, lastErr)
	c.mu.Unlock()
	c.log().Warn("giving up on reconnect", map[string]any{"attempts": c.cfg.ReconnectAttempts})
	c.notify(ev)
}

func (c *Channel) reportDecodeError(event string, err error) {
	c.log().Warn("dropping undecodable event", map[string]any{"event": event, "error": err.Error()})
}

func (c *Channel) notify(evs ...StateEvent) {
	c.listenerMu.Lock()
	listeners := append([]stateListener(nil), c.listeners...)
	c.listenerMu.Unlock()

	for _, ev := range evs {
		if ev.OldState == ev.NewState {
			continue
		}
		for _, l := range listeners {
			l.fn(ev)
		}
	}
}

func (c *Channel) setStateLocked(next ConnectionState, cause error) StateEvent {
	ev := StateEvent{OldState: c.state, NewState: next, Error: cause}
	c.state = next
	return ev
}
