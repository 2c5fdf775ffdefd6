package eventchat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/eventchat-sdk/eventchat/credstore"
	"github.com/vovakirdan/eventchat-sdk/eventchat/internal/logging"
	"github.com/vovakirdan/eventchat-sdk/eventchat/model"
	"github.com/vovakirdan/eventchat-sdk/eventchat/rest"
	"github.com/vovakirdan/eventchat-sdk/eventchat/transport"
)

// Stream is the live event channel a Session drives. *transport.Channel
// implements it.
type Stream interface {
	transport.Subscriber
	Connect(ctx context.Context) error
	JoinRoom(ctx context.Context, eventID string) error
	LeaveRoom(ctx context.Context) error
	SendMessage(ctx context.Context, payload model.SendPayload) error
	SendTyping(ctx context.Context) error
	MarkAsRead(ctx context.Context, messageID string) error
	IsConnected() bool
	OnStateChanged(fn func(transport.StateEvent)) (unsubscribe func())
}

// History is the REST side of a Session. *rest.Client implements it.
type History interface {
	GetChat(ctx context.Context, eventID string) (*rest.ChatResponse, error)
	GetMessages(ctx context.Context, eventID, before string, limit int) (*rest.MessagesResponse, error)
	GetPinnedMessages(ctx context.Context, eventID string) ([]model.Message, error)
	SendMessage(ctx context.Context, eventID string, payload model.SendPayload) (*model.Message, error)
	ModerateMessage(ctx context.Context, eventID, messageID string, action model.ModerationAction) error
	MuteMember(ctx context.Context, eventID, userID string, req model.MuteRequest) error
	UpdateSettings(ctx context.Context, eventID string, patch model.SettingsPatch) error
	GetMembers(ctx context.Context, eventID string, onlineOnly bool, limit int) (*rest.MembersResponse, error)
}

// Session is one viewer's chat session for one event. It owns a Store and
// keeps it in step with the stream and the REST API.
//
// Operations that race with Teardown are harmless: results that arrive for a
// session that has since been torn down are dropped.
type Session struct {
	cfg      Config
	stream   Stream
	history  History
	store    *Store
	notifier Notifier
	newID    func() string
	now      func() time.Time
	closers  []func() error

	mu         sync.Mutex
	logger     Logger
	eventID    string
	joining    bool
	hasJoined  bool
	gen        uint64
	unsubs     []func()
	cancelInit context.CancelFunc
	closed     bool
}

// NewSession wires a session to its collaborators.
func NewSession(cfg Config, stream Stream, history History) *Session {
	return &Session{
		cfg:     cfg,
		stream:  stream,
		history: history,
		store:   NewStore(),
		logger:  logging.Noop{},
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// New builds a session from cfg with a websocket channel and REST client
// sharing one token source. Call Close when done.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		tokens  credstore.TokenSource = credstore.Static("")
		closers []func() error
	)
	switch {
	case cfg.TokenDB != "":
		db, err := credstore.OpenSQLite(cfg.TokenDB)
		if err != nil {
			return nil, WrapError(ErrorInvalidConfig, "open token database", err)
		}
		tokens = db
		closers = append(closers, db.Close)
	case cfg.TokenPath != "":
		tokens = credstore.FileStore{Path: cfg.TokenPath}
	}

	ch := transport.New(cfg.Transport(), tokens)
	api := rest.NewClient(cfg.APIBaseURL)
	api.SetTimeout(cfg.RequestTimeout)
	api.SetTokenSource(tokens)

	s := NewSession(cfg, ch, api)
	s.closers = append([]func() error{ch.Disconnect}, closers...)
	return s, nil
}

// SetLogger overrides logger (optional); nil discards logs. It also reaches
// the stream when the stream accepts one. Safe to call at any time.
func (s *Session) SetLogger(l Logger) {
	l = logging.OrNoop(l)
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
	if ls, ok := s.stream.(interface{ SetLogger(Logger) }); ok {
		ls.SetLogger(l)
	}
}

// SetNotifier sets where user-visible notices go. By default they are logged.
func (s *Session) SetNotifier(n Notifier) {
	s.notifier = n
}

// Store exposes the session's state container, e.g. to Subscribe to it.
func (s *Session) Store() *Store { return s.store }

// State returns a snapshot of the session.
func (s *Session) State() State { return s.store.Snapshot() }

// EventID returns the event the session is bound to, or "".
func (s *Session) EventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}

// InitializeChat checks eligibility for eventID, connects the stream and
// joins the room. It returns once the join is issued; the session becomes
// joined when the server acknowledges with chat:joined.
//
// Calls while joining or joined are no-ops. A denied join is not an error:
// it is reported through State().Join and State().JoinError. Any other
// failure is recorded in State().Error and returned; call again to retry.
func (s *Session) InitializeChat(ctx context.Context, eventID string) error {
	s.mu.Lock()
	if s.hasJoined || s.joining {
		s.mu.Unlock()
		return nil
	}
	s.joining = true
	s.gen++
	gen := s.gen
	s.eventID = eventID
	ctx, cancel := context.WithCancel(ctx)
	s.cancelInit = cancel
	s.mu.Unlock()
	defer cancel()

	s.store.SetEventID(eventID)
	s.store.SetJoinStatus(JoinJoining, "")
	s.store.ClearError()

	rctx, rcancel := s.requestContext(ctx)
	chat, err := s.history.GetChat(rctx, eventID)
	rcancel()
	if err != nil {
		return s.failInit(ctx, gen, requestError(err, "Failed to load chat"))
	}
	if chat == nil {
		return s.failInit(ctx, gen, NewError(ErrorProtocol, "Failed to load chat"))
	}
	if !s.current(gen) {
		return nil
	}
	if !chat.CanJoin {
		s.store.SetJoinStatus(JoinDenied, chat.Reason)
		s.mu.Lock()
		s.joining = false
		s.mu.Unlock()
		s.log().Info("join denied", map[string]any{"event": eventID, "reason": chat.Reason})
		return nil
	}
	if chat.Chat != nil {
		s.store.SetChatInfo(*chat.Chat)
	}

	s.subscribe(gen)
	if !s.current(gen) {
		return nil
	}
	s.store.SetStatus(StatusConnecting)
	err = s.stream.Connect(ctx)
	if !s.current(gen) {
		return nil
	}
	if err != nil {
		return s.failInit(ctx, gen, WrapError(ErrorConnection, "Failed to connect to chat", err))
	}
	err = s.stream.JoinRoom(ctx, eventID)
	if !s.current(gen) {
		// Teardown already left; the channel would rejoin on reconnect.
		s.abandonJoin(ctx)
		return nil
	}
	if err != nil {
		return s.failInit(ctx, gen, WrapError(ErrorConnection, "Failed to join chat", err))
	}
	s.log().Debug("join issued", map[string]any{"event": eventID})

	// The joined push is handled on the stream goroutine and may land
	// before or after this seed; both orders converge in the store.
	s.seedPinned(ctx, gen, eventID)
	return nil
}

func (s *Session) failInit(ctx context.Context, gen uint64, err *ChatError) error {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return err
	}
	s.joining = false
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if leaveErr := s.stream.LeaveRoom(context.WithoutCancel(ctx)); leaveErr != nil {
		s.log().Debug("leave after failed join", map[string]any{"error": leaveErr.Error()})
	}
	s.store.SetError(err.Message)
	s.store.SetStatus(StatusDisconnected)
	s.store.SetJoinStatus(JoinNone, "")
	s.log().Error("initialize chat failed", map[string]any{"error": err.Error()})
	return err
}

// abandonJoin leaves the room joined by an initialization that Teardown
// overtook, unless a newer one has taken the session since.
func (s *Session) abandonJoin(ctx context.Context) {
	s.mu.Lock()
	busy := s.joining || s.hasJoined
	s.mu.Unlock()
	if busy {
		return
	}
	if err := s.stream.LeaveRoom(context.WithoutCancel(ctx)); err != nil {
		s.log().Debug("leave after teardown", map[string]any{"error": err.Error()})
	}
}

func (s *Session) seedPinned(ctx context.Context, gen uint64, eventID string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	pinned, err := s.history.GetPinnedMessages(rctx, eventID)
	if err != nil {
		s.log().Warn("load pinned messages failed", map[string]any{"event": eventID, "error": err.Error()})
		return
	}
	if s.current(gen) {
		s.store.SetPinnedMessages(pinned)
	}
}

// subscribe registers the server push handlers for generation gen.
func (s *Session) subscribe(gen uint64) {
	guard := func(fn func()) {
		if s.current(gen) {
			fn()
		}
	}
	st := s.store
	unsubs := []func(){
		transport.Subscribe(s.stream, transport.EventJoined, func(ev transport.JoinedEvent) {
			guard(func() { s.onJoined(gen, ev) })
		}),
		transport.Subscribe(s.stream, transport.EventMessage, func(ev transport.MessageEvent) {
			guard(func() { st.AddMessage(ev.Message) })
		}),
		transport.Subscribe(s.stream, transport.EventMessageDeleted, func(ev transport.MessageDeletedEvent) {
			guard(func() { st.RemoveMessage(ev.MessageID) })
		}),
		transport.Subscribe(s.stream, transport.EventMessagePinned, func(ev transport.MessagePinnedEvent) {
			guard(func() { st.ApplyPinned(ev.Message) })
		}),
		transport.Subscribe(s.stream, transport.EventMemberJoined, func(ev transport.MemberJoinedEvent) {
			guard(func() { st.AddMember(ev.Member) })
		}),
		transport.Subscribe(s.stream, transport.EventMemberLeft, func(ev transport.MemberLeftEvent) {
			guard(func() { st.RemoveMember(ev.UserID) })
		}),
		transport.Subscribe(s.stream, transport.EventMemberMuted, func(ev transport.MemberMutedEvent) {
			guard(func() { st.SetMemberMuted(ev.UserID, ev.Until != nil, ev.Until) })
		}),
		transport.Subscribe(s.stream, transport.EventTyping, func(ev transport.TypingEvent) {
			guard(func() { st.SetTypingUsers(ev.Users) })
		}),
		transport.Subscribe(s.stream, transport.EventSettings, func(ev transport.SettingsEvent) {
			guard(func() { st.MergeSettings(model.SettingsPatch{SlowMode: ev.SlowMode, IsActive: ev.IsActive}) })
		}),
		transport.Subscribe(s.stream, transport.EventError, func(ev transport.ErrorEvent) {
			guard(func() {
				msg := ev.Message
				if msg == "" {
					msg = "Chat error"
				}
				st.SetError(msg)
				s.notify(NoticeError, msg)
			})
		}),
		s.stream.OnStateChanged(func(ev transport.StateEvent) {
			guard(func() { s.onStreamState(ev) })
		}),
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return
	}
	s.unsubs = append(s.unsubs, unsubs...)
	s.mu.Unlock()
}

func (s *Session) onJoined(gen uint64, ev transport.JoinedEvent) {
	s.store.SetMessages(ev.RecentMessages)
	s.store.SetHasMore(true)
	s.store.SetJoinStatus(JoinJoined, "")
	s.store.SetStatus(StatusConnected)

	s.mu.Lock()
	if gen == s.gen {
		s.hasJoined = true
		s.joining = false
	}
	s.mu.Unlock()
	s.log().Info("joined chat", map[string]any{"event": s.EventID(), "recent": len(ev.RecentMessages)})
}

// onStreamState marks the session disconnected while the stream is down.
// Coming back is signalled by the server's next chat:joined, not by the
// transport reconnecting.
func (s *Session) onStreamState(ev transport.StateEvent) {
	if ev.NewState.Down() {
		s.store.SetStatus(StatusDisconnected)
	}
}

// LoadMoreMessages fetches the page before the oldest loaded message and
// puts it in front of the list. It is a no-op while a load is running, once
// the server reported no more history, or while no message is loaded.
// Failures are logged and returned but never shown to the user.
func (s *Session) LoadMoreMessages(ctx context.Context) error {
	s.mu.Lock()
	eventID, gen := s.eventID, s.gen
	s.mu.Unlock()
	if eventID == "" {
		return nil
	}
	before, ok := s.store.BeginLoadMore()
	if !ok {
		return nil
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()
	resp, err := s.history.GetMessages(ctx, eventID, before, s.cfg.PageSize)
	if !s.current(gen) {
		return nil
	}
	if err != nil {
		s.store.SetLoadingMore(false)
		s.log().Warn("load more messages failed", map[string]any{"event": eventID, "before": before, "error": err.Error()})
		return requestError(err, "load more messages")
	}
	if resp == nil {
		resp = &rest.MessagesResponse{}
	}
	s.store.PrependMessages(resp.Messages)
	s.store.SetHasMore(resp.HasMore)
	s.store.SetLoadingMore(false)
	return nil
}

// SendMessage posts a message. Over a joined, connected stream it is sent
// fire-and-forget and shows up when the server echoes it. Otherwise, or if
// the stream send fails, it goes over REST and the created message is added
// locally. A muted user is refused before anything is sent.
func (s *Session) SendMessage(ctx context.Context, payload model.SendPayload) error {
	if s.store.IsMuted() {
		s.notify(NoticeError, "You are muted in this chat")
		return ErrMuted
	}
	eventID, gen, err := s.target()
	if err != nil {
		return err
	}
	if payload.ClientID == "" {
		payload.ClientID = s.newID()
	}
	if payload.Type == "" {
		payload.Type = model.MessageText
	}

	if s.store.IsConnected() && s.stream.IsConnected() {
		err := s.stream.SendMessage(ctx, payload)
		if err == nil {
			return nil
		}
		s.log().Warn("stream send failed, using REST", map[string]any{"client_id": payload.ClientID, "error": err.Error()})
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	msg, err := s.history.SendMessage(rctx, eventID, payload)
	if err != nil {
		ce := requestError(err, "Failed to send message")
		s.notify(NoticeError, ce.Message)
		return ce
	}
	if msg != nil && s.current(gen) {
		s.store.AddMessage(*msg)
	}
	return nil
}

// SendTyping tells the room the user is typing. Repeats within the stream's
// cool-down are dropped.
func (s *Session) SendTyping(ctx context.Context) error {
	return streamError(s.stream.SendTyping(ctx))
}

// MarkAsRead reports messageID as read in the current room.
func (s *Session) MarkAsRead(ctx context.Context, messageID string) error {
	return streamError(s.stream.MarkAsRead(ctx, messageID))
}

// ModerateMessage deletes, pins or unpins a message. Local state changes
// only after the server accepted the action.
func (s *Session) ModerateMessage(ctx context.Context, messageID string, action model.ModerationAction) error {
	if !action.Valid() {
		return NewError(ErrorInvalidAction, "unknown moderation action "+string(action))
	}
	eventID, gen, err := s.target()
	if err != nil {
		return err
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	if err = s.history.ModerateMessage(rctx, eventID, messageID, action); err != nil {
		ce := requestError(err, "Failed to moderate message")
		s.notify(NoticeError, ce.Message)
		return ce
	}
	if !s.current(gen) {
		return nil
	}
	switch action {
	case model.ActionDelete:
		s.store.RemoveMessage(messageID)
	case model.ActionPin:
		s.store.SetMessagePinned(messageID, true)
	case model.ActionUnpin:
		s.store.SetMessagePinned(messageID, false)
	}
	return nil
}

// MuteUser mutes userID for req.Duration seconds; a duration <= 0 unmutes.
func (s *Session) MuteUser(ctx context.Context, userID string, req model.MuteRequest) error {
	eventID, gen, err := s.target()
	if err != nil {
		return err
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	if err = s.history.MuteMember(rctx, eventID, userID, req); err != nil {
		ce := requestError(err, "Failed to update mute")
		s.notify(NoticeError, ce.Message)
		return ce
	}
	if !s.current(gen) {
		return nil
	}
	muted := req.Duration > 0
	var until *time.Time
	if muted {
		t := s.now().Add(time.Duration(req.Duration) * time.Second)
		until = &t
	}
	s.store.SetMemberMuted(userID, muted, until)
	if muted {
		s.notify(NoticeSuccess, "User muted")
	} else {
		s.notify(NoticeSuccess, "User unmuted")
	}
	return nil
}

// UpdateSettings changes chat settings and merges them into the local chat
// info once the server accepted them.
func (s *Session) UpdateSettings(ctx context.Context, patch model.SettingsPatch) error {
	eventID, gen, err := s.target()
	if err != nil {
		return err
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	if err = s.history.UpdateSettings(rctx, eventID, patch); err != nil {
		ce := requestError(err, "Failed to update settings")
		s.notify(NoticeError, ce.Message)
		return ce
	}
	if !s.current(gen) {
		return nil
	}
	s.store.MergeSettings(patch)
	s.notify(NoticeSuccess, "Settings updated")
	return nil
}

// LoadMembers replaces the roster and online count with the server's.
func (s *Session) LoadMembers(ctx context.Context, onlineOnly bool) error {
	eventID, gen, err := s.target()
	if err != nil {
		return err
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	resp, err := s.history.GetMembers(rctx, eventID, onlineOnly, s.cfg.MembersLimit)
	if err != nil {
		s.log().Warn("load members failed", map[string]any{"event": eventID, "error": err.Error()})
		return requestError(err, "Failed to load members")
	}
	if resp != nil && s.current(gen) {
		s.store.SetMembers(resp.Members, resp.Online)
	}
	return nil
}

// Teardown leaves the room, drops all session state and clears the join
// latch. It is safe to call at any point and more than once.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	unsubs := s.unsubs
	s.unsubs = nil
	cancelInit := s.cancelInit
	s.cancelInit = nil
	s.eventID = ""
	s.joining = false
	s.hasJoined = false
	s.mu.Unlock()

	if cancelInit != nil {
		cancelInit()
	}
	for _, u := range unsubs {
		u()
	}
	err := s.stream.LeaveRoom(ctx)
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		s.log().Warn("leave room failed", map[string]any{"error": err.Error()})
	} else {
		err = nil
	}
	s.store.Reset()
	return err
}

// Close tears the session down and releases what New opened.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{s.Teardown(context.Background())}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

var _ io.Closer = (*Session)(nil)

func (s *Session) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// target returns the room operations act on and the generation to check
// their results against.
func (s *Session) target() (string, uint64, error) {
	s.mu.Lock()
	eventID, gen := s.eventID, s.gen
	s.mu.Unlock()
	if eventID == "" {
		return "", 0, ErrNotJoined
	}
	if s.store.JoinStatus() == JoinDenied {
		return "", 0, ErrJoinDenied
	}
	return eventID, gen, nil
}

func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) notify(level NoticeLevel, msg string) {
	n := s.notifier
	if n == nil {
		n = logNotifier{logger: s.log()}
	}
	n.Notify(Notice{Level: level, Message: msg})
}
