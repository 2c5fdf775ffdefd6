package eventchat

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/eventchat-sdk/eventchat/model"
)

// ConnectionStatus is the session's view of the live stream.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// JoinStatus tracks the server-confirmed join of the session's room.
type JoinStatus int

const (
	JoinNone JoinStatus = iota
	JoinJoining
	JoinJoined
	JoinDenied
)

func (s JoinStatus) String() string {
	switch s {
	case JoinJoining:
		return "joining"
	case JoinJoined:
		return "joined"
	case JoinDenied:
		return "join-denied"
	default:
		return "not-joined"
	}
}

// State is a point-in-time copy of a session, safe to keep and read.
type State struct {
	EventID     string
	Status      ConnectionStatus
	Join        JoinStatus
	JoinError   string // reason given by the server when Join is JoinDenied
	Error       string // last visible error, e.g. a chat:error push
	Info        *model.ChatInfo
	UserRole    model.Role
	IsMuted     bool
	MutedUntil  *time.Time
	Messages    []model.Message
	Pinned      []model.Message
	HasMore     bool
	LoadingMore bool
	Members     []model.Member
	OnlineCount int
	TypingUsers []model.TypingUser
}

// IsConnected reports whether the session is joined over a live stream.
func (s State) IsConnected() bool { return s.Status == StatusConnected }

// CanJoin is false only after the server declared the viewer ineligible.
func (s State) CanJoin() bool { return s.Join != JoinDenied }

// Store is the single source of truth for one chat session. Every mutation
// replaces whole values keyed by id; nothing is deep-merged. Mutations that
// reference an id the store does not hold are no-ops, so late responses
// landing on a freshly reset store are harmless.
//
// A message's IsPinned flag is the only record of pin state: the pinned list
// is derived from it on read, oldest first. Pinned messages older than the
// loaded window are held aside until they scroll into the list.
//
// The session mute flag follows the current user's roster entry.
type Store struct {
	now func() time.Time

	mu          sync.Mutex
	eventID     string
	selfID      string
	status      ConnectionStatus
	join        JoinStatus
	joinError   string
	err         string
	info        *model.ChatInfo
	role        model.Role
	muted       bool
	mutedUntil  *time.Time
	messages    []model.Message
	detached    map[string]model.Message
	hasMore     bool
	loadingMore bool
	members     []model.Member
	online      int
	typing      []model.TypingUser

	subMu sync.Mutex
	subID uint64
	subs  map[uint64]func(State)
}

// NewStore returns an empty, disconnected store.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.eventID = ""
	s.selfID = ""
	s.status = StatusDisconnected
	s.join = JoinNone
	s.joinError = ""
	s.err = ""
	s.info = nil
	s.role = model.RoleMember
	s.muted = false
	s.mutedUntil = nil
	s.messages = nil
	s.detached = make(map[string]model.Message)
	s.hasMore = true
	s.loadingMore = false
	s.members = nil
	s.online = 0
	s.typing = nil
}

// Reset restores the initial state. Safe to call repeatedly.
func (s *Store) Reset() {
	s.update(func() bool {
		s.resetLocked()
		return true
	})
}

// Subscribe calls fn with a fresh snapshot after every mutation.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs == nil {
		s.subs = make(map[uint64]func(State))
	}
	s.subID++
	id := s.subID
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// update runs fn under the lock and publishes if it reports a change.
func (s *Store) update(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	s.mu.Unlock()
	if changed {
		s.publish()
	}
	return changed
}

func (s *Store) publish() {
	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	if len(subs) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		EventID:     s.eventID,
		Status:      s.status,
		Join:        s.join,
		JoinError:   s.joinError,
		Error:       s.err,
		UserRole:    s.role,
		IsMuted:     s.mutedLocked(),
		MutedUntil:  cloneTime(s.mutedUntil),
		Messages:    make([]model.Message, len(s.messages)),
		Pinned:      s.pinnedLocked(),
		HasMore:     s.hasMore,
		LoadingMore: s.loadingMore,
		Members:     make([]model.Member, len(s.members)),
		OnlineCount: s.online,
		TypingUsers: append([]model.TypingUser(nil), s.typing...),
	}
	if s.info != nil {
		info := s.info.Clone()
		st.Info = &info
	}
	for i, m := range s.messages {
		st.Messages[i] = m.Clone()
	}
	for i, m := range s.members {
		st.Members[i] = m.Clone()
	}
	return st
}

// Session flags

func (s *Store) SetEventID(id string) {
	s.update(func() bool {
		s.eventID = id
		return true
	})
}

func (s *Store) SetStatus(status ConnectionStatus) {
	s.update(func() bool {
		if s.status == status {
			return false
		}
		s.status = status
		return true
	})
}

// SetJoinStatus records the join state; reason is kept only for JoinDenied.
func (s *Store) SetJoinStatus(join JoinStatus, reason string) {
	s.update(func() bool {
		s.join = join
		s.joinError = ""
		if join == JoinDenied {
			s.joinError = reason
		}
		return true
	})
}

func (s *Store) SetError(msg string) {
	s.update(func() bool {
		s.err = msg
		return true
	})
}

func (s *Store) ClearError() { s.SetError("") }

func (s *Store) SetHasMore(hasMore bool) {
	s.update(func() bool {
		s.hasMore = hasMore
		return true
	})
}

func (s *Store) SetLoadingMore(loading bool) {
	s.update(func() bool {
		s.loadingMore = loading
		return true
	})
}

// BeginLoadMore claims the single backfill slot. It returns the cursor for
// the next older page, or false when a load is running, history is exhausted
// or there is nothing to page back from.
func (s *Store) BeginLoadMore() (before string, ok bool) {
	s.update(func() bool {
		if s.loadingMore || !s.hasMore || len(s.messages) == 0 {
			return false
		}
		s.loadingMore = true
		before, ok = s.messages[0].ID, true
		return true
	})
	return before, ok
}

func (s *Store) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusConnected
}

func (s *Store) JoinStatus() JoinStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.join
}

func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// IsMuted reports whether the current user is muted right now. A mute whose
// expiry has passed no longer counts.
func (s *Store) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutedLocked()
}

func (s *Store) mutedLocked() bool {
	if !s.muted {
		return false
	}
	return s.mutedUntil == nil || s.now().Before(*s.mutedUntil)
}

// Chat info

// SetChatInfo replaces the chat info and takes the user's role and mute
// state from it. This is the only place those are derived from the info.
func (s *Store) SetChatInfo(info model.ChatInfo) {
	s.update(func() bool {
		c := info.Clone()
		s.info = &c
		if info.UserRole != "" {
			s.role = info.UserRole
		} else {
			s.role = model.RoleMember
		}
		if info.CurrentUserID != "" {
			s.selfID = info.CurrentUserID
		}
		s.setMutedLocked(info.IsMuted, info.MutedUntil)
		if i := s.memberIndexLocked(s.selfID); i >= 0 {
			s.members[i].IsMuted = info.IsMuted
			s.members[i].MutedUntil = cloneTime(info.MutedUntil)
		}
		return true
	})
}

// MergeSettings applies patch to the chat info. No-op without chat info.
func (s *Store) MergeSettings(patch model.SettingsPatch) {
	s.update(func() bool {
		if s.info == nil {
			return false
		}
		patch.Apply(s.info)
		return true
	})
}

// Messages

// SetMessages replaces the message list. The pin flags of msgs are taken
// as current; pinned messages that leave the list stay pinned.
func (s *Store) SetMessages(msgs []model.Message) {
	s.update(func() bool {
		for _, m := range s.messages {
			if m.IsPinned {
				s.detached[m.ID] = m.Clone()
			}
		}
		s.messages = s.messages[:0:0]
		seen := make(map[string]bool, len(msgs))
		for _, m := range msgs {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			delete(s.detached, m.ID)
			s.messages = append(s.messages, m.Clone())
		}
		return true
	})
}

// AddMessage appends msg unless a message with the same id is already held.
// It reports whether msg was added.
func (s *Store) AddMessage(msg model.Message) bool {
	return s.update(func() bool {
		if s.messageIndexLocked(msg.ID) >= 0 {
			return false
		}
		s.messages = append(s.messages, msg.Clone())
		s.adoptLocked(msg)
		return true
	})
}

// PrependMessages puts an older page in front of the list, in page order.
// Messages already held are skipped.
func (s *Store) PrependMessages(msgs []model.Message) {
	s.update(func() bool {
		page := make([]model.Message, 0, len(msgs))
		seen := make(map[string]bool, len(msgs))
		for _, m := range msgs {
			if seen[m.ID] || s.messageIndexLocked(m.ID) >= 0 {
				continue
			}
			seen[m.ID] = true
			page = append(page, m.Clone())
		}
		if len(page) == 0 {
			return false
		}
		s.messages = append(page, s.messages...)
		for _, m := range page {
			s.adoptLocked(m)
		}
		return true
	})
}

// UpdateMessage replaces the message with msg.ID. No-op if absent.
func (s *Store) UpdateMessage(msg model.Message) bool {
	return s.update(func() bool {
		i := s.messageIndexLocked(msg.ID)
		if i < 0 {
			return false
		}
		s.messages[i] = msg.Clone()
		return true
	})
}

// RemoveMessage drops the message with id, including from the pinned view.
// No-op if absent.
func (s *Store) RemoveMessage(id string) bool {
	return s.update(func() bool {
		changed := false
		if i := s.messageIndexLocked(id); i >= 0 {
			s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
			changed = true
		}
		if _, ok := s.detached[id]; ok {
			delete(s.detached, id)
			changed = true
		}
		return changed
	})
}

// OldestMessageID is the pagination cursor for the next older page.
func (s *Store) OldestMessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[0].ID
}

// Pin state

// SetPinnedMessages seeds pin state from the server's pinned list.
func (s *Store) SetPinnedMessages(msgs []model.Message) {
	s.update(func() bool {
		for _, m := range msgs {
			m.IsPinned = true
			s.applyPinLocked(m)
		}
		return true
	})
}

// ApplyPinned applies a pin change carried by a full message, as pushed by
// the server. The message need not be in the loaded list.
func (s *Store) ApplyPinned(msg model.Message) {
	s.update(func() bool {
		s.applyPinLocked(msg)
		return true
	})
}

// SetMessagePinned flips the pin flag of a held message. It reports false
// when the store knows nothing about id.
func (s *Store) SetMessagePinned(id string, pinned bool) bool {
	return s.update(func() bool {
		if i := s.messageIndexLocked(id); i >= 0 {
			s.messages[i].IsPinned = pinned
			return true
		}
		if _, ok := s.detached[id]; ok {
			if !pinned {
				delete(s.detached, id)
			}
			return true
		}
		return false
	})
}

// PinnedMessages returns pinned messages, oldest first.
func (s *Store) PinnedMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinnedLocked()
}

func (s *Store) applyPinLocked(msg model.Message) {
	if i := s.messageIndexLocked(msg.ID); i >= 0 {
		s.messages[i].IsPinned = msg.IsPinned
	} else if msg.IsPinned {
		s.detached[msg.ID] = msg.Clone()
	} else {
		delete(s.detached, msg.ID)
	}
}

// pinnedLocked lists held-aside pins by creation time, then pinned messages
// in list order. Held-aside messages are all older than the loaded window.
func (s *Store) pinnedLocked() []model.Message {
	out := make([]model.Message, 0, len(s.detached))
	for _, m := range s.detached {
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, m := range s.messages {
		if m.IsPinned {
			out = append(out, m.Clone())
		}
	}
	return out
}

// adoptLocked drops the held-aside copy of a message entering the list;
// the list copy keeps its pin.
func (s *Store) adoptLocked(m model.Message) {
	if _, ok := s.detached[m.ID]; ok {
		delete(s.detached, m.ID)
		s.messages[s.messageIndexLocked(m.ID)].IsPinned = true
	}
}

func (s *Store) messageIndexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Members

// SetMembers replaces the roster and takes the online count as given.
func (s *Store) SetMembers(members []model.Member, online int) {
	s.update(func() bool {
		s.members = s.members[:0:0]
		for _, m := range members {
			if i := s.memberIndexLocked(m.UserID); i >= 0 {
				s.members[i] = m.Clone()
				continue
			}
			s.members = append(s.members, m.Clone())
		}
		s.online = max(online, 0)
		s.deriveMuteLocked()
		return true
	})
}

// AddMember inserts or replaces m and counts one more member online.
func (s *Store) AddMember(m model.Member) {
	s.update(func() bool {
		if i := s.memberIndexLocked(m.UserID); i >= 0 {
			s.members[i] = m.Clone()
		} else {
			s.members = append(s.members, m.Clone())
		}
		s.online++
		s.deriveMuteLocked()
		return true
	})
}

// RemoveMember drops userID from the roster and counts one fewer online,
// never going below zero.
func (s *Store) RemoveMember(userID string) {
	s.update(func() bool {
		if i := s.memberIndexLocked(userID); i >= 0 {
			s.members = append(s.members[:i:i], s.members[i+1:]...)
		}
		if s.online > 0 {
			s.online--
		}
		return true
	})
}

// UpdateMember patches the member with userID. No-op if absent.
func (s *Store) UpdateMember(userID string, patch func(*model.Member)) bool {
	return s.update(func() bool {
		i := s.memberIndexLocked(userID)
		if i < 0 {
			return false
		}
		patch(&s.members[i])
		s.deriveMuteLocked()
		return true
	})
}

// SetMemberMuted records a mute change for userID. A change for the current
// user also updates the session mute flag, even when the roster has not been
// loaded.
func (s *Store) SetMemberMuted(userID string, muted bool, until *time.Time) {
	s.update(func() bool {
		changed := false
		if i := s.memberIndexLocked(userID); i >= 0 {
			s.members[i].IsMuted = muted
			s.members[i].MutedUntil = cloneTime(until)
			changed = true
		}
		if userID != "" && userID == s.selfID {
			s.setMutedLocked(muted, until)
			changed = true
		}
		return changed
	})
}

func (s *Store) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Store) deriveMuteLocked() {
	if i := s.memberIndexLocked(s.selfID); i >= 0 {
		s.setMutedLocked(s.members[i].IsMuted, s.members[i].MutedUntil)
	}
}

func (s *Store) setMutedLocked(muted bool, until *time.Time) {
	s.muted = muted
	s.mutedUntil = nil
	if muted {
		s.mutedUntil = cloneTime(until)
	}
	if s.info != nil {
		s.info.IsMuted = muted
		s.info.MutedUntil = cloneTime(s.mutedUntil)
	}
}

func (s *Store) memberIndexLocked(userID string) int {
	if userID == "" {
		return -1
	}
	for i := range s.members {
		if s.members[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Typing

// SetTypingUsers replaces the typing list with the server's.
func (s *Store) SetTypingUsers(users []model.TypingUser) {
	s.update(func() bool {
		s.typing = append([]model.TypingUser(nil), users...)
		return true
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
