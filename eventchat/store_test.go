package eventchat

import (
	"testing"
	"time"

	"github.com/vovakirdan/eventchat-sdk/eventchat/model"
)

func msg(id string) model.Message {
	return model.Message{ID: id, Content: "text " + id, Type: model.MessageText}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(t *testing.T, got []model.Message, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestStoreAddMessageKeepsOrder(t *testing.T) {
	s := NewStore()
	want := []string{"m1", "m2", "m3", "m4"}
	for _, id := range want {
		if !s.AddMessage(msg(id)) {
			t.Fatalf("AddMessage(%s) reported duplicate", id)
		}
	}
	equalIDs(t, s.Snapshot().Messages, want...)
}

func TestStoreAddMessageIgnoresDuplicateID(t *testing.T) {
	s := NewStore()
	s.AddMessage(msg("m1"))
	dup := msg("m1")
	dup.Content = "echo"
	if s.AddMessage(dup) {
		t.Fatalf("duplicate id was added")
	}
	st := s.Snapshot()
	equalIDs(t, st.Messages, "m1")
	if st.Messages[0].Content != "text m1" {
		t.Fatalf("duplicate replaced original: %+v", st.Messages[0])
	}
}

func TestStorePrependMessages(t *testing.T) {
	s := NewStore()
	s.SetMessages([]model.Message{msg("c"), msg("d")})
	s.PrependMessages([]model.Message{msg("a"), msg("b")})
	equalIDs(t, s.Snapshot().Messages, "a", "b", "c", "d")

	// page order is kept as given, overlap skipped
	s.PrependMessages([]model.Message{msg("z"), msg("a"), msg("y")})
	equalIDs(t, s.Snapshot().Messages, "z", "y", "a", "b", "c", "d")
	if s.OldestMessageID() != "z" {
		t.Fatalf("oldest = %q", s.OldestMessageID())
	}
}

func TestStoreMissingIDsAreNoops(t *testing.T) {
	s := NewStore()
	s.SetMessages([]model.Message{msg("m1")})

	if s.RemoveMessage("nope") {
		t.Fatalf("RemoveMessage on absent id reported a change")
	}
	if s.UpdateMessage(msg("nope")) {
		t.Fatalf("UpdateMessage on absent id reported a change")
	}
	if s.SetMessagePinned("nope", true) {
		t.Fatalf("SetMessagePinned on absent id reported a change")
	}
	if s.UpdateMember("nope", func(m *model.Member) { m.Name = "x" }) {
		t.Fatalf("UpdateMember on absent id reported a change")
	}
	equalIDs(t, s.Snapshot().Messages, "m1")

	s.Reset()
	s.RemoveMessage("m1")
	s.SetMemberMuted("u1", true, nil)
	s.MergeSettings(model.SettingsPatch{})
	if st := s.Snapshot(); len(st.Messages) != 0 || st.Info != nil {
		t.Fatalf("reset store mutated: %+v", st)
	}
}

func TestStorePinnedIsDerivedFromMessages(t *testing.T) {
	s := NewStore()
	s.SetMessages([]model.Message{msg("m1"), msg("m2")})

	pinned := msg("m1")
	pinned.IsPinned = true
	s.ApplyPinned(pinned)

	st := s.Snapshot()
	if !st.Messages[0].IsPinned {
		t.Fatalf("m1 not flagged pinned")
	}
	equalIDs(t, st.Pinned, "m1")

	pinned.IsPinned = false
	s.ApplyPinned(pinned)
	st = s.Snapshot()
	if st.Messages[0].IsPinned {
		t.Fatalf("m1 still flagged pinned")
	}
	equalIDs(t, st.Pinned)

	// unpinning through the flag and removing the message both clear the view
	s.SetMessagePinned("m2", true)
	equalIDs(t, s.PinnedMessages(), "m2")
	s.RemoveMessage("m2")
	equalIDs(t, s.PinnedMessages())
}

func TestStorePinnedOutsideLoadedWindow(t *testing.T) {
	s := NewStore()
	old := msg("old")
	old.IsPinned = true
	s.SetPinnedMessages([]model.Message{old})
	s.SetMessages([]model.Message{msg("m1")})

	equalIDs(t, s.PinnedMessages(), "old")

	// seed landing after the joined snapshot is equivalent
	s2 := NewStore()
	s2.SetMessages([]model.Message{msg("m1")})
	s2.SetPinnedMessages([]model.Message{old})
	equalIDs(t, s2.PinnedMessages(), "old")

	// once the message is backfilled, the list copy carries the flag
	s.PrependMessages([]model.Message{msg("old")})
	st := s.Snapshot()
	equalIDs(t, st.Messages, "old", "m1")
	if !st.Messages[0].IsPinned {
		t.Fatalf("backfilled pinned message lost its flag")
	}
	equalIDs(t, st.Pinned, "old")

	s.SetMessagePinned("old", false)
	equalIDs(t, s.PinnedMessages())
}

func TestStorePinnedSurvivesSnapshotReplace(t *testing.T) {
	s := NewStore()
	m := msg("m1")
	m.IsPinned = true
	s.SetMessages([]model.Message{m, msg("m2")})
	s.SetMessages([]model.Message{msg("m3")})
	equalIDs(t, s.PinnedMessages(), "m1")
}

func TestStoreOnlineCount(t *testing.T) {
	s := NewStore()
	s.SetMembers([]model.Member{{UserID: "a"}}, 3)

	s.AddMember(model.Member{UserID: "b"})
	if got := s.OnlineCount(); got != 4 {
		t.Fatalf("online after add = %d", got)
	}
	s.RemoveMember("b")
	if got := s.OnlineCount(); got != 3 {
		t.Fatalf("online after remove = %d", got)
	}

	empty := NewStore()
	empty.RemoveMember("ghost")
	empty.RemoveMember("ghost")
	if got := empty.OnlineCount(); got != 0 {
		t.Fatalf("online on empty roster = %d", got)
	}
}

func TestStoreSetChatInfoDerivesRoleAndMute(t *testing.T) {
	s := NewStore()
	until := time.Now().Add(time.Hour)
	s.SetChatInfo(model.ChatInfo{
		ID:            "c1",
		CurrentUserID: "me",
		UserRole:      model.RoleModerator,
		IsMuted:       true,
		MutedUntil:    &until,
	})
	st := s.Snapshot()
	if st.UserRole != model.RoleModerator || !st.IsMuted {
		t.Fatalf("role/mute not derived: %+v", st)
	}

	s.SetChatInfo(model.ChatInfo{ID: "c1", CurrentUserID: "me"})
	st = s.Snapshot()
	if st.UserRole != model.RoleMember || st.IsMuted {
		t.Fatalf("role/mute not reset: %+v", st)
	}
}

func TestStoreMuteFollowsSelfRosterEntry(t *testing.T) {
	s := NewStore()
	s.SetChatInfo(model.ChatInfo{ID: "c1", CurrentUserID: "me"})

	// self not in roster yet
	s.SetMemberMuted("me", true, nil)
	if !s.IsMuted() {
		t.Fatalf("self mute not applied without roster")
	}
	s.SetMemberMuted("me", false, nil)

	s.SetMembers([]model.Member{{UserID: "me", IsMuted: true}, {UserID: "other"}}, 2)
	if !s.IsMuted() {
		t.Fatalf("mute not derived from roster")
	}
	s.UpdateMember("me", func(m *model.Member) { m.IsMuted = false })
	if s.IsMuted() {
		t.Fatalf("mute not cleared from roster")
	}

	s.SetMemberMuted("other", true, nil)
	if s.IsMuted() {
		t.Fatalf("another member's mute leaked into the session")
	}
	if st := s.Snapshot(); !st.Members[1].IsMuted || st.Info.IsMuted {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestStoreMuteExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore()
	s.now = func() time.Time { return now }
	s.SetChatInfo(model.ChatInfo{CurrentUserID: "me"})

	until := now.Add(time.Minute)
	s.SetMemberMuted("me", true, &until)
	if !s.IsMuted() {
		t.Fatalf("expected muted")
	}
	now = now.Add(2 * time.Minute)
	if s.IsMuted() {
		t.Fatalf("expired mute still applies")
	}
}

func TestStoreMergeSettings(t *testing.T) {
	s := NewStore()
	slow := 30
	s.MergeSettings(model.SettingsPatch{SlowMode: &slow})
	if s.Snapshot().Info != nil {
		t.Fatalf("settings created chat info")
	}

	s.SetChatInfo(model.ChatInfo{ID: "c1", IsActive: true, MembersOnly: true})
	off := false
	s.MergeSettings(model.SettingsPatch{SlowMode: &slow, IsActive: &off})
	info := s.Snapshot().Info
	if info.SlowMode != 30 || info.IsActive || !info.MembersOnly {
		t.Fatalf("unexpected info after merge: %+v", info)
	}
}

func TestStoreBeginLoadMore(t *testing.T) {
	s := NewStore()
	if _, ok := s.BeginLoadMore(); ok {
		t.Fatalf("load more allowed with no messages")
	}
	s.SetMessages([]model.Message{msg("m5"), msg("m6")})

	before, ok := s.BeginLoadMore()
	if !ok || before != "m5" {
		t.Fatalf("BeginLoadMore = %q, %v", before, ok)
	}
	if _, ok := s.BeginLoadMore(); ok {
		t.Fatalf("second load allowed while first is running")
	}
	s.SetLoadingMore(false)
	s.SetHasMore(false)
	if _, ok := s.BeginLoadMore(); ok {
		t.Fatalf("load allowed after history exhausted")
	}
}

func TestStoreResetIsIdempotent(t *testing.T) {
	s := NewStore()
	s.SetEventID("evt1")
	s.SetStatus(StatusConnected)
	s.SetJoinStatus(JoinDenied, "not a member")
	s.AddMessage(msg("m1"))
	s.SetTypingUsers([]model.TypingUser{{ID: "u1", Name: "Ann"}})

	s.Reset()
	s.Reset()
	st := s.Snapshot()
	if st.EventID != "" || st.Status != StatusDisconnected || st.Join != JoinNone || !st.CanJoin() {
		t.Fatalf("flags not reset: %+v", st)
	}
	if len(st.Messages) != 0 || len(st.TypingUsers) != 0 || !st.HasMore {
		t.Fatalf("collections not reset: %+v", st)
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	m := msg("m1")
	m.ReplyTo = &model.ReplyRef{ID: "m0", Content: "hi"}
	s.AddMessage(m)

	st := s.Snapshot()
	st.Messages[0].Content = "changed"
	st.Messages[0].ReplyTo.Content = "changed"

	again := s.Snapshot()
	if again.Messages[0].Content != "text m1" || again.Messages[0].ReplyTo.Content != "hi" {
		t.Fatalf("snapshot aliases store: %+v", again.Messages[0])
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	var seen []int
	unsubscribe := s.Subscribe(func(st State) { seen = append(seen, len(st.Messages)) })

	s.AddMessage(msg("m1"))
	s.AddMessage(msg("m1")) // duplicate, no change
	s.AddMessage(msg("m2"))
	unsubscribe()
	s.AddMessage(msg("m3"))

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("notifications = %v", seen)
	}
}

func TestStoreSnapshotReplaceCarriesPinFlags(t *testing.T) {
	s := NewStore()
	m := msg("m1")
	m.IsPinned = true
	s.SetMessages([]model.Message{m})

	// unpinned while the stream was down; the rejoin snapshot says so
	s.SetMessages([]model.Message{msg("m1"), msg("m2")})
	equalIDs(t, s.PinnedMessages())
	if s.Snapshot().Messages[0].IsPinned {
		t.Fatalf("stale pin flag kept")
	}
}

func TestStorePinnedOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(id string, minutes int, pinned bool) model.Message {
		m := msg(id)
		m.CreatedAt = base.Add(time.Duration(minutes) * time.Minute)
		m.IsPinned = pinned
		return m
	}

	s := NewStore()
	s.SetMessages([]model.Message{at("m1", 10, true), at("m2", 11, false), at("m3", 12, true)})
	s.SetPinnedMessages([]model.Message{at("old2", 2, true), at("old1", 1, true)})
	equalIDs(t, s.PinnedMessages(), "old1", "old2", "m1", "m3")

	// a backfilled pin moves into list order
	s.PrependMessages([]model.Message{at("old2", 2, false)})
	equalIDs(t, s.PinnedMessages(), "old1", "old2", "m1", "m3")
	if st := s.Snapshot(); !st.Messages[0].IsPinned {
		t.Fatalf("backfilled pin lost its flag")
	}
}
