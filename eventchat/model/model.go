// Package model holds the chat data types shared by the stream, REST and
// session layers.
package model

import "time"

// Role is a participant's role inside an event chat.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleOrganizer Role = "organizer"
)

// CanModerate reports whether the role may delete, pin or mute.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleOrganizer
}

// MessageType classifies a chat message.
type MessageType string

const (
	MessageText         MessageType = "text"
	MessageImage        MessageType = "image"
	MessageAnnouncement MessageType = "announcement"
	MessageSystem       MessageType = "system"
)

// Sender is the author of a message as of the time it was sent.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// ReplyRef is a denormalized snapshot of the message being replied to.
type ReplyRef struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderName string `json:"senderName"`
}

// Message is a single chat message. ID is assigned by the server.
type Message struct {
	ID        string      `json:"id"`
	ClientID  string      `json:"clientId,omitempty"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Sender    Sender      `json:"sender"`
	ReplyTo   *ReplyRef   `json:"replyTo,omitempty"`
	IsPinned  bool        `json:"isPinned"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	return m
}

// Member is a participant in the chat roster.
type Member struct {
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	Avatar     string     `json:"avatar,omitempty"`
	Role       Role       `json:"role"`
	IsMuted    bool       `json:"isMuted"`
	MutedUntil *time.Time `json:"mutedUntil,omitempty"`
	IsOnline   bool       `json:"isOnline"`
	JoinedAt   time.Time  `json:"joinedAt"`
}

// Clone returns a copy that shares no pointers with m.
func (m Member) Clone() Member {
	if m.MutedUntil != nil {
		t := *m.MutedUntil
		m.MutedUntil = &t
	}
	return m
}

// ChatInfo is the chat configuration plus the viewer's own standing in it.
// SlowMode is the minimum interval between messages in seconds, 0 = off.
type ChatInfo struct {
	ID            string     `json:"id"`
	EventID       string     `json:"eventId"`
	SlowMode      int        `json:"slowMode"`
	IsActive      bool       `json:"isActive"`
	MembersOnly   bool       `json:"membersOnly"`
	CurrentUserID string     `json:"currentUserId,omitempty"`
	UserRole      Role       `json:"userRole"`
	IsMuted       bool       `json:"isMuted"`
	MutedUntil    *time.Time `json:"mutedUntil,omitempty"`
}

// Clone returns a copy that shares no pointers with c.
func (c ChatInfo) Clone() ChatInfo {
	if c.MutedUntil != nil {
		t := *c.MutedUntil
		c.MutedUntil = &t
	}
	return c
}

// SettingsPatch carries the chat settings an organizer may change.
// Nil fields are left untouched.
type SettingsPatch struct {
	SlowMode    *int  `json:"slowMode,omitempty"`
	IsActive    *bool `json:"isActive,omitempty"`
	MembersOnly *bool `json:"membersOnly,omitempty"`
}

// Apply merges the non-nil fields of p into info.
func (p SettingsPatch) Apply(info *ChatInfo) {
	if info == nil {
		return
	}
	if p.SlowMode != nil {
		info.SlowMode = *p.SlowMode
	}
	if p.IsActive != nil {
		info.IsActive = *p.IsActive
	}
	if p.MembersOnly != nil {
		info.MembersOnly = *p.MembersOnly
	}
}

// TypingUser is an entry of the server-maintained typing list.
type TypingUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SendPayload is an outgoing message.
type SendPayload struct {
	ClientID string      `json:"clientId,omitempty"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type,omitempty"`
	ReplyTo  string      `json:"replyTo,omitempty"`
}

// ModerationAction is applied to a single message.
type ModerationAction string

const (
	ActionDelete ModerationAction = "delete"
	ActionPin    ModerationAction = "pin"
	ActionUnpin  ModerationAction = "unpin"
)

// Valid reports whether a is a known action.
func (a ModerationAction) Valid() bool {
	switch a {
	case ActionDelete, ActionPin, ActionUnpin:
		return true
	}
	return false
}

// MuteRequest mutes a member for Duration seconds. Duration <= 0 unmutes.
type MuteRequest struct {
	Duration int    `json:"duration"`
	Reason   string `json:"reason,omitempty"`
}
