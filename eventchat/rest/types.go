package rest

import "github.com/vovakirdan/eventchat-sdk/eventchat/model"

// ChatResponse is the join-eligibility check plus bootstrap chat info.
type ChatResponse struct {
	CanJoin bool            `json:"canJoin"`
	Reason  string          `json:"reason,omitempty"`
	Chat    *model.ChatInfo `json:"chat,omitempty"`
}

// MessagesResponse contains a page of messages with pagination info.
type MessagesResponse struct {
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

// MembersResponse is a roster page and the server's online count.
type MembersResponse struct {
	Members []model.Member `json:"members"`
	Online  int            `json:"online"`
}

// ModerateRequest is the body of a moderation call.
type ModerateRequest struct {
	Action model.ModerationAction `json:"action"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
