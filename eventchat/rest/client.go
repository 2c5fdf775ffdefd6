// Package rest is the request/response side of event chat: history pages,
// pinned messages, the REST send fallback, moderation and member listing.
// It performs no retries; callers decide on fallback policy.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vovakirdan/eventchat-sdk/eventchat/credstore"
	"github.com/vovakirdan/eventchat-sdk/eventchat/model"
)

// DefaultTimeout bounds every request made by a client from NewClient.
const DefaultTimeout = 10 * time.Second

// DefaultPageSize is the message page size used when limit <= 0.
const DefaultPageSize = 50

// Client provides REST API access to the event chat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the API root, e.g. "https://api.example.com/v1".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetTimeout changes the per-request timeout. Zero disables it.
func (c *Client) SetTimeout(d time.Duration) {
	clone := *c.httpClient
	clone.Timeout = d
	c.httpClient = &clone
}

// SetTokenSource authenticates every request with a bearer token read from
// src at request time.
func (c *Client) SetTokenSource(src credstore.TokenSource) {
	base := c.httpClient.Transport
	if at, ok := base.(*credstore.AuthTransport); ok {
		base = at.Base
	}
	clone := *c.httpClient
	clone.Transport = &credstore.AuthTransport{Source: src, Base: base}
	c.httpClient = &clone
}

func chatPath(eventID string) string {
	return "/events/" + url.PathEscape(eventID) + "/chat"
}

// GetChat checks whether the viewer may join and returns the chat info.
func (c *Client) GetChat(ctx context.Context, eventID string) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.get(ctx, chatPath(eventID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMessages retrieves a page of history older than before (empty for the
// newest page).
func (c *Client) GetMessages(ctx context.Context, eventID, before string, limit int) (*MessagesResponse, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}
	q.Set("limit", strconv.Itoa(limit))

	var resp MessagesResponse
	if err := c.get(ctx, chatPath(eventID)+"/messages?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPinnedMessages returns the chat's pinned messages.
func (c *Client) GetPinnedMessages(ctx context.Context, eventID string) ([]model.Message, error) {
	var resp []model.Message
	if err := c.get(ctx, chatPath(eventID)+"/messages/pinned", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendMessage posts a message over REST and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, eventID string, payload model.SendPayload) (*model.Message, error) {
	var resp model.Message
	if err := c.post(ctx, chatPath(eventID)+"/messages", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModerateMessage deletes, pins or unpins a message.
func (c *Client) ModerateMessage(ctx context.Context, eventID, messageID string, action model.ModerationAction) error {
	path := chatPath(eventID) + "/messages/" + url.PathEscape(messageID)
	return c.patch(ctx, path, ModerateRequest{Action: action}, nil)
}

// MuteMember mutes userID for req.Duration seconds; a non-positive duration unmutes.
func (c *Client) MuteMember(ctx context.Context, eventID, userID string, req model.MuteRequest) error {
	path := chatPath(eventID) + "/members/" + url.PathEscape(userID) + "/mute"
	return c.post(ctx, path, req, nil)
}

// UpdateSettings changes slow mode and the active / members-only flags.
func (c *Client) UpdateSettings(ctx context.Context, eventID string, patch model.SettingsPatch) error {
	return c.patch(ctx, chatPath(eventID)+"/settings", patch, nil)
}

// GetMembers lists the roster, optionally only members currently online.
func (c *Client) GetMembers(ctx context.Context, eventID string, onlineOnly bool, limit int) (*MembersResponse, error) {
	q := url.Values{}
	q.Set("online", strconv.FormatBool(onlineOnly))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp MembersResponse
	if err := c.get(ctx, chatPath(eventID)+"/members?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Helper methods

func (c *Client) get(ctx context.Context, path string, dest any) error {
	return c.send(ctx, http.MethodGet, path, nil, dest)
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	return c.send(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) patch(ctx context.Context, path string, body, dest any) error {
	return c.send(ctx, http.MethodPatch, path, body, dest)
}

func (c *Client) send(ctx context.Context, method, path string, body, dest any) error {
	bodyReader := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil {
			apiErr.Message = errResp.Message
			if apiErr.Message == "" {
				apiErr.Message = errResp.Error
			}
		}
		return apiErr
	}

	if dest != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
