package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/internal/identity"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

const resultSuccess = "SUCCESS"

// envelope is the backend's response wrapper for every chat operation.
type envelope struct {
	Result       string          `json:"result"`
	Data         json.RawMessage `json:"data"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
}

// Client is the request/response client for non-streaming chat operations.
// Every operation is a single request: the gateway never retries on its own,
// retry policy belongs to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     identity.TokenStore
}

func NewClient(baseURL string, tokens identity.TokenStore) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens: tokens,
	}
}

// CheckExistingRoom resolves whether a direct-message room already exists
// with the given user. ok is false when the backend reports no room.
func (c *Client) CheckExistingRoom(ctx context.Context, userID string) (roomID string, ok bool, err error) {
	var data *string
	if err := c.get(ctx, fmt.Sprintf("/chat/rooms/check/%s", url.PathEscape(userID)), nil, &data); err != nil {
		return "", false, err
	}
	if data == nil || *data == "" {
		return "", false, nil
	}
	return *data, true, nil
}

// GetRooms fetches one page of the room list.
func (c *Client) GetRooms(ctx context.Context, page, size int) ([]domain.ChatRoom, error) {
	var rooms []domain.ChatRoom
	if err := c.get(ctx, "/chat/rooms", pageQuery(page, size), &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetMessages fetches one history page for a room. Pages are 1-indexed,
// page 1 is most recent; each page is ordered newest-first.
func (c *Client) GetMessages(ctx context.Context, roomID string, page, size int) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	path := fmt.Sprintf("/chat/rooms/%s/messages", url.PathEscape(roomID))
	if err := c.get(ctx, path, pageQuery(page, size), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkAsRead records a read receipt for one message.
func (c *Client) MarkAsRead(ctx context.Context, roomID, messageID string) error {
	path := fmt.Sprintf("/chat/rooms/%s/messages/%s/read",
		url.PathEscape(roomID), url.PathEscape(messageID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// LeaveRoom removes the current user from a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/chat/rooms/%s", url.PathEscape(roomID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if token, err := c.tokens.Token(); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Result != resultSuccess {
		srvErr := &domain.ServerError{Code: env.ErrorCode, Message: env.ErrorMessage}
		if srvErr.IsAuthFailure() {
			c.tokens.Invalidate()
		}
		l := log.Ctx(ctx)
		l.Warn().Str("path", path).Str("code", env.ErrorCode).Msg("chat operation rejected by backend")
		return srvErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return nil
}
