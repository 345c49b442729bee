package chat

import (
	"context"

	"github.com/youuungh/sns-chat-go/internal/conn"
	"github.com/youuungh/sns-chat-go/internal/domain"
)

// Service is the public contract the UI layer consumes. One logical owner
// (a single chat screen) is expected to issue commands at a time; the
// message stream itself supports any number of passive observers.
type Service interface {
	// ConnectWebSocket resolves the current user and starts the live
	// connection. Connection failures are handled internally by the
	// reconnection state machine; the returned error only reports a
	// missing local identity.
	ConnectWebSocket(ctx context.Context) error

	// Disconnect tears down the connection. No reconnection occurs until
	// ConnectWebSocket is called again.
	Disconnect()

	// SendMessage sends content to roomID, or with otherUserID when
	// roomID is empty so the backend creates or resolves the room. The
	// resolved room id is returned when it could be determined. Returns
	// domain.ErrNotConnected when no session is live.
	SendMessage(ctx context.Context, content, roomID, otherUserID string) (string, error)

	// ObserveMessages attaches to the live broadcast stream.
	ObserveMessages() (<-chan domain.ChatMessage, func())

	// Gateway pass-throughs. Each first checks reachability and
	// short-circuits to domain.ErrNetworkUnavailable when offline.
	GetMessages(ctx context.Context, roomID string, page, size int) ([]domain.ChatMessage, error)
	GetRooms(ctx context.Context, page, size int) ([]domain.ChatRoom, error)
	MarkAsRead(ctx context.Context, roomID, messageID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	CheckExistingRoom(ctx context.Context, userID string) (string, bool, error)

	// RecentCached reads locally cached history, for offline display.
	RecentCached(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)

	// ResetReconnectAttempts clears the reconnect backoff counter.
	ResetReconnectAttempts()

	// ConnectionState reports the connection manager's state.
	ConnectionState() conn.State

	Start(ctx context.Context) error
	Stop()
}

// Gateway is the request/response surface the facade delegates to.
type Gateway interface {
	CheckExistingRoom(ctx context.Context, userID string) (string, bool, error)
	GetRooms(ctx context.Context, page, size int) ([]domain.ChatRoom, error)
	GetMessages(ctx context.Context, roomID string, page, size int) ([]domain.ChatMessage, error)
	MarkAsRead(ctx context.Context, roomID, messageID string) error
	LeaveRoom(ctx context.Context, roomID string) error
}

// HistoryCache stores fetched history locally for offline reads.
type HistoryCache interface {
	SavePage(ctx context.Context, roomID string, msgs []domain.ChatMessage) error
	RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
}
