package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the backend's message timestamp format: ISO-8601 local
// time without a zone designator.
const TimeLayout = "2006-01-02T15:04:05"

// Timestamp wraps time.Time with the backend's zone-less JSON encoding.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	// Some backends append fractional seconds; cut them off.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// ChatMessage is one message in a room, produced by the backend either via
// live push or via paginated history fetch. Identity is ID; the value is
// immutable once received.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt"`
	Read      bool      `json:"read"`
}

// ChatRoom is a read-only projection of a backend-owned conversation.
type ChatRoom struct {
	ID           string       `json:"id"`
	Participants []User       `json:"participants"`
	LastMessage  *ChatMessage `json:"lastMessage,omitempty"`
}

// ChatMessageRequest is the outbound send payload. RoomID is empty when the
// room should be created or resolved from OtherUserID on the backend side.
type ChatMessageRequest struct {
	Content     string `json:"content"`
	RoomID      string `json:"roomId,omitempty"`
	OtherUserID string `json:"otherUserId,omitempty"`
}
