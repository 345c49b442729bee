package domain

import (
	"github.com/google/uuid"
)

// ChatSession is the identity handshake sent as the first frame after the
// transport opens. A fresh nonce is generated for every connection attempt;
// the session is discarded on disconnect.
type ChatSession struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	SessionID string `json:"sessionId"`
}

// NewChatSession builds a session for one connection attempt.
func NewChatSession(userID, userName string) ChatSession {
	return ChatSession{
		UserID:    userID,
		UserName:  userName,
		SessionID: uuid.New().String(),
	}
}

// User is the current-user identity used to build sessions.
type User struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}
