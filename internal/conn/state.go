package conn

import (
	"fmt"
	"time"
)

// StateKind enumerates connection lifecycle states.
type StateKind int

const (
	StateDisconnected StateKind = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (k StateKind) String() string {
	switch k {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// State is the connection state owned exclusively by the Manager. It is
// transitioned only from within the Manager and read by callers for
// diagnostics.
type State struct {
	Kind StateKind

	// Reconnecting only.
	Attempt     int
	NextRetryAt time.Time
}

func (s State) String() string {
	if s.Kind == StateReconnecting {
		return fmt.Sprintf("reconnecting(attempt=%d, next=%s)", s.Attempt, s.NextRetryAt.Format(time.RFC3339))
	}
	return s.Kind.String()
}
