package domain

import (
	"errors"
	"fmt"
)

// Backend error codes with local side effects.
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeUserNotFound = "USER_NOT_FOUND"
)

var (
	// ErrNotConnected is returned when a send is attempted with no live
	// session. This is a programming-contract violation, not an expected
	// runtime condition.
	ErrNotConnected = errors.New("chat: not connected")

	// ErrNetworkUnavailable is returned when the pre-flight reachability
	// check fails; no request was attempted.
	ErrNetworkUnavailable = errors.New("chat: network unavailable")
)

// ServerError is a completed request the backend reported as failed.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chat: server error: %s", e.Message)
	}
	return fmt.Sprintf("chat: server error %s: %s", e.Code, e.Message)
}

// IsAuthFailure reports whether the error code must invalidate the local
// token as a side effect.
func (e *ServerError) IsAuthFailure() bool {
	return e.Code == ErrCodeUnauthorized || e.Code == ErrCodeUserNotFound
}
