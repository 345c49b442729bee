package transport

import "context"

// FrameType discriminates inbound frames.
type FrameType int

const (
	// FrameText carries a payload pushed by the server.
	FrameText FrameType = iota
	// FrameClose signals server-initiated session termination.
	FrameClose
	// FrameError carries a socket-level failure. Errors flow through the
	// same channel as messages so the connection loop can treat every
	// inbound event uniformly.
	FrameError
)

// Frame is one discrete inbound event from the live transport.
type Frame struct {
	Type    FrameType
	Payload []byte
	Code    int
	Reason  string
	Err     error
}

// Transport owns one live connection to the messaging endpoint.
//
// Open performs exactly one network handshake, writes initial as the first
// frame, and returns the inbound frame stream. The stream is exclusively
// owned by the caller until Close; it is closed once after the read loop
// exits. Send on a transport that is not open returns domain.ErrNotConnected.
// Close is idempotent.
type Transport interface {
	Open(ctx context.Context, initial []byte) (<-chan Frame, error)
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Factory creates a fresh transport for one connection attempt.
type Factory func() Transport
