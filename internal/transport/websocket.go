package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youuungh/sns-chat-go/internal/config"
	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

// WSTransport is the gorilla/websocket implementation of Transport.
// One value handles at most one connection; create a fresh transport for
// every attempt via NewFactory.
type WSTransport struct {
	url  string
	cfg  config.WebSocketConfig
	mu   sync.Mutex
	conn *websocket.Conn

	frames    chan Frame
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSTransport creates an unopened transport for url.
func NewWSTransport(url string, cfg config.WebSocketConfig) *WSTransport {
	return &WSTransport{
		url:    url,
		cfg:    cfg,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
}

// NewFactory returns a Factory producing transports for url.
func NewFactory(url string, cfg config.WebSocketConfig) Factory {
	return func() Transport {
		return NewWSTransport(url, cfg)
	}
}

// Open dials the endpoint, writes initial as the first text frame and
// starts the read and ping pumps.
func (t *WSTransport) Open(ctx context.Context, initial []byte) (<-chan Frame, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	conn.SetReadLimit(t.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		return nil
	})

	if initial != nil {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to write handshake frame: %w", err)
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readPump(conn)
	go t.pingPump(conn)

	return t.frames, nil
}

// Send writes one text frame.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return domain.ErrNotConnected
	}

	deadline := time.Now().Add(t.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears the connection down. Safe to call more than once and before
// Open; only the first call has any effect.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}
	})
	return nil
}

func (t *WSTransport) readPump(conn *websocket.Conn) {
	defer close(t.frames)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				// Local close; the reader error is expected.
				return
			default:
			}

			if ce, ok := err.(*websocket.CloseError); ok {
				t.emit(Frame{Type: FrameClose, Code: ce.Code, Reason: ce.Text})
			} else {
				t.emit(Frame{Type: FrameError, Err: err})
			}
			return
		}

		t.emit(Frame{Type: FrameText, Payload: payload})
	}
}

func (t *WSTransport) pingPump(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.conn == nil {
				t.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				l := log.L()
				l.Debug().Err(err).Msg("ping write failed")
				return
			}
		}
	}
}

func (t *WSTransport) emit(f Frame) {
	select {
	case t.frames <- f:
	case <-t.done:
	}
}
