package conn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/youuungh/sns-chat-go/internal/config"
	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/internal/transport"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

// SessionSource builds a fresh ChatSession for one connection attempt.
// Every attempt gets a new nonce.
type SessionSource func() (domain.ChatSession, error)

// Publisher receives decoded inbound messages.
type Publisher interface {
	Publish(domain.ChatMessage)
}

// Manager owns the transport lifecycle and the reconnection state machine.
//
// At most one live transport exists at a time; a new attempt fully tears
// down any prior transport before opening a new one. Connection-layer
// failures are absorbed into state transitions and logged, never returned
// to callers: callers observe State() instead.
type Manager struct {
	factory  transport.Factory
	sessions SessionSource
	pub      Publisher

	retryDelay time.Duration
	cooldown   time.Duration

	mu             sync.Mutex
	state          State
	cleanedUp      bool
	tr             transport.Transport
	retryTimer     *time.Timer
	attempt        int
	lastNetTrigger time.Time
}

func NewManager(factory transport.Factory, sessions SessionSource, pub Publisher, cfg config.ReconnectConfig) *Manager {
	return &Manager{
		factory:    factory,
		sessions:   sessions,
		pub:        pub,
		retryDelay: cfg.RetryDelay,
		cooldown:   cfg.NetworkCooldown,
		state:      State{Kind: StateDisconnected},
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a connection attempt. It clears the cleanup flag set by a
// prior Disconnect, so the manager is fully re-initialised. Failures are
// absorbed into the Reconnecting state, never returned.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	m.cleanedUp = false
	m.mu.Unlock()
	m.dial(ctx)
}

// Disconnect tears the connection down explicitly. No reconnection happens
// until Connect is called again, regardless of pending timers or network
// transitions.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cleanedUp = true
	m.stopRetryTimerLocked()
	tr := m.tr
	m.tr = nil
	m.setStateLocked(State{Kind: StateDisconnected})
	m.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
}

// Send writes one payload frame over the live transport.
func (m *Manager) Send(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	tr := m.tr
	connected := m.state.Kind == StateConnected
	m.mu.Unlock()

	if tr == nil || !connected {
		return domain.ErrNotConnected
	}
	return tr.Send(ctx, payload)
}

// ResetAttempts clears the reconnect attempt counter.
func (m *Manager) ResetAttempts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt = 0
}

// HandleNetworkOnline triggers a reconnect on an offline→online transition,
// subject to a cooldown window so connectivity flaps do not cause retry
// storms. The attempt counter is reset so the new attempt is not penalised
// by prior failures.
func (m *Manager) HandleNetworkOnline() {
	m.mu.Lock()
	if m.cleanedUp || m.state.Kind == StateConnected || m.state.Kind == StateConnecting {
		m.mu.Unlock()
		return
	}
	if !m.lastNetTrigger.IsZero() && time.Since(m.lastNetTrigger) < m.cooldown {
		m.mu.Unlock()
		l := log.L()
		l.Debug().Msg("network reconnect suppressed by cooldown")
		return
	}
	m.lastNetTrigger = time.Now()
	m.attempt = 0
	m.stopRetryTimerLocked()
	m.mu.Unlock()

	go m.dial(context.Background())
}

// dial runs one connection attempt end to end. Valid only from the
// Disconnected and Reconnecting states.
func (m *Manager) dial(ctx context.Context) {
	m.mu.Lock()
	if m.cleanedUp {
		m.mu.Unlock()
		return
	}
	if m.state.Kind == StateConnecting || m.state.Kind == StateConnected {
		m.mu.Unlock()
		l := log.L()
		l.Debug().Str(log.FieldConnState, m.state.Kind.String()).Msg("connect ignored, attempt already live")
		return
	}
	m.stopRetryTimerLocked()
	prev := m.tr
	m.tr = nil
	m.setStateLocked(State{Kind: StateConnecting})
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	sess, err := m.sessions()
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to build chat session")
		m.attemptFailed()
		return
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to encode chat session")
		m.attemptFailed()
		return
	}

	tr := m.factory()
	frames, err := tr.Open(ctx, payload)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("transport open failed")
		m.attemptFailed()
		return
	}

	m.mu.Lock()
	if m.cleanedUp {
		// Disconnect raced the handshake; honour it.
		m.mu.Unlock()
		tr.Close()
		return
	}
	m.tr = tr
	m.attempt = 0
	m.setStateLocked(State{Kind: StateConnected})
	m.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldSessionID, sess.SessionID).Msg("chat session connected")

	go m.readLoop(tr, frames)
}

func (m *Manager) readLoop(tr transport.Transport, frames <-chan transport.Frame) {
	for f := range frames {
		switch f.Type {
		case transport.FrameText:
			var msg domain.ChatMessage
			if err := json.Unmarshal(f.Payload, &msg); err != nil {
				l := log.L()
				l.Warn().Err(err).Msg("dropping undecodable frame")
				continue
			}
			m.pub.Publish(msg)

		case transport.FrameClose:
			l := log.L()
			l.Info().Int("code", f.Code).Str("reason", f.Reason).Msg("server closed chat session")
			m.transportDropped(tr)
			return

		case transport.FrameError:
			l := log.L()
			l.Warn().Err(f.Err).Msg("transport error")
			m.transportDropped(tr)
			return
		}
	}
	// Stream ended without a close or error frame: local teardown, the
	// cleanup flag already decided whether reconnection happens.
}

// transportDropped handles a mid-stream loss of tr.
func (m *Manager) transportDropped(tr transport.Transport) {
	m.mu.Lock()
	if m.tr != tr {
		// A newer connection already replaced this transport.
		m.mu.Unlock()
		tr.Close()
		return
	}
	m.tr = nil
	if m.cleanedUp {
		m.setStateLocked(State{Kind: StateDisconnected})
		m.mu.Unlock()
		tr.Close()
		return
	}
	m.scheduleRetryLocked()
	m.mu.Unlock()
	tr.Close()
}

func (m *Manager) attemptFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cleanedUp {
		m.setStateLocked(State{Kind: StateDisconnected})
		return
	}
	m.scheduleRetryLocked()
}

// scheduleRetryLocked arms the single retry timer. Scheduling again
// replaces any pending timer, so at most one is ever outstanding.
func (m *Manager) scheduleRetryLocked() {
	m.attempt++
	m.stopRetryTimerLocked()
	next := time.Now().Add(m.retryDelay)
	m.setStateLocked(State{Kind: StateReconnecting, Attempt: m.attempt, NextRetryAt: next})
	m.retryTimer = time.AfterFunc(m.retryDelay, m.retryFire)

	l := log.L()
	l.Info().Int(log.FieldAttempt, m.attempt).Dur("delay", m.retryDelay).Msg("reconnect scheduled")
}

func (m *Manager) retryFire() {
	m.mu.Lock()
	if m.cleanedUp || m.state.Kind != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.dial(context.Background())
}

func (m *Manager) stopRetryTimerLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state.Kind != s.Kind {
		l := log.L()
		l.Debug().Str(log.FieldConnState, s.Kind.String()).Msg("connection state changed")
	}
	m.state = s
}
