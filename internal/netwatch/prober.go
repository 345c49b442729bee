package netwatch

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/youuungh/sns-chat-go/internal/config"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

// Prober watches reachability of the backend host by periodically opening
// a TCP connection to it. Subscribers get edge-triggered notifications.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	online    bool
	observers map[int]chan bool
	nextID    int

	cancel context.CancelFunc
}

// NewProber builds a prober against the host of baseURL.
func NewProber(baseURL string, cfg config.ProbeConfig) (*Prober, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https", "wss":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	return &Prober{
		addr:      host,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		online:    true,
		observers: make(map[int]chan bool),
	}, nil
}

// Start launches the probe loop.
func (p *Prober) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.loop(ctx)
}

// Stop halts the probe loop.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Prober) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

func (p *Prober) Observe() (<-chan bool, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan bool, 4)
	p.observers[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.observers[id]; ok {
			delete(p.observers, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *Prober) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.setOnline(p.probe())
		}
	}
}

func (p *Prober) probe() bool {
	conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (p *Prober) setOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if online == p.online {
		return
	}
	p.online = online

	l := log.L()
	l.Info().Bool("online", online).Msg("network reachability changed")

	for _, ch := range p.observers {
		select {
		case ch <- online:
		default:
			// Slow observer; it will catch up on the next transition.
		}
	}
}
