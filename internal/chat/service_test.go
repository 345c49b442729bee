package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/youuungh/sns-chat-go/internal/config"
	"github.com/youuungh/sns-chat-go/internal/conn"
	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/internal/router"
	"github.com/youuungh/sns-chat-go/internal/transport"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames chan transport.Frame
	sent   [][]byte
	opened bool
	once   sync.Once
}

func (f *fakeTransport) Open(ctx context.Context, initial []byte) (<-chan transport.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	return f.frames, nil
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeTransport
}

func (f *fakeFactory) New() transport.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := &fakeTransport{frames: make(chan transport.Frame, 16)}
	f.created = append(f.created, tr)
	return tr
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    map[string]int
	roomID   string
	roomOK   bool
	messages []domain.ChatMessage
	rooms    []domain.ChatRoom
	err      error
	block    chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (g *fakeGateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
	if g.block != nil {
		<-g.block
	}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) CheckExistingRoom(ctx context.Context, userID string) (string, bool, error) {
	g.record("check")
	return g.roomID, g.roomOK, g.err
}

func (g *fakeGateway) GetRooms(ctx context.Context, page, size int) ([]domain.ChatRoom, error) {
	g.record("rooms")
	return g.rooms, g.err
}

func (g *fakeGateway) GetMessages(ctx context.Context, roomID string, page, size int) ([]domain.ChatMessage, error) {
	g.record("messages")
	return g.messages, g.err
}

func (g *fakeGateway) MarkAsRead(ctx context.Context, roomID, messageID string) error {
	g.record("read")
	return g.err
}

func (g *fakeGateway) LeaveRoom(ctx context.Context, roomID string) error {
	g.record("leave")
	return g.err
}

type fakeWatcher struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

func newFakeWatcher(online bool) *fakeWatcher {
	return &fakeWatcher{online: online, ch: make(chan bool, 4)}
}

func (w *fakeWatcher) IsAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *fakeWatcher) Observe() (<-chan bool, func()) {
	return w.ch, func() {}
}

func (w *fakeWatcher) setOnline(v bool) {
	w.mu.Lock()
	w.online = v
	w.mu.Unlock()
	w.ch <- v
}

type fakeUsers struct{ err error }

func (u fakeUsers) CurrentUser() (domain.User, error) {
	if u.err != nil {
		return domain.User{}, u.err
	}
	return domain.User{ID: "u1", UserName: "tester"}, nil
}

type fakeCache struct {
	mu    sync.Mutex
	saved map[string][]domain.ChatMessage
}

func newFakeCache() *fakeCache {
	return &fakeCache{saved: make(map[string][]domain.ChatMessage)}
}

func (c *fakeCache) SavePage(ctx context.Context, roomID string, msgs []domain.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved[roomID] = append(c.saved[roomID], msgs...)
	return nil
}

func (c *fakeCache) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[roomID], nil
}

type harness struct {
	svc     Service
	factory *fakeFactory
	gw      *fakeGateway
	watcher *fakeWatcher
	cache   *fakeCache
	router  *router.Router
}

func newHarness(online bool) *harness {
	factory := &fakeFactory{}
	gw := newFakeGateway()
	watcher := newFakeWatcher(online)
	c := newFakeCache()
	r := router.New()

	users := fakeUsers{}
	sessions := func() (domain.ChatSession, error) {
		u, _ := users.CurrentUser()
		return domain.NewChatSession(u.ID, u.UserName), nil
	}
	manager := conn.NewManager(factory.New, sessions, r, config.ReconnectConfig{
		RetryDelay:      time.Hour,
		NetworkCooldown: 0,
	})

	svc := NewService(manager, gw, r, watcher, users, c, config.ChatConfig{
		PageSize:         30,
		RoomResolveDelay: 10 * time.Millisecond,
	})
	return &harness{svc: svc, factory: factory, gw: gw, watcher: watcher, cache: c, router: r}
}

func TestSendMessageWhileDisconnected(t *testing.T) {
	h := newHarness(true)

	_, err := h.svc.SendMessage(context.Background(), "hi", "", "42")
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("SendMessage = %v, want ErrNotConnected", err)
	}
	if h.factory.count() != 0 {
		t.Error("no frame may be sent without a session")
	}
	if h.gw.count("check") != 0 {
		t.Error("room resolution must not run when the send failed")
	}
}

func TestSendMessageToKnownRoom(t *testing.T) {
	h := newHarness(true)
	if err := h.svc.ConnectWebSocket(context.Background()); err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}

	roomID, err := h.svc.SendMessage(context.Background(), "hello", "r1", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if roomID != "r1" {
		t.Errorf("roomID = %q, want r1", roomID)
	}

	frames := h.factory.last().sentFrames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	var req domain.ChatMessageRequest
	if err := json.Unmarshal(frames[0], &req); err != nil {
		t.Fatalf("sent frame not a ChatMessageRequest: %v", err)
	}
	if req.Content != "hello" || req.RoomID != "r1" || req.OtherUserID != "" {
		t.Errorf("request = %+v", req)
	}
	if h.gw.count("check") != 0 {
		t.Error("known room must not be re-resolved")
	}
}

func TestSendMessageResolvesNewRoom(t *testing.T) {
	h := newHarness(true)
	h.gw.roomID, h.gw.roomOK = "r9", true
	if err := h.svc.ConnectWebSocket(context.Background()); err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}

	roomID, err := h.svc.SendMessage(context.Background(), "hi there", "", "42")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if roomID != "r9" {
		t.Errorf("resolved roomID = %q, want r9", roomID)
	}
	if h.gw.count("check") != 1 {
		t.Errorf("CheckExistingRoom calls = %d, want 1", h.gw.count("check"))
	}
}

func TestOfflineShortCircuit(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	if _, err := h.svc.GetMessages(ctx, "r1", 1, 30); !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("GetMessages offline = %v, want ErrNetworkUnavailable", err)
	}
	if _, err := h.svc.GetRooms(ctx, 1, 20); !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("GetRooms offline = %v, want ErrNetworkUnavailable", err)
	}
	if err := h.svc.MarkAsRead(ctx, "r1", "m1"); !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("MarkAsRead offline = %v, want ErrNetworkUnavailable", err)
	}
	if err := h.svc.LeaveRoom(ctx, "r1"); !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("LeaveRoom offline = %v, want ErrNetworkUnavailable", err)
	}
	if _, _, err := h.svc.CheckExistingRoom(ctx, "u2"); !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Errorf("CheckExistingRoom offline = %v, want ErrNetworkUnavailable", err)
	}

	for _, op := range []string{"messages", "rooms", "read", "leave", "check"} {
		if h.gw.count(op) != 0 {
			t.Errorf("gateway %s called while offline", op)
		}
	}
}

func TestGetMessagesCachesPage(t *testing.T) {
	h := newHarness(true)
	h.gw.messages = []domain.ChatMessage{
		{ID: "m1", RoomID: "r1", Content: "hi"},
	}

	msgs, err := h.svc.GetMessages(context.Background(), "r1", 1, 30)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}

	cached, _ := h.svc.RecentCached(context.Background(), "r1", 30)
	if len(cached) != 1 || cached[0].ID != "m1" {
		t.Errorf("cached = %+v, want the fetched page", cached)
	}
}

func TestConcurrentHistoryFetchesCollapse(t *testing.T) {
	h := newHarness(true)
	h.gw.block = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.svc.GetMessages(context.Background(), "r1", 1, 30)
		}()
	}

	// Let all three goroutines reach the singleflight group.
	time.Sleep(50 * time.Millisecond)
	close(h.gw.block)
	wg.Wait()

	if got := h.gw.count("messages"); got != 1 {
		t.Errorf("gateway GetMessages calls = %d, want 1 (singleflight)", got)
	}
}

func TestObserveMessagesEmitsLivePushOnce(t *testing.T) {
	h := newHarness(true)
	if err := h.svc.ConnectWebSocket(context.Background()); err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}

	messages, unsubscribe := h.svc.ObserveMessages()
	defer unsubscribe()

	payload, _ := json.Marshal(domain.ChatMessage{ID: "m1", RoomID: "r1", Content: "hello"})
	h.factory.last().frames <- transport.Frame{Type: transport.FrameText, Payload: payload}

	select {
	case msg := <-messages:
		if msg.ID != "m1" || msg.RoomID != "r1" {
			t.Errorf("observed %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message observed")
	}

	select {
	case msg := <-messages:
		t.Fatalf("duplicate delivery: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectWebSocketRequiresIdentity(t *testing.T) {
	factory := &fakeFactory{}
	r := router.New()
	users := fakeUsers{err: errors.New("no token stored")}
	manager := conn.NewManager(factory.New, func() (domain.ChatSession, error) {
		return domain.ChatSession{}, errors.New("no token stored")
	}, r, config.ReconnectConfig{RetryDelay: time.Hour, NetworkCooldown: 0})

	svc := NewService(manager, newFakeGateway(), r, newFakeWatcher(true), users, nil, config.ChatConfig{})
	if err := svc.ConnectWebSocket(context.Background()); err == nil {
		t.Fatal("ConnectWebSocket without identity must fail")
	}
	if factory.count() != 0 {
		t.Error("no transport may be opened without identity")
	}
}

func TestNetworkTransitionTriggersReconnect(t *testing.T) {
	h := newHarness(true)
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.svc.Stop()

	if err := h.svc.ConnectWebSocket(context.Background()); err != nil {
		t.Fatalf("ConnectWebSocket: %v", err)
	}

	// Drop the connection, then report an online transition.
	h.factory.last().frames <- transport.Frame{Type: transport.FrameError, Err: errors.New("lost")}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.svc.ConnectionState().Kind != conn.StateReconnecting {
		time.Sleep(5 * time.Millisecond)
	}

	h.watcher.setOnline(true)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.factory.count() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if h.factory.count() < 2 {
		t.Fatal("online transition did not trigger a reconnect")
	}
}
