package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/youuungh/sns-chat-go/internal/config"
	"github.com/youuungh/sns-chat-go/internal/conn"
	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/internal/netwatch"
	"github.com/youuungh/sns-chat-go/internal/router"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

// UserSource resolves the current local user.
type UserSource interface {
	CurrentUser() (domain.User, error)
}

type chatService struct {
	manager *conn.Manager
	gw      Gateway
	router  *router.Router
	net     netwatch.Watcher
	users   UserSource
	cache   HistoryCache
	cfg     config.ChatConfig

	sf     singleflight.Group
	cancel context.CancelFunc
}

// NewService wires the facade. cache may be nil when local history caching
// is disabled.
func NewService(
	manager *conn.Manager,
	gw Gateway,
	r *router.Router,
	net netwatch.Watcher,
	users UserSource,
	cache HistoryCache,
	cfg config.ChatConfig,
) Service {
	return &chatService{
		manager: manager,
		gw:      gw,
		router:  r,
		net:     net,
		users:   users,
		cache:   cache,
		cfg:     cfg,
	}
}

func (s *chatService) ConnectWebSocket(ctx context.Context) error {
	if _, err := s.users.CurrentUser(); err != nil {
		return fmt.Errorf("cannot connect without identity: %w", err)
	}
	audit(ctx, ActionConnect, "", "chat connect requested")
	s.manager.Connect(ctx)
	return nil
}

func (s *chatService) Disconnect() {
	audit(context.Background(), ActionDisconnect, "", "chat disconnect requested")
	s.manager.Disconnect()
}

func (s *chatService) SendMessage(ctx context.Context, content, roomID, otherUserID string) (string, error) {
	req := domain.ChatMessageRequest{
		Content:     content,
		RoomID:      roomID,
		OtherUserID: otherUserID,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	if err := s.manager.Send(ctx, payload); err != nil {
		return "", err
	}
	audit(ctx, ActionSendMessage, roomID, "chat message sent")

	if roomID != "" || otherUserID == "" {
		return roomID, nil
	}

	// The backend does not echo the newly created room id over the
	// socket, so re-query after a short delay. Slow room creation on
	// the server side can still lose this race.
	select {
	case <-time.After(s.cfg.RoomResolveDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	resolved, ok, err := s.CheckExistingRoom(ctx, otherUserID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("room resolution after send failed")
		return "", nil
	}
	if !ok {
		return "", nil
	}
	return resolved, nil
}

func (s *chatService) ObserveMessages() (<-chan domain.ChatMessage, func()) {
	return s.router.Subscribe()
}

func (s *chatService) GetMessages(ctx context.Context, roomID string, page, size int) ([]domain.ChatMessage, error) {
	if !s.net.IsAvailable() {
		return nil, domain.ErrNetworkUnavailable
	}

	key := fmt.Sprintf("messages:%s:%d:%d", roomID, page, size)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		msgs, err := s.gw.GetMessages(ctx, roomID, page, size)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && len(msgs) > 0 {
			if err := s.cache.SavePage(ctx, roomID, msgs); err != nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("history cache write failed")
			}
		}
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ChatMessage), nil
}

func (s *chatService) GetRooms(ctx context.Context, page, size int) ([]domain.ChatRoom, error) {
	if !s.net.IsAvailable() {
		return nil, domain.ErrNetworkUnavailable
	}
	return s.gw.GetRooms(ctx, page, size)
}

func (s *chatService) MarkAsRead(ctx context.Context, roomID, messageID string) error {
	if !s.net.IsAvailable() {
		return domain.ErrNetworkUnavailable
	}
	if err := s.gw.MarkAsRead(ctx, roomID, messageID); err != nil {
		return err
	}
	audit(ctx, ActionMarkAsRead, roomID, "message marked as read")
	return nil
}

func (s *chatService) LeaveRoom(ctx context.Context, roomID string) error {
	if !s.net.IsAvailable() {
		return domain.ErrNetworkUnavailable
	}
	if err := s.gw.LeaveRoom(ctx, roomID); err != nil {
		return err
	}
	audit(ctx, ActionLeaveRoom, roomID, "room left")
	return nil
}

func (s *chatService) CheckExistingRoom(ctx context.Context, userID string) (string, bool, error) {
	if !s.net.IsAvailable() {
		return "", false, domain.ErrNetworkUnavailable
	}
	return s.gw.CheckExistingRoom(ctx, userID)
}

func (s *chatService) RecentCached(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.RecentMessages(ctx, roomID, limit)
}

func (s *chatService) ResetReconnectAttempts() {
	s.manager.ResetAttempts()
}

func (s *chatService) ConnectionState() conn.State {
	return s.manager.State()
}

// Start launches the network transition watcher: an offline→online edge
// resets the attempt counter and triggers a reconnect, both subject to the
// manager's cooldown.
func (s *chatService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	transitions, unsubscribe := s.net.Observe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-transitions:
				if !ok {
					return
				}
				if online {
					s.manager.ResetAttempts()
					s.manager.HandleNetworkOnline()
				}
			}
		}
	}()

	l := log.L()
	l.Info().Msg("chat service started")
	return nil
}

func (s *chatService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.manager.Disconnect()
}
