// Command stubserver is a local development backend implementing the chat
// wire contract: the envelope HTTP endpoints plus the websocket session
// endpoint. It keeps everything in memory and is not a production server.
package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

type envelope struct {
	Result       string      `json:"result"`
	Data         interface{} `json:"data,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ErrorCode    string      `json:"errorCode,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Result: "SUCCESS", Data: data})
}

func failure(c *gin.Context, code, message string) {
	c.JSON(http.StatusOK, envelope{Result: "ERROR", ErrorCode: code, ErrorMessage: message})
}

type server struct {
	mu       sync.RWMutex
	rooms    map[string][]string              // roomID -> participant user ids
	messages map[string][]domain.ChatMessage  // roomID -> messages, newest first
	clients  map[*websocket.Conn]domain.ChatSession
}

func newServer() *server {
	return &server{
		rooms:    make(map[string][]string),
		messages: make(map[string][]domain.ChatMessage),
		clients:  make(map[*websocket.Conn]domain.ChatSession),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func main() {
	log.Init(log.Config{Level: "debug", Pretty: true, ServiceName: "stubserver"})

	s := newServer()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	chatAPI := r.Group("/chat")
	{
		chatAPI.GET("/rooms/check/:user_id", s.checkExistingRoom)
		chatAPI.GET("/rooms", s.getRooms)
		chatAPI.GET("/rooms/:room_id/messages", s.getMessages)
		chatAPI.POST("/rooms/:room_id/messages/:message_id/read", s.markAsRead)
		chatAPI.DELETE("/rooms/:room_id", s.leaveRoom)
	}
	r.GET("/ws/chat", s.handleWebSocket)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	stdlog.Println("stub chat backend listening on :8080")
	if err := r.Run(":8080"); err != nil {
		stdlog.Fatalf("Server error: %v", err)
	}
}

func (s *server) checkExistingRoom(c *gin.Context) {
	otherID := c.Param("user_id")

	s.mu.RLock()
	defer s.mu.RUnlock()
	for roomID, participants := range s.rooms {
		for _, p := range participants {
			if p == otherID {
				success(c, roomID)
				return
			}
		}
	}
	success(c, nil)
}

func (s *server) getRooms(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]domain.ChatRoom, 0, len(s.rooms))
	for roomID, participants := range s.rooms {
		room := domain.ChatRoom{ID: roomID}
		for _, p := range participants {
			room.Participants = append(room.Participants, domain.User{ID: p})
		}
		if msgs := s.messages[roomID]; len(msgs) > 0 {
			last := msgs[0]
			room.LastMessage = &last
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	success(c, rooms)
}

func (s *server) getMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	page := intQuery(c, "page", 1)
	size := intQuery(c, "size", 30)
	if page < 1 || size < 1 {
		failure(c, "BAD_REQUEST", "page and size must be positive")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[roomID]
	start := (page - 1) * size
	if start >= len(msgs) {
		success(c, []domain.ChatMessage{})
		return
	}
	end := start + size
	if end > len(msgs) {
		end = len(msgs)
	}
	success(c, msgs[start:end])
}

func (s *server) markAsRead(c *gin.Context) {
	roomID := c.Param("room_id")
	messageID := c.Param("message_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages[roomID] {
		if m.ID == messageID {
			s.messages[roomID][i].Read = true
			success(c, nil)
			return
		}
	}
	failure(c, "NOT_FOUND", "message not found")
}

func (s *server) leaveRoom(c *gin.Context) {
	roomID := c.Param("room_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		failure(c, "NOT_FOUND", "room not found")
		return
	}
	delete(s.rooms, roomID)
	delete(s.messages, roomID)
	success(c, nil)
}

func (s *server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		stdlog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// First frame is the session handshake.
	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	var sess domain.ChatSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.clients[conn] = sess
	s.mu.Unlock()
	stdlog.Printf("session %s connected (user %s)", sess.SessionID, sess.UserID)

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req domain.ChatMessageRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		s.deliver(sess, req)
	}
}

func (s *server) deliver(sess domain.ChatSession, req domain.ChatMessageRequest) {
	s.mu.Lock()

	roomID := req.RoomID
	if roomID == "" {
		roomID = "room-" + uuid.New().String()[:8]
		s.rooms[roomID] = []string{sess.UserID, req.OtherUserID}
	}

	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  sess.UserID,
		Content:   req.Content,
		CreatedAt: domain.Timestamp{Time: time.Now()},
	}
	s.messages[roomID] = append([]domain.ChatMessage{msg}, s.messages[roomID]...)

	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	data, _ := json.Marshal(msg)
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			stdlog.Printf("broadcast failed: %v", err)
		}
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	s := c.Query(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
