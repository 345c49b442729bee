package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/youuungh/sns-chat-go/internal/cache"
	"github.com/youuungh/sns-chat-go/internal/chat"
	"github.com/youuungh/sns-chat-go/internal/config"
	"github.com/youuungh/sns-chat-go/internal/conn"
	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/internal/gateway"
	"github.com/youuungh/sns-chat-go/internal/identity"
	"github.com/youuungh/sns-chat-go/internal/netwatch"
	"github.com/youuungh/sns-chat-go/internal/router"
	"github.com/youuungh/sns-chat-go/internal/transport"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "chatctl"})

	token := os.Getenv("CHAT_TOKEN")
	if token == "" {
		stdlog.Fatal("CHAT_TOKEN is required")
	}

	tokens := identity.NewMemoryTokenStore(token)
	users := identity.NewProvider(tokens)

	user, err := users.CurrentUser()
	if err != nil {
		stdlog.Fatalf("Failed to resolve current user from token: %v", err)
	}

	// Initialize history cache
	var histCache chat.HistoryCache
	if hc, err := cache.Open(cfg.Cache.Path); err != nil {
		stdlog.Printf("History cache unavailable: %v", err)
	} else {
		defer hc.Close()
		histCache = hc
	}

	// Initialize reachability prober
	prober, err := netwatch.NewProber(cfg.Server.BaseURL, cfg.Probe)
	if err != nil {
		stdlog.Fatalf("Failed to create network prober: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober.Start(ctx)
	defer prober.Stop()

	// Wire the chat session
	r := router.New()
	factory := transport.NewFactory(cfg.Server.WebSocketURL, cfg.WebSocket)
	sessions := func() (domain.ChatSession, error) {
		u, err := users.CurrentUser()
		if err != nil {
			return domain.ChatSession{}, err
		}
		return domain.NewChatSession(u.ID, u.UserName), nil
	}
	manager := conn.NewManager(factory, sessions, r, cfg.Reconnect)
	gw := gateway.NewClient(cfg.Server.BaseURL, tokens)

	svc := chat.NewService(manager, gw, r, prober, users, histCache, cfg.Chat)
	if err := svc.Start(ctx); err != nil {
		stdlog.Fatalf("Failed to start chat service: %v", err)
	}
	defer svc.Stop()

	if err := svc.ConnectWebSocket(ctx); err != nil {
		stdlog.Fatalf("Failed to connect: %v", err)
	}

	fmt.Printf("Connected as %s. Commands: /rooms, /history [room], /room <room>, /send <user> <text>, /quit\n", user.UserName)

	messages, unsubscribe := svc.ObserveMessages()
	defer unsubscribe()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// The timeline is only touched from this loop, so no locking.
	tl := chat.NewTimeline()
	for {
		select {
		case <-quit:
			fmt.Println("Disconnecting...")
			svc.Disconnect()
			return

		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			var backfill bool
			tl, backfill = tl.ApplyLive(msg)
			if msg.RoomID == tl.ActiveRoom {
				fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.SenderID, msg.Content)
			}
			if backfill {
				tl = fetchPage(ctx, svc, tl)
			}

		case line, ok := <-lines:
			if !ok {
				svc.Disconnect()
				return
			}
			var done bool
			tl, done = handleLine(ctx, svc, line, tl)
			if done {
				svc.Disconnect()
				return
			}
		}
	}
}

// fetchPage pulls the timeline's next history page and merges it in. When
// offline it falls back to the local cache without advancing the cursor.
func fetchPage(ctx context.Context, svc chat.Service, tl chat.Timeline) chat.Timeline {
	msgs, err := svc.GetMessages(ctx, tl.ActiveRoom, tl.NextPage(), 30)
	if err != nil {
		if errors.Is(err, domain.ErrNetworkUnavailable) {
			cached, cacheErr := svc.RecentCached(ctx, tl.ActiveRoom, 30)
			if cacheErr != nil || len(cached) == 0 {
				fmt.Println("(offline, no cached history)")
				return tl
			}
			fmt.Println("(offline, showing cached history)")
			printPage(cached)
			next := tl
			next.Messages = cached
			return next
		}
		fmt.Printf("error: %v\n", err)
		return tl
	}

	next := tl.ApplyPage(msgs)
	if len(msgs) == 0 {
		fmt.Println("(no more history)")
	} else {
		printPage(msgs)
	}
	return next
}

func printPage(msgs []domain.ChatMessage) {
	for i := len(msgs) - 1; i >= 0; i-- {
		fmt.Printf("%s %s: %s\n", msgs[i].CreatedAt.Format("15:04:05"), msgs[i].SenderID, msgs[i].Content)
	}
}

func handleLine(ctx context.Context, svc chat.Service, line string, tl chat.Timeline) (chat.Timeline, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return tl, false
	}

	switch {
	case line == "/quit":
		return tl, true

	case line == "/rooms":
		rooms, err := svc.GetRooms(ctx, 1, 20)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return tl, false
		}
		for _, room := range rooms {
			last := ""
			if room.LastMessage != nil {
				last = room.LastMessage.Content
			}
			fmt.Printf("%s  %s\n", room.ID, last)
		}

	case line == "/history" || strings.HasPrefix(line, "/history "):
		roomID := strings.TrimSpace(strings.TrimPrefix(line, "/history"))
		if roomID != "" && roomID != tl.ActiveRoom {
			tl = chat.NewTimeline().WithRoom(roomID)
		}
		if tl.ActiveRoom == "" {
			fmt.Println("no active room; use /room or /history <room>")
			return tl, false
		}
		if !tl.HasMore {
			fmt.Println("(no more history)")
			return tl, false
		}
		tl = fetchPage(ctx, svc, tl)

	case strings.HasPrefix(line, "/room "):
		roomID := strings.TrimSpace(strings.TrimPrefix(line, "/room "))
		tl = chat.NewTimeline().WithRoom(roomID)
		fmt.Printf("active room: %s\n", roomID)

	case strings.HasPrefix(line, "/send "):
		rest := strings.TrimPrefix(line, "/send ")
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			fmt.Println("usage: /send <user> <text>")
			return tl, false
		}
		roomID, err := svc.SendMessage(ctx, parts[1], "", parts[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return tl, false
		}
		if roomID != "" {
			tl = chat.NewTimeline().WithRoom(roomID)
			fmt.Printf("active room: %s\n", roomID)
		}

	default:
		if tl.ActiveRoom == "" {
			fmt.Println("no active room; use /room or /send first")
			return tl, false
		}
		if _, err := svc.SendMessage(ctx, line, tl.ActiveRoom, ""); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
	return tl, false
}
