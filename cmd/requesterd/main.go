package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"helpdesk-chat-core/internal/cache"
	"helpdesk-chat-core/internal/chat"
	"helpdesk-chat-core/internal/config"
	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/pkg/logger"
	"helpdesk-chat-core/internal/repository/contract"
	"helpdesk-chat-core/internal/repository/implementation"
	"helpdesk-chat-core/internal/transport"
	"helpdesk-chat-core/pkg/database"
)

var (
	senderColor  = color.New(color.FgCyan, color.Bold)
	systemColor  = color.New(color.FgYellow)
	pendingColor = color.New(color.FgHiBlack)
	failedColor  = color.New(color.FgRed, color.Bold)
	alertColor   = color.New(color.FgMagenta)
)

// repoHistory adapts the gorm message repository to the cache's store.
type repoHistory struct {
	repo contract.ChatMessageRepository
}

func (h repoHistory) Page(ctx context.Context, requestId uuid.UUID, beforeSequence *int64, limit int) ([]*entity.ChatMessage, error) {
	return h.repo.FindPage(ctx, requestId, beforeSequence, limit)
}

func main() {
	cfg := config.Load()

	requestId, err := uuid.Parse(os.Getenv("REQUEST_ID"))
	if err != nil {
		log.Fatalf("REQUEST_ID must be a ticket UUID: %v", err)
	}
	userId, err := uuid.Parse(os.Getenv("USER_ID"))
	if err != nil {
		log.Fatalf("USER_ID must be a UUID: %v", err)
	}
	userName := os.Getenv("USER_NAME")
	if userName == "" {
		userName = "Requester"
	}

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Unable to connect to GORM DB: %v", err)
	}
	messageRepo := implementation.NewChatMessageRepository(gormDB)

	sysLogger := logger.NewIsolatedLogger("requesterd.log")
	messageCache := cache.NewMessageCache(repoHistory{repo: messageRepo}, sysLogger, cfg.Chat.PreloadChunkSize)

	session := chat.NewSession(chat.Options{
		RequestId:  requestId,
		User:       chat.User{Id: userId, Username: userName, DisplayName: userName},
		Permission: chat.MessagingPermission{Allowed: true},
		Cache:      messageCache,
		Logger:     sysLogger,
		Alerts: transport.AlertThresholds{
			Grace:            cfg.Chat.AlertGrace,
			Warn:             cfg.Chat.AlertWarn,
			Error:            cfg.Chat.AlertError,
			InitialLoadGrace: cfg.Chat.InitialLoadGrace,
		},
	})

	var adapter transport.Transport
	if os.Getenv("CHAT_TRANSPORT") == "ws" {
		adapter = transport.NewWSTransport(cfg.Hub.URL, os.Getenv("CHAT_TOKEN"), requestId, session.Handlers(), sysLogger)
	} else {
		adapter = transport.NewNATSTransport(cfg.App.NatsURL, requestId, session.Handlers(), sysLogger)
	}
	session.Attach(adapter)

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		failedColor.Printf("! connection failed, retrying in background: %v\n", err)
	}

	for _, m := range session.Messages() {
		printMessage(m)
	}

	unsubscribe := session.Subscribe(func(ev cache.ChangeEvent) {
		msgs := session.Messages()
		for _, m := range msgs {
			if m.Key() == ev.Key {
				printMessage(m)
				return
			}
		}
	})
	defer unsubscribe()

	go watchAlerts(session)

	fmt.Println("Type a message and press enter. Commands: /read, /older, /retry, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			session.Close()
			return
		case line == "/read":
			if err := session.MarkRead(ctx); err != nil {
				failedColor.Printf("! mark read: %v\n", err)
			}
		case line == "/retry":
			for _, m := range session.Messages() {
				if m.Status == entity.DeliveryFailed {
					if err := session.Retry(ctx, m.TempId); err != nil {
						failedColor.Printf("! retry: %v\n", err)
					}
				}
			}
		case line == "/older":
			added, err := session.LoadOlder(ctx, cfg.Chat.PreloadChunkSize)
			if err != nil {
				failedColor.Printf("! load older: %v\n", err)
			} else {
				fmt.Printf("loaded %d older messages\n", added)
			}
		default:
			if _, err := session.Send(ctx, line); err != nil {
				failedColor.Printf("! send: %v\n", err)
			}
		}
	}
}

func printMessage(m *entity.ChatMessage) {
	stamp := m.CreatedAt.Format("15:04:05")
	switch {
	case m.IsSystem():
		systemColor.Printf("[%s] * %s\n", stamp, m.Content)
	case m.Status == entity.DeliveryFailed:
		failedColor.Printf("[%s] %s: %s (failed, /retry)\n", stamp, m.SenderName, m.Content)
	case m.Status == entity.DeliveryPending:
		pendingColor.Printf("[%s] %s: %s …\n", stamp, m.SenderName, m.Content)
	default:
		senderColor.Printf("[%s] %s: ", stamp, m.SenderName)
		fmt.Println(m.Content)
	}
}

// watchAlerts prints connection alerts as they escalate and clears them on
// reconnect.
func watchAlerts(session *chat.Session) {
	last := transport.AlertNone
	for range time.Tick(time.Second) {
		level := session.AlertLevel(time.Now())
		if level == last {
			continue
		}
		last = level
		switch level {
		case transport.AlertNone:
			alertColor.Println("* connection restored")
		default:
			alertColor.Printf("* connection trouble (%s)\n", level)
		}
	}
}
