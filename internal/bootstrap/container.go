package bootstrap

import (
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"helpdesk-chat-core/internal/config"
	"helpdesk-chat-core/internal/hub"
	"helpdesk-chat-core/internal/pkg/logger"
	"helpdesk-chat-core/internal/repository/implementation"
	"helpdesk-chat-core/internal/service"
	pktNats "helpdesk-chat-core/pkg/nats"
)

// Container wires the hub process: repositories over the ticket database,
// the chat services, the room hub and its two inbound relays.
type Container struct {
	Hub          *hub.Hub
	StreamIngest *hub.StreamIngest
	BusRelay     *hub.BusRelay
	EventRelay   *hub.EventRelay

	ChatService      service.IChatService
	ReadStateService service.IReadStateService

	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	hubLogger := logger.NewIsolatedLogger("hub.log")

	// Redis carries the backend event stream and the cross-instance fan-out.
	var rdb *redis.Client
	if opts, err := redis.ParseURL(cfg.App.RedisURL); err == nil {
		rdb = redis.NewClient(opts)
	} else {
		log.Printf("[WARN] Invalid REDIS_URL, hub runs single-instance: %v", err)
	}

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	messageRepo := implementation.NewChatMessageRepository(db)
	requestRepo := implementation.NewServiceRequestRepository(db)
	readRepo := implementation.NewChatReadStateRepository(db)

	// Typed-nil guard: a failed NATS connect must yield a nil interface.
	var eventSink service.EventPublisher
	if natsPub != nil {
		eventSink = natsPub
	}

	chatService := service.NewChatService(messageRepo, requestRepo, readRepo, eventSink, sysLogger)
	readService := service.NewReadStateService(readRepo, eventSink, sysLogger)

	roomHub := hub.NewHub(rdb, cfg.Hub.ClusterChannel, natsPub, hubLogger)

	var ingest *hub.StreamIngest
	if rdb != nil {
		// Consumer name must be unique per instance within the group.
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "hub-local"
		}
		ingest = hub.NewStreamIngest(rdb, cfg.Hub.EventStream, cfg.Hub.IngestGroup, hostname, roomHub)
	}

	var relay *hub.BusRelay
	if natsPub != nil {
		relay = hub.NewBusRelay(natsPub.Conn(), roomHub, chatService, readService)
	}

	// Without Redis there is no stream ingest; fall back to replaying the
	// durable CHAT stream so external status changes still reach rooms.
	var eventRelay *hub.EventRelay
	if rdb == nil {
		if sub, err := pktNats.NewSubscriber(cfg.App.NatsURL); err == nil {
			eventRelay = hub.NewEventRelay(sub, roomHub)
		} else {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		}
	}

	return &Container{
		Hub:              roomHub,
		StreamIngest:     ingest,
		BusRelay:         relay,
		EventRelay:       eventRelay,
		ChatService:      chatService,
		ReadStateService: readService,
		Logger:           sysLogger,
	}
}
