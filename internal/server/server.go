package server

import (
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"helpdesk-chat-core/internal/bootstrap"
	"helpdesk-chat-core/internal/config"
	"helpdesk-chat-core/internal/hub"
	"helpdesk-chat-core/internal/pkg/serverutils"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware())

	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Hub is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})

	// Connection attempts are throttled per IP; message creation has its own
	// per-user budget inside the hub.
	ws := app.Group("/ws", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	}), serverutils.JwtMiddleware)

	// Reject plain HTTP on the websocket path before the upgrade handler.
	ws.Use("/chat", func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	ws.Get("/chat", websocket.New(func(conn *websocket.Conn) {
		userId, err := uuid.Parse(localString(conn, "user_id"))
		if err != nil {
			conn.Close()
			return
		}
		requestId, err := uuid.Parse(conn.Query("request_id"))
		if err != nil {
			conn.Close()
			return
		}
		userName := localString(conn, "user_name")

		hub.ServeWs(c.Hub, conn, userId, userName, requestId, c.ChatService, c.ReadStateService)
	}))
}

func localString(conn *websocket.Conn, key string) string {
	if v, ok := conn.Locals(key).(string); ok {
		return v
	}
	return ""
}
