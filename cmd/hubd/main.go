package main

import (
	"context"
	"log"

	"helpdesk-chat-core/internal/bootstrap"
	"helpdesk-chat-core/internal/config"
	"helpdesk-chat-core/internal/server"
	"helpdesk-chat-core/internal/tracer"
	"helpdesk-chat-core/pkg/database"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	go container.Hub.Run()

	if container.StreamIngest != nil {
		go container.StreamIngest.Run(context.Background())
	}

	if container.BusRelay != nil {
		if err := container.BusRelay.Start(); err != nil {
			log.Printf("Background: Bus relay failed to start: %v", err)
		}
	}

	if container.EventRelay != nil {
		if err := container.EventRelay.Start(); err != nil {
			log.Printf("Background: Event relay failed to start: %v", err)
		}
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
