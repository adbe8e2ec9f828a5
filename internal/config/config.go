package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Hub      HubConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type HubConfig struct {
	// URL is the websocket endpoint the requester client dials.
	URL string
	// EventStream is the Redis Stream the backend publishes chat events on.
	EventStream string
	// ClusterChannel is the Redis pub/sub channel used for cross-instance fan-out.
	ClusterChannel string
	// IngestGroup is the consumer group name for the event stream.
	IngestGroup string
}

type ChatConfig struct {
	PreloadChunkSize    int
	HistoryPageLimit    int
	AlertGrace          time.Duration
	AlertWarn           time.Duration
	AlertError          time.Duration
	InitialLoadGrace    time.Duration
	ScrollSaveInterval  time.Duration
	BackfillThresholdPx int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "chat-core.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Hub: HubConfig{
			URL:            getEnv("HUB_WS_URL", "ws://localhost:3000/ws/chat"),
			EventStream:    getEnv("HUB_EVENT_STREAM", "chat:events"),
			ClusterChannel: getEnv("HUB_CLUSTER_CHANNEL", "cluster_events"),
			IngestGroup:    getEnv("HUB_INGEST_GROUP", "chat-hub"),
		},
		Chat: ChatConfig{
			PreloadChunkSize:    getEnvAsInt("CHAT_PRELOAD_CHUNK_SIZE", 100),
			HistoryPageLimit:    getEnvAsInt("CHAT_HISTORY_PAGE_LIMIT", 200),
			AlertGrace:          getEnvAsDuration("CHAT_ALERT_GRACE", 5*time.Second),
			AlertWarn:           getEnvAsDuration("CHAT_ALERT_WARN", 15*time.Second),
			AlertError:          getEnvAsDuration("CHAT_ALERT_ERROR", 30*time.Second),
			InitialLoadGrace:    getEnvAsDuration("CHAT_INITIAL_LOAD_GRACE", 8*time.Second),
			ScrollSaveInterval:  getEnvAsDuration("CHAT_SCROLL_SAVE_INTERVAL", 2*time.Second),
			BackfillThresholdPx: getEnvAsInt("CHAT_BACKFILL_THRESHOLD_PX", 200),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
