package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Queue        QueueConfig
	Crowd        CrowdConfig
	Realtime     RealtimeConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
	Tracing      TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigins           string
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
	Enabled       bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Service     string
	Development bool
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	AdminEmail            string
	AdminPassword         string
}

// QueueConfig tunes the queue engine.
type QueueConfig struct {
	TicketPrefix                 string
	StaleAfter                   time.Duration
	DefaultAverageServiceMinutes int
	// RequireGuestEntry rejects guest joins that do not present a department QR.
	RequireGuestEntry bool
	// EntryLocation decides where a department QR's day ends.
	EntryLocation *time.Location
}

// CrowdConfig holds the crowd level thresholds in minutes.
type CrowdConfig struct {
	YellowAboveMinutes    int
	RedAboveMinutes       int
	AverageServiceMinutes int
}

// RealtimeConfig tunes the SSE hub.
type RealtimeConfig struct {
	ClientBuffer int
	Heartbeat    time.Duration
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// RateLimitConfig throttles join endpoints per client IP.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

// TracingConfig points the OTLP exporter at a collector. An empty endpoint
// disables tracing.
type TracingConfig struct {
	Endpoint string
	Insecure bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	staleAfter, err := time.ParseDuration(getEnv("QUEUE_STALE_AFTER", "12h"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_STALE_AFTER: %w", err)
	}

	entryLocation, err := time.LoadLocation(getEnv("QUEUE_ENTRY_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_ENTRY_TIMEZONE: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "campus-queue"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigins:           getEnv("CORS_ALLOW_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "campus-queue:events"),
			Enabled:       getEnvAsBool("REDIS_ENABLED", true),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Service:     getEnv("APP_NAME", "campus-queue"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminEmail:            os.Getenv("AUTH_ADMIN_EMAIL"),
			AdminPassword:         os.Getenv("AUTH_ADMIN_PASSWORD"),
		},
		Queue: QueueConfig{
			TicketPrefix:                 getEnv("QUEUE_TICKET_PREFIX", "A"),
			StaleAfter:                   staleAfter,
			DefaultAverageServiceMinutes: getEnvAsInt("QUEUE_DEFAULT_AVG_SERVICE_MINUTES", 5),
			RequireGuestEntry:            getEnvAsBool("QUEUE_REQUIRE_GUEST_ENTRY", false),
			EntryLocation:                entryLocation,
		},
		Crowd: CrowdConfig{
			YellowAboveMinutes:    getEnvAsInt("CROWD_YELLOW_ABOVE_MINUTES", 10),
			RedAboveMinutes:       getEnvAsInt("CROWD_RED_ABOVE_MINUTES", 25),
			AverageServiceMinutes: getEnvAsInt("CROWD_AVG_SERVICE_MINUTES", 3),
		},
		Realtime: RealtimeConfig{
			ClientBuffer: getEnvAsInt("REALTIME_CLIENT_BUFFER", 32),
			Heartbeat:    time.Duration(getEnvAsInt("REALTIME_HEARTBEAT_SECONDS", 25)) * time.Second,
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		RateLimit: RateLimitConfig{
			Max:    getEnvAsInt("RATE_LIMIT_MAX", 30),
			Window: time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}

	if cfg.Crowd.RedAboveMinutes < cfg.Crowd.YellowAboveMinutes {
		return nil, fmt.Errorf("CROWD_RED_ABOVE_MINUTES (%d) must not be below CROWD_YELLOW_ABOVE_MINUTES (%d)",
			cfg.Crowd.RedAboveMinutes, cfg.Crowd.YellowAboveMinutes)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued access tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
