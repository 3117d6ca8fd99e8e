package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NamingPolicy selects how ticket channels are named.
type NamingPolicy string

const (
	// NamingSequential names channels by the zero-padded ticket id.
	NamingSequential NamingPolicy = "sequential"
	// NamingLabel names channels by the sanitized label plus a -2, -3,
	// ... suffix when siblings collide.
	NamingLabel NamingPolicy = "label"
)

// VisibilityFlag selects which permission flag hides a channel from the
// public principal. Platforms differ on the flag name; both behave the same.
type VisibilityFlag string

const (
	VisibilityViewChannel  VisibilityFlag = "view_channel"
	VisibilityReadMessages VisibilityFlag = "read_messages"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Ticketing TicketingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
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
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters for the intake surface.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	StaffAccessKeyHash    string
	BcryptCost            int
}

// TicketingConfig defines lifecycle policy and the platform resources the
// engine operates on.
type TicketingConfig struct {
	CategoryID      string
	LogChannelID    string
	IntakeChannelID string
	StaffRoleName   string
	Naming          NamingPolicy
	Visibility      VisibilityFlag
	IDWidth         int
	CounterKey      string
	HistoryPageSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	naming := NamingPolicy(getEnv("TICKET_NAMING_POLICY", string(NamingLabel)))
	if naming != NamingSequential && naming != NamingLabel {
		return nil, fmt.Errorf("invalid TICKET_NAMING_POLICY: %s", naming)
	}
	visibility := VisibilityFlag(getEnv("TICKET_VISIBILITY_FLAG", string(VisibilityViewChannel)))
	if visibility != VisibilityViewChannel && visibility != VisibilityReadMessages {
		return nil, fmt.Errorf("invalid TICKET_VISIBILITY_FLAG: %s", visibility)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-rooms"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			StaffAccessKeyHash:    os.Getenv("AUTH_STAFF_ACCESS_KEY_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Ticketing: TicketingConfig{
			CategoryID:      getEnv("TICKET_CATEGORY_ID", "tickets"),
			LogChannelID:    getEnv("TICKET_LOG_CHANNEL_ID", "ticket-logs"),
			IntakeChannelID: getEnv("TICKET_INTAKE_CHANNEL_ID", "open-a-ticket"),
			StaffRoleName:   getEnv("TICKET_STAFF_ROLE", "Staff"),
			Naming:          naming,
			Visibility:      visibility,
			IDWidth:         getEnvAsInt("TICKET_ID_WIDTH", 4),
			CounterKey:      getEnv("TICKET_COUNTER_KEY", "ticket:sequence"),
			HistoryPageSize: getEnvAsInt("TICKET_HISTORY_PAGE_SIZE", 100),
		},
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
