package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Purchase PurchaseConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	Tickets  TicketsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// SeedDemoEvent creates a demo event in the in-memory store at startup.
	SeedDemoEvent bool
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines JWT verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// PurchaseConfig bounds the optimistic retry loop.
type PurchaseConfig struct {
	MaxAttempts      int
	RetryBackoffMS   int
	RetryAfterSecond int
}

// CacheConfig controls Redis-backed caches.
type CacheConfig struct {
	AvailabilityTTLSeconds int
	IdempotencyTTLMinutes  int
}

// KafkaConfig configures the domain event stream. No brokers disables streaming.
type KafkaConfig struct {
	Brokers        []string
	Topic          string
	BufferSize     int
	WriteTimeoutMS int
}

// TicketsConfig holds ticket lifecycle settings.
type TicketsConfig struct {
	QRSecret          string
	QRSize            int
	ExpirySweepSecond int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-inventory"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			SeedDemoEvent:         getEnvAsBool("DEV_SEED_DEMO_EVENT", false),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Purchase: PurchaseConfig{
			MaxAttempts:      getEnvAsInt("PURCHASE_MAX_ATTEMPTS", 5),
			RetryBackoffMS:   getEnvAsInt("PURCHASE_RETRY_BACKOFF_MS", 15),
			RetryAfterSecond: getEnvAsInt("PURCHASE_RETRY_AFTER_SECONDS", 1),
		},
		Cache: CacheConfig{
			AvailabilityTTLSeconds: getEnvAsInt("AVAILABILITY_CACHE_TTL_SECONDS", 5),
			IdempotencyTTLMinutes:  getEnvAsInt("IDEMPOTENCY_TTL_MINUTES", 60),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvAsList("KAFKA_BROKERS"),
			Topic:          getEnv("KAFKA_TOPIC", "ticket-inventory.events"),
			BufferSize:     getEnvAsInt("KAFKA_BUFFER_SIZE", 1024),
			WriteTimeoutMS: getEnvAsInt("KAFKA_WRITE_TIMEOUT_MS", 5000),
		},
		Tickets: TicketsConfig{
			QRSecret:          getEnv("TICKET_QR_SECRET", "dev-qr-secret"),
			QRSize:            getEnvAsInt("TICKET_QR_SIZE", 256),
			ExpirySweepSecond: getEnvAsInt("TICKET_EXPIRY_SWEEP_SECONDS", 300),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Purchase.MaxAttempts < 1 {
		errs = append(errs, errors.New("PURCHASE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Purchase.RetryBackoffMS < 0 {
		errs = append(errs, errors.New("PURCHASE_RETRY_BACKOFF_MS must not be negative"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Env() == "production" && c.Auth.JWTSecret == "dev-secret" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be overridden in production"))
	}
	if c.Env() == "production" && c.App.SeedDemoEvent {
		errs = append(errs, errors.New("DEV_SEED_DEMO_EVENT must be off in production"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.BufferSize < 1 {
		errs = append(errs, errors.New("KAFKA_BUFFER_SIZE must be at least 1"))
	}
	if c.Tickets.QRSize < 64 {
		errs = append(errs, errors.New("TICKET_QR_SIZE must be at least 64"))
	}
	return errors.Join(errs...)
}

// Env returns the normalized environment name.
func (c *Config) Env() string {
	return strings.ToLower(c.App.Env)
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

// RetryBackoff is the base delay between CAS attempts.
func (p PurchaseConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMS) * time.Millisecond
}

func (c CacheConfig) AvailabilityTTL() time.Duration {
	return time.Duration(c.AvailabilityTTLSeconds) * time.Second
}

func (c CacheConfig) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMinutes) * time.Minute
}

// WriteTimeout bounds a single background write to the brokers.
func (k KafkaConfig) WriteTimeout() time.Duration {
	if k.WriteTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(k.WriteTimeoutMS) * time.Millisecond
}

// ExpirySweepInterval returns zero when the sweep is disabled.
func (t TicketsConfig) ExpirySweepInterval() time.Duration {
	if t.ExpirySweepSecond <= 0 {
		return 0
	}
	return time.Duration(t.ExpirySweepSecond) * time.Second
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

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
