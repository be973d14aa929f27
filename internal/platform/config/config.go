package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "golden/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	LogLevel      slog.Level
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// IngestToken guards POST /ingest. Empty disables the endpoint.
	IngestToken string

	TxTimeout      time.Duration
	KeyLockTTL     time.Duration
	WorklistLimit  int
	ShutdownGrace  time.Duration
	OutboxInterval time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// DatabaseConfig selects the PostgreSQL store. An empty URL keeps records in
// memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the shared duplicate-key lock. An empty URL keeps the
// lock in process.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables streaming the audit outbox. It needs DATABASE_URL.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays
// lean. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:          getEnv("GOLDEN_ADDR", ":8080"),
		LogLevel:      level,
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "golden"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "golden-api"),
		IngestToken:   os.Getenv("INGEST_TOKEN"),
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: pstrings.DedupeAndTrim(strings.Split(os.Getenv("KAFKA_BROKERS"), ",")),
			Topic:   getEnv("AUDIT_TOPIC", "golden.audit"),
		},
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"TX_TIMEOUT", 5 * time.Second, &cfg.TxTimeout},
		{"KEY_LOCK_TTL", 10 * time.Second, &cfg.KeyLockTTL},
		{"SHUTDOWN_GRACE", 10 * time.Second, &cfg.ShutdownGrace},
		{"OUTBOX_INTERVAL", time.Second, &cfg.OutboxInterval},
		{"DB_CONN_MAX_LIFETIME", 30 * time.Minute, &cfg.Database.ConnMaxLifetime},
		{"REDIS_DIAL_TIMEOUT", 5 * time.Second, &cfg.Redis.DialTimeout},
		{"REDIS_READ_TIMEOUT", 3 * time.Second, &cfg.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT", 3 * time.Second, &cfg.Redis.WriteTimeout},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return Server{}, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"WORKLIST_LIMIT", 200, &cfg.WorklistLimit},
		{"DB_MAX_OPEN_CONNS", 25, &cfg.Database.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", 5, &cfg.Database.MaxIdleConns},
		{"REDIS_POOL_SIZE", 10, &cfg.Redis.PoolSize},
		{"REDIS_MIN_IDLE_CONNS", 2, &cfg.Redis.MinIdleConns},
	}
	for _, i := range ints {
		if *i.dest, err = getInt(i.key, i.def); err != nil {
			return Server{}, err
		}
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Database.URL == "" {
		return Server{}, fmt.Errorf("KAFKA_BROKERS requires DATABASE_URL for the audit outbox")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
