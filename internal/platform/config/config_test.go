package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"GOLDEN_ADDR", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "TX_TIMEOUT", "KEY_LOCK_TTL", "INGEST_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 10*time.Second, cfg.KeyLockTTL)
	assert.Equal(t, 200, cfg.WorklistLimit)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "golden.audit", cfg.Kafka.Topic)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOLDEN_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://golden@localhost/golden")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, broker-2:9092,broker-1:9092,")
	t.Setenv("TX_TIMEOUT", "2s")
	t.Setenv("WORKLIST_LIMIT", "50")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.TxTimeout)
	assert.Equal(t, 50, cfg.WorklistLimit)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":      {"TX_TIMEOUT", "soon"},
		"negative duration": {"KEY_LOCK_TTL", "-1s"},
		"bad integer":       {"WORKLIST_LIMIT", "many"},
		"bad log level":     {"LOG_LEVEL", "loud"},
		"kafka without db":  {"KAFKA_BROKERS", "broker:9092"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOLDEN_ADDR=:7070\nAUDIT_TOPIC=records.audit\n"), 0o600))
	// godotenv never overrides a variable that is set, even to "".
	for _, key := range []string{"GOLDEN_ADDR", "AUDIT_TOPIC"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "records.audit", cfg.Kafka.Topic)
}
