package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 3, cfg.AIWorkers)
	assert.Equal(t, "portfolio-events", cfg.KafkaTopic)
	assert.False(t, cfg.AIEnabled())
	assert.False(t, cfg.EventsEnabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AI_WORKERS", "7")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("QUOTE_CACHE_TTL", "15s")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.AIWorkers)
	assert.True(t, cfg.AIEnabled())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled())
	assert.Equal(t, 15*time.Second, cfg.QuoteCacheTTL)
}

func TestLoad_RejectsInvalidSizes(t *testing.T) {
	t.Setenv("AI_WORKERS", "0")
	t.Setenv("DB_MAX_OPEN_CONNS", "-1")

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AI_WORKERS")
	assert.Contains(t, err.Error(), "DB_MAX_OPEN_CONNS")
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("AI_TIMEOUT", "soon")

	_, err := Load("does-not-exist.env")
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownGinMode(t *testing.T) {
	t.Setenv("GIN_MODE", "production")

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GIN_MODE")
}
