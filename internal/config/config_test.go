package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
kafka:
  brokers: ["localhost:9092"]
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "tabwatch.events.raw", cfg.Kafka.Topic)
	assert.Equal(t, "tabwatch-tracker", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, "http://ip-api.com/json", cfg.Resolver.GeoAPIURL)
	assert.Equal(t, 3*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, time.Hour, cfg.Resolver.FailureCooldown)
	assert.Equal(t, 500, cfg.Batch.Size)
	assert.Equal(t, 5*time.Second, cfg.Batch.FlushInterval)
	assert.Empty(t, cfg.Risk.HighRiskCountries)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(writeConfig(t, `
redis:
  addr: "${TEST_REDIS_ADDR}"
`))
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_port: 9090
resolver:
  timeout: 10s
  failure_cooldown: 30m
risk:
  high_risk_countries: ["Atlantis"]
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Resolver.FailureCooldown)
	assert.Equal(t, []string{"Atlantis"}, cfg.Risk.HighRiskCountries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does/not/exist.yaml")
	assert.Error(t, err)
}
