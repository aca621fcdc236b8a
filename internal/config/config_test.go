package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=reunia sslmode=disable", cfg.Database.DSN())

	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.MQTT.Enabled)

	assert.True(t, cfg.Sources.NCMEC.Enabled)
	assert.Equal(t, 100, cfg.Sources.NCMEC.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Sources.NamUs.RateLimit)
	assert.False(t, cfg.Sources.BulkFile.Enabled)

	assert.Equal(t, 3, cfg.Sources.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Sources.RetryInitialDelay)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("NCMEC_ENABLED", "false")
	t.Setenv("NAMUS_RATE_LIMIT", "5s")
	t.Setenv("BULKFILE_ENABLED", "true")
	t.Setenv("BULKFILE_PATH", "/data/dump.csv")
	t.Setenv("FETCH_RETRY_ATTEMPTS", "5")

	cfg := Load()

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Sources.NCMEC.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Sources.NamUs.RateLimit)
	assert.True(t, cfg.Sources.BulkFile.Enabled)
	assert.Equal(t, "/data/dump.csv", cfg.Sources.BulkFile.Path)
	assert.Equal(t, 5, cfg.Sources.RetryAttempts)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("NAMUS_RATE_LIMIT", "soon")

	cfg := Load()
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Sources.NamUs.RateLimit)
}
