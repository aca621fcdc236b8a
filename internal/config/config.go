package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything reunia-ingest needs, loaded from environment
// variables with sensible local-dev defaults.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	MQTT     MQTTConfig
	Sources  SourcesConfig
}

// DatabaseConfig PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN builds the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig settings for the optional per-source run lock.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// MQTTConfig settings for the optional MQTT run trigger (disabled by default).
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// SourceConfig per-source adapter settings.
type SourceConfig struct {
	Enabled   bool
	BaseURL   string
	RateLimit time.Duration // fixed sleep between successive requests
	PageSize  int
}

// SourcesConfig settings for every registered source adapter.
type SourcesConfig struct {
	NCMEC    SourceConfig
	NamUs    SourceConfig
	Interpol SourceConfig
	Charley  SourceConfig
	BulkFile BulkFileConfig

	// RetryAttempts and RetryInitialDelay parameterize the shared fetch
	// helper; per-request timeout is fixed at 30s.
	RetryAttempts     int
	RetryInitialDelay time.Duration
}

// BulkFileConfig settings for the bulk CSV/XLSX dump adapter.
type BulkFileConfig struct {
	Enabled bool
	Path    string // local file path or http(s) URL
}

// Load reads configuration from the environment.
func Load() *Config {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "reunia")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "reunia-ingest")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "reunia/ingest/trigger")

	cfg.Sources.NCMEC.Enabled = getEnv("NCMEC_ENABLED", "true") == "true"
	cfg.Sources.NCMEC.BaseURL = getEnv("NCMEC_BASE_URL", "https://www.missingkids.org/gateway")
	cfg.Sources.NCMEC.RateLimit = parseDuration(getEnv("NCMEC_RATE_LIMIT", "1s"), time.Second)
	cfg.Sources.NCMEC.PageSize = parseInt(getEnv("NCMEC_PAGE_SIZE", "100"), 100)

	cfg.Sources.NamUs.Enabled = getEnv("NAMUS_ENABLED", "true") == "true"
	cfg.Sources.NamUs.BaseURL = getEnv("NAMUS_BASE_URL", "https://www.namus.gov/api")
	cfg.Sources.NamUs.RateLimit = parseDuration(getEnv("NAMUS_RATE_LIMIT", "2s"), 2*time.Second)
	cfg.Sources.NamUs.PageSize = parseInt(getEnv("NAMUS_PAGE_SIZE", "50"), 50)

	cfg.Sources.Interpol.Enabled = getEnv("INTERPOL_ENABLED", "true") == "true"
	cfg.Sources.Interpol.BaseURL = getEnv("INTERPOL_BASE_URL", "https://ws-public.interpol.int/notices/v1")
	cfg.Sources.Interpol.RateLimit = parseDuration(getEnv("INTERPOL_RATE_LIMIT", "2s"), 2*time.Second)
	cfg.Sources.Interpol.PageSize = parseInt(getEnv("INTERPOL_PAGE_SIZE", "40"), 40)

	cfg.Sources.Charley.Enabled = getEnv("CHARLEY_ENABLED", "true") == "true"
	cfg.Sources.Charley.BaseURL = getEnv("CHARLEY_BASE_URL", "https://charleyproject.org/feed")
	cfg.Sources.Charley.RateLimit = parseDuration(getEnv("CHARLEY_RATE_LIMIT", "1s"), time.Second)
	cfg.Sources.Charley.PageSize = parseInt(getEnv("CHARLEY_PAGE_SIZE", "50"), 50)

	cfg.Sources.BulkFile.Enabled = getEnv("BULKFILE_ENABLED", "false") == "true"
	cfg.Sources.BulkFile.Path = getEnv("BULKFILE_PATH", "")

	cfg.Sources.RetryAttempts = parseInt(getEnv("FETCH_RETRY_ATTEMPTS", "3"), 3)
	cfg.Sources.RetryInitialDelay = parseDuration(getEnv("FETCH_RETRY_INITIAL_DELAY", "1s"), time.Second)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
