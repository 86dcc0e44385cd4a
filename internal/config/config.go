package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all field client configuration
type Config struct {
	ServerURL      string
	RequestTimeout time.Duration
	ProbeInterval  time.Duration
	APIPort        string
	Database       DatabaseConfig
	Log            LogConfig
	Sync           *SyncConfig
}

// DatabaseConfig holds local store configuration
type DatabaseConfig struct {
	Driver string // sqlite or postgres
	Path   string // sqlite file
	Debug  bool

	// Postgres. An empty password on localhost selects the embedded server.
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	File  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:      strings.TrimRight(getEnv("FIELD_SERVER_URL", "http://localhost:3210"), "/"),
		RequestTimeout: getDurationEnv("FIELD_REQUEST_TIMEOUT", 15*time.Second),
		ProbeInterval:  getDurationEnv("FIELD_PROBE_INTERVAL", 30*time.Second),
		APIPort:        getEnv("FIELD_API_PORT", "3211"),
		Database: DatabaseConfig{
			Driver:   getEnv("FIELD_DB_DRIVER", "sqlite"),
			Path:     getEnv("FIELD_DB_PATH", "./field.db"),
			Debug:    getBoolEnv("FIELD_DB_DEBUG", false),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "eckwms_field"),
		},
		Log: LogConfig{
			Level: getEnv("FIELD_LOG_LEVEL", "info"),
			File:  os.Getenv("FIELD_LOG_FILE"),
		},
	}

	syncCfg, err := LoadSyncConfig()
	if err != nil {
		return nil, err
	}
	cfg.Sync = syncCfg

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FIELD_SERVER_URL must be an absolute URL, got %q", c.ServerURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("FIELD_REQUEST_TIMEOUT must be positive")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("FIELD_PROBE_INTERVAL must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported FIELD_DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("15s") or a bare number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var secs int
	if _, err := fmt.Sscanf(value, "%d", &secs); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
