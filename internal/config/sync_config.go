package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Conflict resolution strategies for locally pending records.
const (
	ConflictServerWins    = "server_wins"
	ConflictClientWins    = "client_wins"
	ConflictLastWriteWins = "last_write_wins"
)

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	// ============ SCHEDULING ============
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	AutoSyncInterval int  `json:"auto_sync_interval"` // seconds
	SyncOnStartup    bool `json:"sync_on_startup"`
	SyncOnReconnect  bool `json:"sync_on_reconnect"`

	// ============ ENTITIES ============
	Entities map[string]EntitySyncConfig `json:"entities"`

	// ============ CONFLICTS ============
	ConflictResolution string `json:"conflict_resolution"` // server_wins, client_wins, last_write_wins
}

// EntitySyncConfig holds sync configuration for a specific entity kind
type EntitySyncConfig struct {
	Enabled bool `json:"enabled"`
}

// Interval returns the auto-sync period.
func (c *SyncConfig) Interval() time.Duration {
	return time.Duration(c.AutoSyncInterval) * time.Second
}

// KindEnabled reports whether a kind takes part in full cycles. Kinds
// missing from the map are enabled.
func (c *SyncConfig) KindEnabled(kind string) bool {
	e, ok := c.Entities[kind]
	return !ok || e.Enabled
}

// LoadSyncConfig loads sync configuration from the file named by
// SYNC_CONFIG_PATH, falling back to environment defaults.
func LoadSyncConfig() (*SyncConfig, error) {
	cfg := getDefaultSyncConfig()
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if err := loadSyncConfigFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("sync config %s: %w", configPath, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSyncConfigFromFile overlays the JSON file onto cfg
func loadSyncConfigFromFile(path string, cfg *SyncConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func (c *SyncConfig) validate() error {
	switch c.ConflictResolution {
	case ConflictServerWins, ConflictClientWins, ConflictLastWriteWins:
	default:
		return fmt.Errorf("unknown conflict resolution %q", c.ConflictResolution)
	}
	if c.AutoSyncEnabled && c.AutoSyncInterval <= 0 {
		return fmt.Errorf("auto sync interval must be positive, got %d", c.AutoSyncInterval)
	}
	return nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		AutoSyncEnabled:    getBoolEnv("SYNC_AUTO_ENABLED", true),
		AutoSyncInterval:   getIntEnv("SYNC_AUTO_INTERVAL", 300),
		SyncOnStartup:      getBoolEnv("SYNC_ON_STARTUP", true),
		SyncOnReconnect:    getBoolEnv("SYNC_ON_RECONNECT", true),
		Entities:           map[string]EntitySyncConfig{},
		ConflictResolution: getEnv("SYNC_CONFLICT_RESOLUTION", ConflictServerWins),
	}
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
