// ABOUTME: Application configuration: API server, live-sync endpoint, data paths
// ABOUTME: JSON config under XDG data home with .env and environment overrides
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	// AppName is the application name for data paths.
	AppName = "funnel"

	// ConfigFileName is where local config is stored.
	ConfigFileName = "config.json"

	// DefaultAPIBaseURL is the CRM backend.
	DefaultAPIBaseURL = "https://crm.2389.dev"

	// DefaultLiveSyncURL is the live-update websocket endpoint.
	DefaultLiveSyncURL = "wss://crm.2389.dev/v1/live"
)

// Config holds connection and storage settings.
type Config struct {
	// APIBaseURL is the REST backend base URL.
	APIBaseURL string `json:"api_base_url,omitempty"`

	// LiveSyncURL is the websocket live-update endpoint.
	LiveSyncURL string `json:"live_sync_url,omitempty"`

	// LiveSync enables the push channel.
	LiveSync bool `json:"live_sync"`

	// CachePath overrides the badger cache directory.
	CachePath string `json:"cache_path,omitempty"`

	// RestoreDBPath overrides the restoration database file.
	RestoreDBPath string `json:"restore_db_path,omitempty"`

	// Debug switches logging to the development encoder.
	Debug bool `json:"debug,omitempty"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		APIBaseURL:  DefaultAPIBaseURL,
		LiveSyncURL: DefaultLiveSyncURL,
		LiveSync:    true,
	}
}

func configPath() (string, error) {
	dataDir := filepath.Join(xdg.DataHome, AppName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// Load reads config from disk, applies defaults for missing fields, then
// applies .env and environment overrides. A missing or invalid file yields
// the defaults.
func Load() (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	path, err := configPath()
	if err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			var fromDisk Config
			if json.Unmarshal(data, &fromDisk) == nil {
				cfg = &fromDisk
			}
		}
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.LiveSyncURL == "" {
		cfg.LiveSyncURL = DefaultLiveSyncURL
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FUNNEL_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("FUNNEL_LIVE_SYNC_URL"); v != "" {
		cfg.LiveSyncURL = v
	}
	if v := os.Getenv("FUNNEL_LIVE_SYNC"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.LiveSync = enabled
		}
	}
	if v := os.Getenv("FUNNEL_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("FUNNEL_RESTORE_DB"); v != "" {
		cfg.RestoreDBPath = v
	}
	if v := os.Getenv("FUNNEL_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = debug
		}
	}
}

// Save persists the config to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// CacheDir returns the badger cache directory, creating parents as needed.
func (c *Config) CacheDir() string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(xdg.DataHome, AppName, "cache")
}

// RestoreDB returns the restoration database path.
func (c *Config) RestoreDB() string {
	if c.RestoreDBPath != "" {
		return c.RestoreDBPath
	}
	return filepath.Join(xdg.DataHome, AppName, "restore.db")
}
