package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	ListenAddr   string `yaml:"listen_addr"`   // TCP bind address (e.g. ":9500")
	DBPath       string `yaml:"db_path"`       // SQLite database path
	HistoryLimit int    `yaml:"history_limit"` // chat lines replayed after login
	MetricsAddr  string `yaml:"metrics_addr"`  // HTTP bind address for /metrics (empty = disabled)
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
	LogFormat    string `yaml:"log_format"`    // text or json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":9500",
		DBPath:       "chatrelay.db",
		HistoryLimit: 50,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// LoadConfig reads a YAML config file over the defaults. Fields absent from
// the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return cfg, fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("server: parse config: %w", err)
	}
	if cfg.HistoryLimit < 0 {
		return cfg, fmt.Errorf("server: history_limit must not be negative")
	}
	return cfg, nil
}
