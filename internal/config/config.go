// Package config loads runtime settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = ":8098"
	defaultDBPath          = "/data/aferobridge.db"
	defaultPlatform        = "hubspace"
	defaultPollingInterval = 30 * time.Second
)

// Config stores the runtime settings of the bridge daemon.
type Config struct {
	HTTPAddr        string
	DBPath          string
	Platform        string
	RefreshToken    string
	DisplayUnit     string
	PollingInterval time.Duration
	LogLevel        slog.Level
}

// fileConfig is the YAML shape of the optional config file.
type fileConfig struct {
	HTTPAddr        string `yaml:"http_addr"`
	DBPath          string `yaml:"db_path"`
	Platform        string `yaml:"platform"`
	RefreshToken    string `yaml:"refresh_token"`
	DisplayUnit     string `yaml:"display_unit"`
	PollingInterval string `yaml:"polling_interval"`
	LogLevel        string `yaml:"log_level"`
}

// Load builds Config from the file named by CONFIG_FILE (if present) with
// environment variables taking precedence.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        defaultHTTPAddr,
		DBPath:          defaultDBPath,
		Platform:        defaultPlatform,
		DisplayUnit:     "C",
		PollingInterval: defaultPollingInterval,
		LogLevel:        slog.LevelInfo,
	}

	if path := getenv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBPath = getenv("DB_PATH", cfg.DBPath)
	cfg.Platform = strings.ToLower(getenv("AFERO_PLATFORM", cfg.Platform))
	cfg.RefreshToken = getenv("AFERO_REFRESH_TOKEN", cfg.RefreshToken)
	cfg.DisplayUnit = strings.ToUpper(getenv("DISPLAY_UNIT", cfg.DisplayUnit))
	cfg.PollingInterval = parseDuration("POLLING_INTERVAL", cfg.PollingInterval)
	cfg.LogLevel = parseLogLevel(getenv("LOG_LEVEL", ""), cfg.LogLevel)

	if cfg.DisplayUnit != "C" && cfg.DisplayUnit != "F" {
		return Config{}, fmt.Errorf("display_unit must be C or F, got %q", cfg.DisplayUnit)
	}
	if cfg.PollingInterval < time.Second {
		return Config{}, fmt.Errorf("polling_interval %s is below 1s", cfg.PollingInterval)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if file.HTTPAddr != "" {
		c.HTTPAddr = file.HTTPAddr
	}
	if file.DBPath != "" {
		c.DBPath = file.DBPath
	}
	if file.Platform != "" {
		c.Platform = strings.ToLower(file.Platform)
	}
	if file.RefreshToken != "" {
		c.RefreshToken = file.RefreshToken
	}
	if file.DisplayUnit != "" {
		c.DisplayUnit = strings.ToUpper(file.DisplayUnit)
	}
	if file.PollingInterval != "" {
		value, err := time.ParseDuration(file.PollingInterval)
		if err != nil {
			return fmt.Errorf("parse polling_interval: %w", err)
		}
		c.PollingInterval = value
	}
	if file.LogLevel != "" {
		c.LogLevel = parseLogLevel(file.LogLevel, c.LogLevel)
	}
	return nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
