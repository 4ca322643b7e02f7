// Package config loads the daemon's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ormanaq/tmate/internal/controller"
	"github.com/ormanaq/tmate/internal/logger"
)

// HistoryConfig selects an optional lifecycle-audit sink by DSN.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// Config is the top-level TOML structure.
type Config struct {
	Listen         string            `toml:"listen" mapstructure:"listen"`
	BasePath       string            `toml:"base_path" mapstructure:"base_path"`
	Region         string            `toml:"region" mapstructure:"region"`
	SessionCommand string            `toml:"session_command" mapstructure:"session_command"`
	WebDomain      string            `toml:"web_domain" mapstructure:"web_domain"`
	StopWait       time.Duration     `toml:"stop_wait" mapstructure:"stop_wait"`
	MaxLogRecords  int               `toml:"max_log_records" mapstructure:"max_log_records"`
	HubBuffer      int               `toml:"hub_buffer" mapstructure:"hub_buffer"`
	History        HistoryConfig     `toml:"history" mapstructure:"history"`
	Slog           logger.SlogConfig `toml:"slog" mapstructure:"slog"`
	Capture        logger.FileConfig `toml:"capture" mapstructure:"capture"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:         "127.0.0.1:8553",
		BasePath:       "/api",
		Region:         "local",
		SessionCommand: "tmate -F",
		WebDomain:      "tmate.local",
		StopWait:       5 * time.Second,
		Slog:           logger.SlogConfig{Level: "info", Format: "text"},
	}
}

// Load parses the TOML file at path, filling unset fields with defaults.
// An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("base_path", cfg.BasePath)
	v.SetDefault("region", cfg.Region)
	v.SetDefault("session_command", cfg.SessionCommand)
	v.SetDefault("web_domain", cfg.WebDomain)
	v.SetDefault("stop_wait", cfg.StopWait)
	v.SetDefault("slog.level", cfg.Slog.Level)
	v.SetDefault("slog.format", cfg.Slog.Format)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.StopWait < 0 {
		return Config{}, fmt.Errorf("config %s: stop_wait must not be negative", path)
	}
	if cfg.MaxLogRecords < 0 {
		return Config{}, fmt.Errorf("config %s: max_log_records must not be negative", path)
	}
	return cfg, nil
}

// ControllerOptions maps the configuration onto controller options. The
// history sink is attached separately by the caller, which owns its
// lifetime.
func (c Config) ControllerOptions() controller.Options {
	return controller.Options{
		Region:         c.Region,
		SessionCommand: c.SessionCommand,
		WebDomain:      c.WebDomain,
		StopWait:       c.StopWait,
		Capture:        c.Capture,
		MaxLogRecords:  c.MaxLogRecords,
		HubBuffer:      c.HubBuffer,
	}
}
