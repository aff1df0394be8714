package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Twitch   TwitchConfig   `yaml:"twitch"`
	Sync     SyncConfig     `yaml:"sync"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig configures the aggregate cache backend. When disabled the
// service falls back to an in-process cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TwitchConfig configures the upstream API client.
type TwitchConfig struct {
	ClientID string `yaml:"client_id"`
	AppToken string `yaml:"app_token"`
	BaseURL  string `yaml:"base_url"`
	// RateLimit bounds outgoing API requests per second; 0 disables the
	// client-side limiter.
	RateLimit float64 `yaml:"rate_limit"`
}

// SyncConfig bounds the snapshot synchronization fetch.
type SyncConfig struct {
	PageBudget   int `yaml:"page_budget"`
	PageSize     int `yaml:"page_size"`
	TagBatchSize int `yaml:"tag_batch_size"`
}

// ScheduleConfig configures the background job intervals.
type ScheduleConfig struct {
	SyncInterval       string `yaml:"sync_interval"`
	TagRefreshInterval string `yaml:"tag_refresh_interval"`
}

// ParseSyncInterval returns the snapshot sync interval as time.Duration.
func (s ScheduleConfig) ParseSyncInterval() time.Duration {
	d, err := time.ParseDuration(s.SyncInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ParseTagRefreshInterval returns the full taxonomy refresh interval.
func (s ScheduleConfig) ParseTagRefreshInterval() time.Duration {
	d, err := time.ParseDuration(s.TagRefreshInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./streamlens.db"},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Twitch: TwitchConfig{
			RateLimit: 8,
		},
		Sync: SyncConfig{
			PageBudget:   10,
			PageSize:     100,
			TagBatchSize: 100,
		},
		Schedule: ScheduleConfig{
			SyncInterval:       "5m",
			TagRefreshInterval: "24h",
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STREAMLENS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TWITCH_CLIENT_ID"); v != "" {
		cfg.Twitch.ClientID = v
	}
	if v := os.Getenv("TWITCH_APP_TOKEN"); v != "" {
		cfg.Twitch.AppToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}
