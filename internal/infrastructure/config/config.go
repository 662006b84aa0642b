// Package config loads manager configuration from environment variables.
//
// The apps themselves live in a separate YAML registry file; this package
// only locates that file and tunes the runtime knobs around it. Bad
// configuration is fatal at startup, never surfaced per-request.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all manager configuration.
type Config struct {
	Server    ServerConfig
	Apps      AppsConfig
	Exec      ExecConfig
	Logs      LogsConfig
	Auth      AuthConfig
	Notify    NotifyConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"APPMAN_PORT" default:"8600"`
	Host string `envconfig:"APPMAN_HOST" default:"0.0.0.0"`
}

// AppsConfig locates the application registry file.
type AppsConfig struct {
	File string `envconfig:"APPMAN_APPS_FILE" default:"apps.yaml"`
}

// ExecConfig tunes the process executor and lock table.
type ExecConfig struct {
	ActionTimeout time.Duration `envconfig:"APPMAN_ACTION_TIMEOUT" default:"60s"`
	UpdateTimeout time.Duration `envconfig:"APPMAN_UPDATE_TIMEOUT" default:"120s"`
	GracePeriod   time.Duration `envconfig:"APPMAN_GRACE_PERIOD" default:"5s"`
	LockWait      time.Duration `envconfig:"APPMAN_LOCK_WAIT" default:"30s"`
	CaptureBytes  int           `envconfig:"APPMAN_CAPTURE_BYTES" default:"2097152"`
}

// LogsConfig tunes log tailing.
type LogsConfig struct {
	DefaultLines int      `envconfig:"APPMAN_LOG_LINES" default:"50"`
	MaxLines     int      `envconfig:"APPMAN_LOG_MAX_LINES" default:"500"`
	Noise        []string `envconfig:"APPMAN_LOG_NOISE" default:"GET /health,keepalive"`
}

// AuthConfig holds the identity lists the dispatch layer consults.
type AuthConfig struct {
	AdminTokens   []string `envconfig:"APPMAN_ADMIN_TOKENS"`
	AllowedTokens []string `envconfig:"APPMAN_ALLOWED_TOKENS"`
}

// NotifyConfig configures the optional action webhook.
type NotifyConfig struct {
	WebhookURL string        `envconfig:"APPMAN_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"APPMAN_WEBHOOK_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"APPMAN_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"APPMAN_LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"APPMAN_RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"APPMAN_RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"APPMAN_RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Apps.File == "" {
		return fmt.Errorf("apps file path is empty")
	}
	if c.Exec.ActionTimeout <= 0 {
		return fmt.Errorf("action timeout must be positive")
	}
	if c.Exec.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive")
	}
	if c.Exec.CaptureBytes <= 0 {
		return fmt.Errorf("capture bound must be positive")
	}
	if c.Logs.DefaultLines <= 0 || c.Logs.MaxLines < c.Logs.DefaultLines {
		return fmt.Errorf("log line bounds are inconsistent")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8600",
			Host: "0.0.0.0",
		},
		Apps: AppsConfig{
			File: "apps.yaml",
		},
		Exec: ExecConfig{
			ActionTimeout: 60 * time.Second,
			UpdateTimeout: 120 * time.Second,
			GracePeriod:   5 * time.Second,
			LockWait:      30 * time.Second,
			CaptureBytes:  2 * 1024 * 1024,
		},
		Logs: LogsConfig{
			DefaultLines: 50,
			MaxLines:     500,
			Noise:        []string{"GET /health", "keepalive"},
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
