// Package config loads and validates the agent configuration
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level agent configuration
type Config struct {
	DeviceID      string        `mapstructure:"device_id"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Service       ServiceConfig `mapstructure:"service"`
	NATS          NATSConfig    `mapstructure:"nats"`
	Tasks         TasksConfig   `mapstructure:"tasks"`
	Logging       LoggingConfig `mapstructure:"logging"`
}

// ServiceConfig controls how the agent presents itself to the operating
// system's service manager
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
	Description string `mapstructure:"description"`

	// Capability flags advertised to the service manager. Fixed for the
	// process lifetime once the agent registers.
	CanStop          bool `mapstructure:"can_stop"`
	CanPauseContinue bool `mapstructure:"can_pause_continue"`
	CanShutdown      bool `mapstructure:"can_shutdown"`

	// PendingWaitHint is reported alongside pending states so the
	// service manager knows how long to wait before declaring the agent
	// hung. Zero means the platform default.
	PendingWaitHint time.Duration `mapstructure:"pending_wait_hint"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	URLs          []string      `mapstructure:"urls"`
	Auth          AuthConfig    `mapstructure:"auth"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

// AuthConfig configures NATS authentication
type AuthConfig struct {
	Type      string `mapstructure:"type"` // none, token, userpass, creds
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	CredsFile string `mapstructure:"creds_file"`
}

// TasksConfig configures the scheduled telemetry tasks
type TasksConfig struct {
	Heartbeat     HeartbeatConfig     `mapstructure:"heartbeat"`
	SystemMetrics SystemMetricsConfig `mapstructure:"system_metrics"`
}

// HeartbeatConfig configures the heartbeat task
type HeartbeatConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SystemMetricsConfig configures system metrics collection
type SystemMetricsConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Source      string        `mapstructure:"source"` // builtin or exporter
	ExporterURL string        `mapstructure:"exporter_url"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads the configuration file at path, applies defaults, and
// validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(GetDefaultConfigPath())
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every config key
func setDefaults(v *viper.Viper) {
	v.SetDefault("subject_prefix", "agents")

	v.SetDefault("service.name", "quarry-agent")
	v.SetDefault("service.display_name", "Quarry Agent")
	v.SetDefault("service.description", "Quarry device agent")
	v.SetDefault("service.can_stop", true)
	v.SetDefault("service.can_pause_continue", true)
	v.SetDefault("service.can_shutdown", true)
	v.SetDefault("service.pending_wait_hint", time.Duration(0))

	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 5*time.Second)
	v.SetDefault("nats.drain_timeout", 10*time.Second)

	v.SetDefault("tasks.heartbeat.enabled", true)
	v.SetDefault("tasks.heartbeat.interval", time.Minute)
	v.SetDefault("tasks.system_metrics.enabled", true)
	v.SetDefault("tasks.system_metrics.interval", 5*time.Minute)
	v.SetDefault("tasks.system_metrics.source", "builtin")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)

	// Platform-specific paths (log file, exporter URL)
	UpdateConfigDefaults(v)
}

var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validate checks the loaded configuration for consistency
func validate(cfg *Config) error {
	if err := validateDeviceID(cfg.DeviceID); err != nil {
		return err
	}
	if err := validateSubjectPrefix(cfg.SubjectPrefix); err != nil {
		return err
	}
	if err := validateService(&cfg.Service); err != nil {
		return err
	}

	if len(cfg.NATS.URLs) == 0 {
		return fmt.Errorf("at least one NATS URL is required")
	}

	switch cfg.NATS.Auth.Type {
	case "none":
	case "token":
		if cfg.NATS.Auth.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
	case "userpass":
		if cfg.NATS.Auth.Username == "" || cfg.NATS.Auth.Password == "" {
			return fmt.Errorf("username and password are required for userpass auth")
		}
	case "creds":
		if cfg.NATS.Auth.CredsFile == "" {
			return fmt.Errorf("creds_file is required for creds auth")
		}
	default:
		return fmt.Errorf("invalid auth type: %s", cfg.NATS.Auth.Type)
	}

	if cfg.Tasks.Heartbeat.Enabled && cfg.Tasks.Heartbeat.Interval < time.Second {
		return fmt.Errorf("heartbeat interval must be at least 1 second")
	}
	if cfg.Tasks.SystemMetrics.Enabled {
		if cfg.Tasks.SystemMetrics.Interval < time.Second {
			return fmt.Errorf("system metrics interval must be at least 1 second")
		}
		switch cfg.Tasks.SystemMetrics.Source {
		case "builtin":
		case "exporter":
			if cfg.Tasks.SystemMetrics.ExporterURL == "" {
				return fmt.Errorf("exporter_url is required when source is exporter")
			}
		default:
			return fmt.Errorf("invalid metrics source: %s (must be builtin or exporter)", cfg.Tasks.SystemMetrics.Source)
		}
	}

	if cfg.Logging.File == "" {
		return fmt.Errorf("logging file is required")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("logging max_size_mb must be positive")
	}

	return nil
}

// validateDeviceID checks the device identifier used in NATS subjects
func validateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("device_id must contain only alphanumeric characters, dashes, and underscores")
	}
	return nil
}

var subjectTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateSubjectPrefix checks the NATS subject prefix. Hierarchical
// prefixes (dot-separated tokens) are allowed; wildcards are not.
func validateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("subject_prefix is required")
	}
	if len(prefix) > 50 {
		return fmt.Errorf("subject_prefix must not exceed 50 characters")
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("subject_prefix cannot start or end with a dot")
	}
	if strings.Contains(prefix, "..") {
		return fmt.Errorf("subject_prefix: consecutive dots not allowed")
	}
	for _, token := range strings.Split(prefix, ".") {
		if !subjectTokenPattern.MatchString(token) {
			return fmt.Errorf("subject_prefix token %q contains invalid characters", token)
		}
	}
	return nil
}

var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateService checks the service registration settings
func validateService(svc *ServiceConfig) error {
	if svc.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if !serviceNamePattern.MatchString(svc.Name) {
		return fmt.Errorf("service name must contain only alphanumeric characters, dashes, and underscores")
	}
	if svc.PendingWaitHint < 0 {
		return fmt.Errorf("service pending_wait_hint cannot be negative")
	}
	return nil
}
