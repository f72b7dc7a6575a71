package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation; tests mutate the
// field under test
func validConfig() *Config {
	return &Config{
		DeviceID:      "test-device",
		SubjectPrefix: "agents",
		Service: ServiceConfig{
			Name:             "quarry-agent",
			DisplayName:      "Quarry Agent",
			CanStop:          true,
			CanPauseContinue: true,
			CanShutdown:      true,
		},
		NATS: NATSConfig{
			URLs: []string{"nats://localhost:4222"},
			Auth: AuthConfig{Type: "none"},
		},
		Tasks: TasksConfig{
			Heartbeat:     HeartbeatConfig{Enabled: true, Interval: 1 * time.Minute},
			SystemMetrics: SystemMetricsConfig{Enabled: true, Interval: 5 * time.Minute, Source: "builtin"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "test.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// TestValidateDeviceID tests device ID validation
func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		wantErr  bool
		errText  string
	}{
		// Valid device IDs
		{
			name:     "alphanumeric",
			deviceID: "device123",
			wantErr:  false,
		},
		{
			name:     "with dashes",
			deviceID: "device-123-abc",
			wantErr:  false,
		},
		{
			name:     "with underscores",
			deviceID: "device_123_abc",
			wantErr:  false,
		},
		{
			name:     "UUID format",
			deviceID: "550e8400-e29b-41d4-a716-446655440000",
			wantErr:  false,
		},

		// Invalid device IDs
		{
			name:     "empty",
			deviceID: "",
			wantErr:  true,
			errText:  "device_id is required",
		},
		{
			name:     "with spaces",
			deviceID: "device 123",
			wantErr:  true,
			errText:  "must contain only alphanumeric",
		},
		{
			name:     "with dots",
			deviceID: "device.123",
			wantErr:  true,
			errText:  "must contain only alphanumeric",
		},
		{
			name:     "with special characters",
			deviceID: "device@123",
			wantErr:  true,
			errText:  "must contain only alphanumeric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.DeviceID = tt.deviceID

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateSubjectPrefix tests subject prefix validation
func TestValidateSubjectPrefix(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		wantErr bool
		errText string
	}{
		// Valid prefixes
		{
			name:    "simple prefix",
			prefix:  "agents",
			wantErr: false,
		},
		{
			name:    "hierarchical",
			prefix:  "us-east-1.production.agents",
			wantErr: false,
		},
		{
			name:    "with underscore",
			prefix:  "my_region.dev-env.agents",
			wantErr: false,
		},

		// Invalid prefixes
		{
			name:    "empty",
			prefix:  "",
			wantErr: true,
			errText: "subject_prefix is required",
		},
		{
			name:    "leading dot",
			prefix:  ".agents",
			wantErr: true,
			errText: "cannot start or end with a dot",
		},
		{
			name:    "trailing dot",
			prefix:  "agents.",
			wantErr: true,
			errText: "cannot start or end with a dot",
		},
		{
			name:    "consecutive dots",
			prefix:  "region..agents",
			wantErr: true,
			errText: "consecutive dots not allowed",
		},
		{
			name:    "wildcard",
			prefix:  "region.*.agents",
			wantErr: true,
			errText: "contains invalid characters",
		},
		{
			name:    "too long",
			prefix:  strings.Repeat("a", 51),
			wantErr: true,
			errText: "must not exceed 50 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSubjectPrefix(tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSubjectPrefix() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("validateSubjectPrefix() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateService tests the service registration settings
func TestValidateService(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
		errText string
	}{
		{
			name:    "valid defaults",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "positive wait hint",
			mutate: func(cfg *Config) {
				cfg.Service.PendingWaitHint = 30 * time.Second
			},
			wantErr: false,
		},
		{
			name: "missing name",
			mutate: func(cfg *Config) {
				cfg.Service.Name = ""
			},
			wantErr: true,
			errText: "service name is required",
		},
		{
			name: "name with spaces",
			mutate: func(cfg *Config) {
				cfg.Service.Name = "quarry agent"
			},
			wantErr: true,
			errText: "must contain only alphanumeric",
		},
		{
			name: "negative wait hint",
			mutate: func(cfg *Config) {
				cfg.Service.PendingWaitHint = -time.Second
			},
			wantErr: true,
			errText: "cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateNATSAuth tests NATS authentication validation
func TestValidateNATSAuth(t *testing.T) {
	tests := []struct {
		name    string
		auth    AuthConfig
		wantErr bool
		errText string
	}{
		{
			name:    "none auth",
			auth:    AuthConfig{Type: "none"},
			wantErr: false,
		},
		{
			name:    "token auth",
			auth:    AuthConfig{Type: "token", Token: "secret-token"},
			wantErr: false,
		},
		{
			name:    "userpass auth",
			auth:    AuthConfig{Type: "userpass", Username: "user", Password: "pass"},
			wantErr: false,
		},
		{
			name:    "creds auth",
			auth:    AuthConfig{Type: "creds", CredsFile: "/etc/quarry-agent/agent.creds"},
			wantErr: false,
		},
		{
			name:    "invalid type",
			auth:    AuthConfig{Type: "invalid"},
			wantErr: true,
			errText: "invalid auth type",
		},
		{
			name:    "token missing",
			auth:    AuthConfig{Type: "token"},
			wantErr: true,
			errText: "token is required",
		},
		{
			name:    "userpass missing password",
			auth:    AuthConfig{Type: "userpass", Username: "user"},
			wantErr: true,
			errText: "username and password are required",
		},
		{
			name:    "creds missing file",
			auth:    AuthConfig{Type: "creds"},
			wantErr: true,
			errText: "creds_file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.NATS.Auth = tt.auth

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateMetricsSource tests metrics source validation
func TestValidateMetricsSource(t *testing.T) {
	tests := []struct {
		name    string
		metrics SystemMetricsConfig
		wantErr bool
		errText string
	}{
		{
			name:    "builtin source",
			metrics: SystemMetricsConfig{Enabled: true, Interval: time.Minute, Source: "builtin"},
			wantErr: false,
		},
		{
			name: "exporter source with URL",
			metrics: SystemMetricsConfig{
				Enabled: true, Interval: time.Minute,
				Source: "exporter", ExporterURL: "http://localhost:9100/metrics",
			},
			wantErr: false,
		},
		{
			name:    "disabled skips source check",
			metrics: SystemMetricsConfig{Enabled: false, Source: "bogus"},
			wantErr: false,
		},
		{
			name:    "exporter source without URL",
			metrics: SystemMetricsConfig{Enabled: true, Interval: time.Minute, Source: "exporter"},
			wantErr: true,
			errText: "exporter_url is required",
		},
		{
			name:    "unknown source",
			metrics: SystemMetricsConfig{Enabled: true, Interval: time.Minute, Source: "magic"},
			wantErr: true,
			errText: "invalid metrics source",
		},
		{
			name:    "interval too short",
			metrics: SystemMetricsConfig{Enabled: true, Interval: 100 * time.Millisecond, Source: "builtin"},
			wantErr: true,
			errText: "at least 1 second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Tasks.SystemMetrics = tt.metrics

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestLoad tests loading a config file from disk with defaults applied
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
device_id: test-device
logging:
  file: ` + filepath.Join(dir, "agent.log") + `
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DeviceID != "test-device" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "test-device")
	}
	if cfg.SubjectPrefix != "agents" {
		t.Errorf("SubjectPrefix default = %q, want %q", cfg.SubjectPrefix, "agents")
	}
	if cfg.Service.Name != "quarry-agent" {
		t.Errorf("Service.Name default = %q, want %q", cfg.Service.Name, "quarry-agent")
	}
	if !cfg.Service.CanStop || !cfg.Service.CanPauseContinue || !cfg.Service.CanShutdown {
		t.Errorf("service capability defaults = %+v, want all true", cfg.Service)
	}
	if cfg.Service.PendingWaitHint != 0 {
		t.Errorf("PendingWaitHint default = %v, want 0", cfg.Service.PendingWaitHint)
	}
	if cfg.NATS.DrainTimeout != 10*time.Second {
		t.Errorf("DrainTimeout default = %v, want 10s", cfg.NATS.DrainTimeout)
	}
	if cfg.Tasks.SystemMetrics.Source != "builtin" {
		t.Errorf("metrics source default = %q, want builtin", cfg.Tasks.SystemMetrics.Source)
	}
}

// TestLoadOverrides tests that file values override defaults
func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
device_id: test-device
service:
  name: custom-svc
  can_pause_continue: false
  pending_wait_hint: 30s
logging:
  file: ` + filepath.Join(dir, "agent.log") + `
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "custom-svc" {
		t.Errorf("Service.Name = %q, want %q", cfg.Service.Name, "custom-svc")
	}
	if cfg.Service.CanPauseContinue {
		t.Error("CanPauseContinue = true, want false")
	}
	if cfg.Service.PendingWaitHint != 30*time.Second {
		t.Errorf("PendingWaitHint = %v, want 30s", cfg.Service.PendingWaitHint)
	}
}

// TestLoadMissingFile tests the error path for a nonexistent config
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}
