package config

import (
	"runtime"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	LogFile     string
	ConfigPath  string
	ExporterURL string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			LogFile:     `C:\ProgramData\QuarryAgent\agent.log`,
			ConfigPath:  `C:\ProgramData\QuarryAgent\config.yaml`,
			ExporterURL: "http://localhost:9182/metrics", // windows_exporter
		}
	case "freebsd":
		return PlatformDefaults{
			LogFile:     "/var/log/quarry-agent/agent.log",
			ConfigPath:  "/usr/local/etc/quarry-agent/config.yaml",
			ExporterURL: "http://localhost:9100/metrics", // node_exporter
		}
	default:
		// Linux and anything else Unix-like
		return PlatformDefaults{
			LogFile:     "/var/log/quarry-agent/agent.log",
			ConfigPath:  "/etc/quarry-agent/config.yaml",
			ExporterURL: "http://localhost:9100/metrics", // node_exporter
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// UpdateConfigDefaults updates viper defaults with platform-specific values
// This should be called from setDefaults() in config.go
func UpdateConfigDefaults(v interface{}) {
	type viper interface {
		SetDefault(key string, value interface{})
	}

	if viperInstance, ok := v.(viper); ok {
		defaults := GetPlatformDefaults()

		viperInstance.SetDefault("tasks.system_metrics.exporter_url", defaults.ExporterURL)
		viperInstance.SetDefault("logging.file", defaults.LogFile)
	}
}
