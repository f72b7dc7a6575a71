package tasks

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SystemMetrics is the periodic system telemetry payload
type SystemMetrics struct {
	CPUUsagePercent float64       `json:"cpu_usage_percent"`
	MemoryFreeGB    float64       `json:"memory_free_gb"`
	Disks           []DiskMetrics `json:"disks"`
	Timestamp       string        `json:"timestamp"`
}

// DiskMetrics describes one mounted filesystem
type DiskMetrics struct {
	Mount       string  `json:"mount"`
	FreePercent float64 `json:"free_percent"`
	FreeGB      float64 `json:"free_gb"`
	TotalGB     float64 `json:"total_gb"`
}

// MetricsCollector gathers system metrics from some source
type MetricsCollector interface {
	// Collect gathers current system metrics. CPU usage may be zero on
	// the first call while a baseline is established.
	Collect(ctx context.Context) (*SystemMetrics, error)

	// Name identifies the collector in logs
	Name() string
}

// NewMetricsCollector creates the collector selected by configuration
func NewMetricsCollector(source, exporterURL string, logger *zap.Logger) (MetricsCollector, error) {
	switch strings.ToLower(source) {
	case "", "builtin":
		logger.Info("Using builtin metrics collector (gopsutil)")
		return NewBuiltinCollector(logger), nil
	case "exporter":
		if exporterURL == "" {
			return nil, fmt.Errorf("exporter_url required for exporter source")
		}
		logger.Info("Using exporter metrics collector", zap.String("url", exporterURL))
		return NewExporterCollector(exporterURL, logger, newScrapeClient()), nil
	default:
		return nil, fmt.Errorf("unknown metrics source: %s", source)
	}
}

// newScrapeClient builds the HTTP client used for exporter scrapes,
// tuned for repeated localhost requests
func newScrapeClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
