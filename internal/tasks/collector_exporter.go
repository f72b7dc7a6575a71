package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

// metricNames holds the exporter metric names, which differ between
// node_exporter and windows_exporter
type metricNames struct {
	cpuTime       string
	cpuIdleLabel  string
	memoryFree    string
	diskFreeBytes string
	diskSizeBytes string
	volumeLabel   string
}

func exporterMetricNames() metricNames {
	if runtime.GOOS == "windows" {
		return metricNames{
			cpuTime:       "windows_cpu_time_total",
			cpuIdleLabel:  "idle",
			memoryFree:    "windows_os_physical_memory_free_bytes",
			diskFreeBytes: "windows_logical_disk_free_bytes",
			diskSizeBytes: "windows_logical_disk_size_bytes",
			volumeLabel:   "volume",
		}
	}
	return metricNames{
		cpuTime:       "node_cpu_seconds_total",
		cpuIdleLabel:  "idle",
		memoryFree:    "node_memory_MemAvailable_bytes",
		diskFreeBytes: "node_filesystem_avail_bytes",
		diskSizeBytes: "node_filesystem_size_bytes",
		volumeLabel:   "mountpoint",
	}
}

// ExporterCollector collects metrics by scraping a Prometheus exporter
// (node_exporter or windows_exporter)
type ExporterCollector struct {
	exporterURL string
	logger      *zap.Logger
	httpClient  *http.Client
	names       metricNames

	// CPU usage is a delta between consecutive scrapes
	mu           sync.Mutex
	lastCPUTotal float64
	lastCPUIdle  float64
	hasBaseline  bool
}

// NewExporterCollector creates a collector that scrapes exporterURL
func NewExporterCollector(url string, logger *zap.Logger, httpClient *http.Client) *ExporterCollector {
	return &ExporterCollector{
		exporterURL: url,
		logger:      logger,
		httpClient:  httpClient,
		names:       exporterMetricNames(),
	}
}

func (c *ExporterCollector) Name() string {
	return fmt.Sprintf("exporter (%s)", c.exporterURL)
}

func (c *ExporterCollector) Collect(ctx context.Context) (*SystemMetrics, error) {
	families, err := c.scrape(ctx)
	if err != nil {
		return nil, err
	}

	metrics := &SystemMetrics{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	metrics.CPUUsagePercent = c.extractCPU(families)
	metrics.MemoryFreeGB = c.extractMemory(families)
	metrics.Disks = c.extractDisks(families)
	return metrics, nil
}

// scrape fetches and decodes the exporter's metric families
func (c *ExporterCollector) scrape(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exporterURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "quarry-agent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Size limit guards against a misconfigured target
	decoder := expfmt.NewDecoder(io.LimitReader(resp.Body, 10*1024*1024), expfmt.FmtText)

	families := make(map[string]*dto.MetricFamily)
	for {
		mf := &dto.MetricFamily{}
		if err := decoder.Decode(mf); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode metric family: %w", err)
		}
		families[mf.GetName()] = mf
	}
	return families, nil
}

// extractCPU computes usage from the counter deltas since the previous
// scrape; the first scrape stores the baseline and reports zero.
func (c *ExporterCollector) extractCPU(families map[string]*dto.MetricFamily) float64 {
	family, ok := families[c.names.cpuTime]
	if !ok {
		c.logger.Warn("CPU metric not found", zap.String("metric", c.names.cpuTime))
		return 0
	}

	var total, idle float64
	for _, m := range family.Metric {
		if m.Counter == nil {
			continue
		}
		value := m.Counter.GetValue()
		total += value
		if labelValue(m.Label, "mode") == c.names.cpuIdleLabel {
			idle += value
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasBaseline {
		c.lastCPUTotal = total
		c.lastCPUIdle = idle
		c.hasBaseline = true
		return 0
	}

	totalDelta := total - c.lastCPUTotal
	idleDelta := idle - c.lastCPUIdle
	c.lastCPUTotal = total
	c.lastCPUIdle = idle

	if totalDelta <= 0 {
		return 0
	}
	return round(100 * (1 - idleDelta/totalDelta))
}

func (c *ExporterCollector) extractMemory(families map[string]*dto.MetricFamily) float64 {
	family, ok := families[c.names.memoryFree]
	if !ok || len(family.Metric) == 0 || family.Metric[0].Gauge == nil {
		c.logger.Warn("Memory metric not found", zap.String("metric", c.names.memoryFree))
		return 0
	}
	return round(family.Metric[0].Gauge.GetValue() / 1024 / 1024 / 1024)
}

func (c *ExporterCollector) extractDisks(families map[string]*dto.MetricFamily) []DiskMetrics {
	free := make(map[string]float64)
	if family, ok := families[c.names.diskFreeBytes]; ok {
		for _, m := range family.Metric {
			if volume := labelValue(m.Label, c.names.volumeLabel); volume != "" && m.Gauge != nil {
				free[volume] = m.Gauge.GetValue()
			}
		}
	}

	var disks []DiskMetrics
	if family, ok := families[c.names.diskSizeBytes]; ok {
		for _, m := range family.Metric {
			volume := labelValue(m.Label, c.names.volumeLabel)
			if volume == "" || m.Gauge == nil {
				continue
			}
			totalBytes := m.Gauge.GetValue()
			if totalBytes == 0 {
				continue
			}
			freeBytes := free[volume]
			disks = append(disks, DiskMetrics{
				Mount:       volume,
				FreeGB:      round(freeBytes / 1024 / 1024 / 1024),
				TotalGB:     round(totalBytes / 1024 / 1024 / 1024),
				FreePercent: round(100 * freeBytes / totalBytes),
			})
		}
	}
	return disks
}

// labelValue extracts a label value from a metric's label pairs
func labelValue(labels []*dto.LabelPair, name string) string {
	for _, label := range labels {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}
