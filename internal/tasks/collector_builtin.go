package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// BuiltinCollector collects metrics in-process using gopsutil
type BuiltinCollector struct {
	logger *zap.Logger

	// CPU usage is a delta between consecutive samples
	mu           sync.Mutex
	lastCPUTimes cpu.TimesStat
	hasBaseline  bool
}

// NewBuiltinCollector creates a gopsutil-based collector
func NewBuiltinCollector(logger *zap.Logger) *BuiltinCollector {
	return &BuiltinCollector{logger: logger}
}

func (c *BuiltinCollector) Name() string {
	return "builtin (gopsutil)"
}

func (c *BuiltinCollector) Collect(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	cpuPercent, err := c.collectCPU(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect CPU metrics", zap.Error(err))
	} else {
		metrics.CPUUsagePercent = cpuPercent
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect memory metrics", zap.Error(err))
	} else {
		metrics.MemoryFreeGB = round(float64(vm.Available) / 1024 / 1024 / 1024)
	}

	disks, err := c.collectDisks(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect disk metrics", zap.Error(err))
	} else {
		metrics.Disks = disks
	}

	return metrics, nil
}

// collectCPU computes usage from the delta between this sample and the
// previous one; the first call only stores the baseline.
func (c *BuiltinCollector) collectCPU(ctx context.Context) (float64, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("failed to read CPU times: %w", err)
	}
	if len(times) == 0 {
		return 0, fmt.Errorf("no CPU times returned")
	}
	current := times[0]

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasBaseline {
		c.lastCPUTimes = current
		c.hasBaseline = true
		return 0, nil
	}

	totalDelta := totalCPUTime(current) - totalCPUTime(c.lastCPUTimes)
	idleDelta := current.Idle - c.lastCPUTimes.Idle
	c.lastCPUTimes = current

	if totalDelta <= 0 {
		return 0, nil
	}
	return round(100 * (1 - idleDelta/totalDelta)), nil
}

func totalCPUTime(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq +
		t.Softirq + t.Steal + t.Guest + t.GuestNice
}

// collectDisks reports space usage for every physical partition
func (c *BuiltinCollector) collectDisks(ctx context.Context) ([]DiskMetrics, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	disks := make([]DiskMetrics, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			c.logger.Debug("Skipping partition",
				zap.String("mount", p.Mountpoint),
				zap.Error(err))
			continue
		}
		if usage.Total == 0 {
			continue
		}
		disks = append(disks, DiskMetrics{
			Mount:       p.Mountpoint,
			FreeGB:      round(float64(usage.Free) / 1024 / 1024 / 1024),
			TotalGB:     round(float64(usage.Total) / 1024 / 1024 / 1024),
			FreePercent: round(100 * float64(usage.Free) / float64(usage.Total)),
		})
	}
	return disks, nil
}
