// Package tasks implements the agent's telemetry payloads: heartbeats
// and system metrics from either gopsutil or a Prometheus exporter.
package tasks

import (
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// Heartbeat is the periodic liveness message published to JetStream
type Heartbeat struct {
	Version       string `json:"version"`
	State         string `json:"state"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// NewHeartbeat builds a heartbeat for the current instant. The state is
// the agent's lifecycle state as reported to the service manager; host
// uptime is best effort and zero when unavailable.
func NewHeartbeat(version, state string) *Heartbeat {
	hb := &Heartbeat{
		Version:   version,
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if uptime, err := host.Uptime(); err == nil {
		hb.UptimeSeconds = uptime
	}
	return hb
}
