// Package agent implements the hosted service: a device agent that
// publishes telemetry over NATS and answers remote commands. It
// implements the lifecycle callbacks, so all of its startup, pause, and
// shutdown behavior is driven by the service control state machine.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quarry-io/agent/internal/config"
	natsclient "github.com/quarry-io/agent/internal/nats"
	"github.com/quarry-io/agent/internal/scheduler"
	"github.com/quarry-io/agent/internal/tasks"
	"go.uber.org/zap"
)

// Agent is the hosted service implementation
type Agent struct {
	config  *config.Config
	logger  *zap.Logger
	version string

	mu        sync.Mutex
	nats      *natsclient.Client
	scheduler *scheduler.Scheduler
	collector tasks.MetricsCollector
	cancel    context.CancelFunc
	stateFn   func() string
}

// New creates the agent. Connections and schedules are not established
// here; that happens in Start once the service manager asks for it.
func New(cfg *config.Config, version string) (*Agent, error) {
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Agent{
		config:  cfg,
		logger:  logger,
		version: version,
		stateFn: func() string { return "Unknown" },
	}, nil
}

// Logger exposes the agent's logger for host wiring
func (a *Agent) Logger() *zap.Logger {
	return a.logger
}

// SetStateFunc wires in the lifecycle state accessor used by heartbeats
// and the status command. Called by the host once the controller exists.
func (a *Agent) SetStateFunc(fn func() string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stateFn = fn
}

func (a *Agent) state() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateFn()
}

// Start brings the agent up: NATS connection, command subscriptions, and
// the telemetry schedule. Invoked by the lifecycle controller during the
// start transition; it must return once the agent is live.
func (a *Agent) Start(ctx context.Context, args []string) error {
	a.logger.Info("Starting agent",
		zap.String("version", a.version),
		zap.String("device_id", a.config.DeviceID),
		zap.Strings("args", args))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	nc, err := natsclient.NewClient(&a.config.NATS, a.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	handlers := natsclient.NewCommandHandlers(a.logger, a.config.DeviceID, a.config.SubjectPrefix, a.version, a.state)
	if err := handlers.SubscribeAll(nc); err != nil {
		cancel()
		nc.Close()
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	sched, err := a.buildSchedule(runCtx, nc)
	if err != nil {
		cancel()
		nc.Close()
		return err
	}
	sched.Start()

	a.mu.Lock()
	a.nats = nc
	a.scheduler = sched
	a.cancel = cancel
	a.mu.Unlock()

	a.logger.Info("Agent running", zap.String("device_id", a.config.DeviceID))
	return nil
}

// buildSchedule registers the enabled telemetry jobs
func (a *Agent) buildSchedule(ctx context.Context, nc *natsclient.Client) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	if a.config.Tasks.Heartbeat.Enabled {
		if err := sched.AddPeriodic("heartbeat", a.config.Tasks.Heartbeat.Interval, func() {
			a.publishHeartbeat(nc)
		}); err != nil {
			return nil, err
		}
	}

	if a.config.Tasks.SystemMetrics.Enabled {
		collector, err := tasks.NewMetricsCollector(
			a.config.Tasks.SystemMetrics.Source,
			a.config.Tasks.SystemMetrics.ExporterURL,
			a.logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		a.collector = collector

		if err := sched.AddPeriodic("system_metrics", a.config.Tasks.SystemMetrics.Interval, func() {
			a.publishMetrics(ctx, nc)
		}); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

// Stop takes the agent down gracefully: the schedule first, then the
// NATS connection with a bounded drain.
func (a *Agent) Stop() error {
	a.logger.Info("Stopping agent")

	a.mu.Lock()
	nc, sched, cancel := a.nats, a.scheduler, a.cancel
	a.nats, a.scheduler, a.cancel = nil, nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			a.logger.Error("Error shutting down scheduler", zap.Error(err))
		}
	}
	if nc != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), a.config.NATS.DrainTimeout)
		defer drainCancel()
		if err := nc.Drain(drainCtx); err != nil {
			a.logger.Error("Error draining NATS", zap.Error(err))
		}
	}

	a.logger.Info("Agent stopped")
	a.logger.Sync()
	return nil
}

// Pause suspends telemetry without dropping the NATS connection, so a
// paused agent still answers ping and status commands.
func (a *Agent) Pause() error {
	a.mu.Lock()
	sched := a.scheduler
	a.mu.Unlock()

	if sched == nil {
		return fmt.Errorf("agent is not running")
	}
	if err := sched.Pause(); err != nil {
		return err
	}
	a.logger.Info("Agent paused")
	return nil
}

// Continue resumes telemetry after a pause
func (a *Agent) Continue() error {
	a.mu.Lock()
	sched := a.scheduler
	a.mu.Unlock()

	if sched == nil {
		return fmt.Errorf("agent is not running")
	}
	sched.Resume()
	a.logger.Info("Agent resumed")
	return nil
}

// Shutdown handles the system-shutdown notification. The machine is
// going down; skip the graceful drain and just close.
func (a *Agent) Shutdown() error {
	a.logger.Info("System shutdown, closing agent")

	a.mu.Lock()
	nc, cancel := a.nats, a.cancel
	a.nats, a.scheduler, a.cancel = nil, nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if nc != nil {
		nc.Close()
	}
	a.logger.Sync()
	return nil
}

// publishHeartbeat publishes one heartbeat message
func (a *Agent) publishHeartbeat(nc *natsclient.Client) {
	hb := tasks.NewHeartbeat(a.version, a.state())
	data, err := json.Marshal(hb)
	if err != nil {
		a.logger.Error("Failed to marshal heartbeat", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.heartbeat", a.config.SubjectPrefix, a.config.DeviceID)
	if err := nc.PublishTelemetry(subject, data); err != nil {
		a.logger.Warn("Failed to publish heartbeat", zap.Error(err))
	}
}

// publishMetrics collects and publishes one system metrics sample
func (a *Agent) publishMetrics(ctx context.Context, nc *natsclient.Client) {
	collectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	metrics, err := a.collector.Collect(collectCtx)
	if err != nil {
		a.logger.Warn("Failed to collect system metrics", zap.Error(err))
		return
	}

	data, err := json.Marshal(metrics)
	if err != nil {
		a.logger.Error("Failed to marshal system metrics", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.metrics", a.config.SubjectPrefix, a.config.DeviceID)
	if err := nc.PublishTelemetry(subject, data); err != nil {
		a.logger.Warn("Failed to publish system metrics", zap.Error(err))
	}
}
