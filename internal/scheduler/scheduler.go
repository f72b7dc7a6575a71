// Package scheduler owns the agent's periodic telemetry jobs and maps
// the service pause/continue lifecycle onto them.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler wraps the cron scheduler with pause/resume semantics: a
// paused agent keeps its jobs registered but nothing fires until the
// service is continued.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	paused  bool
}

// New creates an empty scheduler; jobs are registered before Start
func New(logger *zap.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger,
	}, nil
}

// AddPeriodic registers a job that fires every interval, starting
// immediately on the first tick
func (s *Scheduler) AddPeriodic(name string, interval time.Duration, task func()) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.logger.Info("Registered scheduled task",
		zap.String("task", name),
		zap.Duration("interval", interval))
	return nil
}

// Start begins executing registered jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Start()
	s.running = true
	s.paused = false
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.scheduler.Jobs())))
}

// Pause stops job execution without removing the jobs. Idempotent.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.paused {
		return nil
	}
	if err := s.scheduler.StopJobs(); err != nil {
		return fmt.Errorf("failed to pause scheduler: %w", err)
	}
	s.paused = true
	s.logger.Info("Scheduler paused")
	return nil
}

// Resume restarts job execution after a pause. Idempotent.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || !s.paused {
		return
	}
	s.scheduler.Start()
	s.paused = false
	s.logger.Info("Scheduler resumed")
}

// Paused reports whether the scheduler is currently paused
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Shutdown stops the scheduler and releases its resources
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	s.logger.Info("Scheduler shut down")
	return nil
}
