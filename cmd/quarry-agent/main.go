// Command quarry-agent runs the device agent as a system service.
//
// Without flags it runs the agent under the platform's service host
// (the service control dispatcher on Windows, console mode elsewhere).
// The -service flag manages the service registration itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/quarry-io/agent/internal/agent"
	"github.com/quarry-io/agent/internal/config"
	"github.com/quarry-io/agent/internal/host"
	"github.com/quarry-io/agent/internal/lifecycle"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (default: platform config path)")
	svcAction := flag.String("service", "", "Service control action: install, uninstall, start, stop, restart, status")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *svcAction != "" {
		if err := controlService(cfg, *configPath, *svcAction); err != nil {
			fmt.Fprintf(os.Stderr, "service %s failed: %v\n", *svcAction, err)
			os.Exit(1)
		}
		return
	}

	ag, err := agent.New(cfg, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create agent: %v\n", err)
		os.Exit(1)
	}

	err = host.Run(host.Options{
		Name: cfg.Service.Name,
		Capabilities: lifecycle.Capabilities{
			CanStop:          cfg.Service.CanStop,
			CanPauseContinue: cfg.Service.CanPauseContinue,
			CanShutdown:      cfg.Service.CanShutdown,
		},
		PendingWaitHint: cfg.Service.PendingWaitHint,
		Handler:         ag,
		Args:            flag.Args(),
		Logger:          ag.Logger(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "service host failed: %v\n", err)
		os.Exit(1)
	}
}

// program satisfies the service manager library for control actions.
// The agent itself never runs through it; the lifecycle host does that.
type program struct{}

func (program) Start(service.Service) error { return nil }
func (program) Stop(service.Service) error  { return nil }

// controlService installs, removes, or controls the registered service
func controlService(cfg *config.Config, configPath, action string) error {
	svcConfig := &service.Config{
		Name:        cfg.Service.Name,
		DisplayName: cfg.Service.DisplayName,
		Description: cfg.Service.Description,
	}
	if configPath != "" {
		svcConfig.Arguments = []string{"-config", configPath}
	}

	s, err := service.New(program{}, svcConfig)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}

	if action == "status" {
		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("failed to query status: %w", err)
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("running")
		case service.StatusStopped:
			fmt.Println("stopped")
		default:
			fmt.Println("unknown")
		}
		return nil
	}

	return service.Control(s, action)
}
