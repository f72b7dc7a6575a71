//go:build !windows

package host

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quarry-io/agent/internal/lifecycle"
	"go.uber.org/zap"
)

// consolePublisher records status reports in the log. Outside Windows
// there is no control manager to inform, but the same report sequence is
// still emitted so lifecycle behavior is identical across platforms.
type consolePublisher struct {
	logger *zap.Logger
}

func (p *consolePublisher) Publish(handle lifecycle.Handle, status lifecycle.Status) error {
	p.logger.Info("Service status",
		zap.String("state", status.State.String()),
		zap.Uint32("exit_code", status.ExitCode),
		zap.Uint32("checkpoint", status.Checkpoint),
		zap.Duration("wait_hint", status.WaitHint))
	return nil
}

// run hosts the service in console mode: SIGINT and SIGTERM drive the
// stop transition, SIGUSR1/SIGUSR2 drive pause and continue so the full
// state machine is exercisable outside Windows.
func run(opts Options) error {
	sink := lifecycle.NewZapSink(opts.Logger)
	pub := &consolePublisher{logger: opts.Logger}
	reporter := lifecycle.NewReporter(lifecycle.Handle(1), pub, sink)

	ctrl, err := lifecycle.NewController(opts.Name, opts.Capabilities, opts.Handler, reporter, sink, opts.PendingWaitHint)
	if err != nil {
		return err
	}

	wireState(opts.Handler, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Start(ctx, opts.Args)
	if ctrl.State() != lifecycle.Running {
		return fmt.Errorf("service %s failed to start", opts.Name)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigChan)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGUSR1:
			ctrl.Handle(lifecycle.ControlPause)
		case syscall.SIGUSR2:
			ctrl.Handle(lifecycle.ControlContinue)
		default:
			opts.Logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			ctrl.Handle(lifecycle.ControlStop)
		}

		if ctrl.State() == lifecycle.Stopped {
			return nil
		}
	}
}
