//go:build !windows

package host

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/quarry-io/agent/internal/lifecycle"
	"go.uber.org/zap"
)

type stubHandler struct {
	startErr error
}

func (h *stubHandler) Start(ctx context.Context, args []string) error { return h.startErr }
func (h *stubHandler) Stop() error                                    { return nil }
func (h *stubHandler) Pause() error                                   { return nil }
func (h *stubHandler) Continue() error                                { return nil }
func (h *stubHandler) Shutdown() error                                { return nil }

// TestRunValidatesOptions tests option validation before dispatch
func TestRunValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "missing name",
			opts: Options{Handler: &stubHandler{}, Logger: zap.NewNop()},
		},
		{
			name: "missing handler",
			opts: Options{Name: "svc", Logger: zap.NewNop()},
		},
		{
			name: "missing logger",
			opts: Options{Name: "svc", Handler: &stubHandler{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Run(tt.opts); err == nil {
				t.Error("Run() error = nil, want error")
			}
		})
	}
}

// TestRunStartFailure verifies a failed start surfaces as an error
// instead of entering the signal loop
func TestRunStartFailure(t *testing.T) {
	err := Run(Options{
		Name:         "test-svc",
		Capabilities: lifecycle.Capabilities{CanStop: true},
		Handler:      &stubHandler{startErr: errors.New("init failed")},
		Logger:       zap.NewNop(),
	})
	if err == nil {
		t.Fatal("Run() error = nil, want start failure")
	}
}

// TestRunStopsOnSignal verifies SIGTERM drives the stop transition and
// Run returns once the service is stopped
func TestRunStopsOnSignal(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		done <- Run(Options{
			Name:         "test-svc",
			Capabilities: lifecycle.Capabilities{CanStop: true},
			Handler:      &stubHandler{},
			Logger:       zap.NewNop(),
		})
	}()

	// Give the host time to install its signal handler, then stop it
	time.Sleep(200 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to signal self: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after SIGTERM")
	}
}
