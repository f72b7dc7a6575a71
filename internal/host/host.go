// Package host connects the lifecycle controller to the platform's
// service dispatch mechanism. On Windows it speaks the service control
// manager protocol; everywhere else it runs in console mode and maps
// process signals to control requests.
package host

import (
	"fmt"
	"time"

	"github.com/quarry-io/agent/internal/lifecycle"
	"go.uber.org/zap"
)

// Options configures the service host
type Options struct {
	// Name is the service name registered with the control manager
	Name string

	// Capabilities are advertised to the control manager and enforced
	// by the controller
	Capabilities lifecycle.Capabilities

	// PendingWaitHint is attached to every pending status report. Zero
	// means the platform default.
	PendingWaitHint time.Duration

	// Handler receives the lifecycle callbacks
	Handler lifecycle.Handler

	// Args are forwarded to the start callback
	Args []string

	// Logger backs the event sink on platforms without an event log
	Logger *zap.Logger
}

func (o Options) validate() error {
	if o.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if o.Handler == nil {
		return fmt.Errorf("lifecycle handler is required")
	}
	if o.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// stateAware is implemented by handlers that want to observe the
// lifecycle state the controller reports, e.g. to include it in
// telemetry. Wired up after the controller is built, before Start runs.
type stateAware interface {
	SetStateFunc(func() string)
}

func wireState(handler lifecycle.Handler, ctrl *lifecycle.Controller) {
	if sa, ok := handler.(stateAware); ok {
		sa.SetStateFunc(func() string { return ctrl.State().String() })
	}
}

// Run registers the service with the platform dispatcher and blocks until
// the service has stopped. It returns an error if registration fails or
// the service never reached the running state.
func Run(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	return run(opts)
}
