package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handler is implemented by the concrete service being hosted. Each
// callback either completes normally or returns an error; a *CodedError
// carries a platform error code, anything else is treated as an
// unstructured failure. Callbacks run to completion on the dispatcher
// goroutine; a callback that blocks indefinitely blocks the whole
// controller and risks the control manager killing the process once the
// reported wait hint elapses.
type Handler interface {
	// Start performs service-specific initialization. It must return
	// once the service is live; long-running work belongs on goroutines
	// the handler owns.
	Start(ctx context.Context, args []string) error

	// Stop performs service-specific stop operations
	Stop() error

	// Pause performs service-specific pause operations
	Pause() error

	// Continue resumes a paused service
	Continue() error

	// Shutdown is invoked when the operating system itself is shutting
	// down. Best effort only: there is no rollback path.
	Shutdown() error
}

// Controller drives the service control state machine. It owns the
// current lifecycle state, maps control requests to transitions, invokes
// the handler callbacks, and reports every state change through the
// Reporter so the control manager never observes the service stuck in a
// pending state.
//
// Exactly one controller exists per process; the control manager binds
// one name/handle pair for the process lifetime.
type Controller struct {
	name     string
	caps     Capabilities
	handler  Handler
	reporter *Reporter
	events   EventSink

	// Wait hint attached to every pending report. Zero means "use the
	// platform default", which is what the classic service skeleton
	// reports; raise it via config when callbacks take real time.
	pendingWaitHint time.Duration

	// Control delivery is serial by construction of the dispatcher, but
	// the state and checkpoint counter must stay consistent even if an
	// alternative dispatcher overlaps deliveries.
	mu    sync.Mutex
	state State
}

// NewController creates the controller for the hosted service. The
// reporter must already be bound to the handle obtained by registering
// name with the control manager.
func NewController(name string, caps Capabilities, handler Handler, reporter *Reporter, events EventSink, pendingWaitHint time.Duration) (*Controller, error) {
	if name == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("lifecycle handler is required")
	}
	if reporter == nil {
		return nil, fmt.Errorf("status reporter is required")
	}
	if events == nil {
		return nil, fmt.Errorf("event sink is required")
	}

	return &Controller{
		name:            name,
		caps:            caps,
		handler:         handler,
		reporter:        reporter,
		events:          events,
		pendingWaitHint: pendingWaitHint,
		state:           StartPending,
	}, nil
}

// Name returns the registered service name
func (c *Controller) Name() string {
	return c.name
}

// Capabilities returns the capability flags fixed at construction
func (c *Controller) Capabilities() Capabilities {
	return c.caps
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setStatus records state as current and reports it to the control
// manager. Must be called with c.mu held.
func (c *Controller) setStatus(state State, exitCode uint32) {
	c.state = state

	var hint time.Duration
	if state.Pending() {
		hint = c.pendingWaitHint
	}
	c.reporter.Report(state, exitCode, hint)
}

// invoke runs a handler callback, converting a panic into an unstructured
// failure so no callback outcome can escape the transition boundary. An
// escaped failure would prevent the final status report from ever being
// sent, leaving the control manager convinced the service is hung.
func invoke(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	return fn()
}

// Start runs the service start transition. It is invoked by the host
// dispatcher as the literal service entry point, before the control loop
// exists; a failure here has no previous state to roll back to, so it
// always resolves to Stopped with the signaled code as exit code.
func (c *Controller) Start(ctx context.Context, args []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setStatus(StartPending, 0)

	err := invoke("Service Start", func() error {
		return c.handler.Start(ctx, args)
	})
	if err != nil {
		c.logFailure("Service Start", err)
		code, _ := errorCode(err)
		c.setStatus(Stopped, code)
		return
	}

	c.setStatus(Running, 0)
}

// Stop runs the stop transition. The state current before the pending
// report is captured first: a failing callback means the service did not
// actually stop, and the control manager's view must be restored to that
// reality rather than left pending forever.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.caps.CanStop {
		return
	}

	original := c.state
	c.setStatus(StopPending, 0)

	if err := invoke("Service Stop", c.handler.Stop); err != nil {
		c.logFailure("Service Stop", err)
		c.setStatus(original, 0)
		return
	}

	c.setStatus(Stopped, 0)
}

// Pause runs the pause transition, rolling back to Running on failure
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.caps.CanPauseContinue {
		return
	}

	c.setStatus(PausePending, 0)

	if err := invoke("Service Pause", c.handler.Pause); err != nil {
		c.logFailure("Service Pause", err)
		c.setStatus(Running, 0)
		return
	}

	c.setStatus(Paused, 0)
}

// Continue runs the resume transition, rolling back to Paused on failure
func (c *Controller) Continue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.caps.CanPauseContinue {
		return
	}

	c.setStatus(ContinuePending, 0)

	if err := invoke("Service Continue", c.handler.Continue); err != nil {
		c.logFailure("Service Continue", err)
		c.setStatus(Paused, 0)
		return
	}

	c.setStatus(Running, 0)
}

// Shutdown handles the system-shutdown notification. There is no pending
// report and no rollback path; the callback is best effort and a failure
// is only logged.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.caps.CanShutdown {
		return
	}

	if err := invoke("Service Shutdown", c.handler.Shutdown); err != nil {
		c.logFailure("Service Shutdown", err)
		return
	}

	c.setStatus(Stopped, 0)
}

// Interrogate re-reports the current state without changing it. It is a
// read, not a transition: the checkpoint and exit code rules still apply
// through the reporter, but no callback runs.
func (c *Controller) Interrogate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reporter.Report(c.state, 0, 0)
}

// Handle dispatches one control request to the matching transition.
// Unknown control codes are ignored: user-defined codes in the 128..255
// range and controls this service never advertised must not surface as
// errors.
func (c *Controller) Handle(ctl Control) {
	switch ctl {
	case ControlStop:
		c.Stop()
	case ControlPause:
		c.Pause()
	case ControlContinue:
		c.Continue()
	case ControlShutdown:
		c.Shutdown()
	case ControlInterrogate:
		c.Interrogate()
	default:
	}
}

// logFailure writes a callback failure to the event sink. Structured
// failures carry the platform code, everything else logs generically.
func (c *Controller) logFailure(op string, err error) {
	c.events.Event(SeverityError, failureMessage(op, err))
}
