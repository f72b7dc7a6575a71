// Package lifecycle implements the service control state machine: it owns
// the current service state, translates control requests into transitions,
// invokes the hosted service's callbacks, and keeps the service control
// manager informed through correctly sequenced status reports.
package lifecycle

// State represents the lifecycle state of the hosted service.
// The numeric values match the Windows SERVICE_* state constants so the
// Windows host glue can pass them through to the control manager unchanged.
type State uint32

const (
	// Stopped indicates the service is not running
	Stopped State = 1

	// StartPending indicates the service is starting
	StartPending State = 2

	// StopPending indicates the service is stopping
	StopPending State = 3

	// Running indicates the service is running normally
	Running State = 4

	// ContinuePending indicates the service is resuming from a pause
	ContinuePending State = 5

	// PausePending indicates the service is pausing
	PausePending State = 6

	// Paused indicates the service is paused
	Paused State = 7
)

// String returns the human-readable name of the state
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case StartPending:
		return "StartPending"
	case StopPending:
		return "StopPending"
	case Running:
		return "Running"
	case ContinuePending:
		return "ContinuePending"
	case PausePending:
		return "PausePending"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Pending returns true for the transitional states. The checkpoint counter
// advances only while the service sits in one of these.
func (s State) Pending() bool {
	switch s {
	case StartPending, StopPending, ContinuePending, PausePending:
		return true
	default:
		return false
	}
}

// Control is a control request delivered by the host authority's dispatcher.
type Control uint32

const (
	// ControlStop requests the service to stop
	ControlStop Control = 1

	// ControlPause requests the service to pause
	ControlPause Control = 2

	// ControlContinue requests a paused service to resume
	ControlContinue Control = 3

	// ControlInterrogate asks for the current status to be reported again
	ControlInterrogate Control = 4

	// ControlShutdown notifies the service that the system is shutting down
	ControlShutdown Control = 5
)

// String returns the human-readable name of the control request
func (c Control) String() string {
	switch c {
	case ControlStop:
		return "Stop"
	case ControlPause:
		return "Pause"
	case ControlContinue:
		return "Continue"
	case ControlInterrogate:
		return "Interrogate"
	case ControlShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Capabilities declares which control requests the service accepts.
// The values are fixed at construction and advertised to the control
// manager at registration time. The controller still validates incoming
// requests against them rather than trusting the manager's filtering.
type Capabilities struct {
	// CanStop allows the service to be stopped
	CanStop bool

	// CanPauseContinue allows the service to be paused and resumed
	CanPauseContinue bool

	// CanShutdown delivers a notification when the system shuts down
	CanShutdown bool
}
