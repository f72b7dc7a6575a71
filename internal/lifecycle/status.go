package lifecycle

import "time"

// Handle is the opaque status handle obtained by registering the service
// with the control manager. It is held for the process lifetime.
type Handle uintptr

// Status is one status report published to the control manager. A fresh
// value is built for every report; nothing is retained between reports.
type Status struct {
	State      State
	ExitCode   uint32
	WaitHint   time.Duration
	Checkpoint uint32
}

// Publisher forwards a status report to the control manager. Publication
// is best-effort: the controller logs a failed publish but has no way to
// recover from one. A manager that stops hearing from the service will
// kill it via the wait-hint timeout regardless.
type Publisher interface {
	Publish(handle Handle, status Status) error
}

// Reporter publishes lifecycle status reports and owns the checkpoint
// counter. The counter tells the control manager a pending transition is
// still making progress: it must advance on every report issued while in
// a pending state and reset once a stable state is reached.
//
// Reporter is not safe for uncoordinated concurrent use; the controller
// serializes all calls.
type Reporter struct {
	handle     Handle
	pub        Publisher
	events     EventSink
	checkpoint uint32
}

// NewReporter creates a reporter bound to the registered status handle
func NewReporter(handle Handle, pub Publisher, events EventSink) *Reporter {
	return &Reporter{
		handle:     handle,
		pub:        pub,
		events:     events,
		checkpoint: 1,
	}
}

// Report publishes the given state to the control manager. Entering a
// stable state reports checkpoint 0 and resets the counter; a pending
// state reports the current counter value and advances it.
func (r *Reporter) Report(state State, exitCode uint32, waitHint time.Duration) {
	status := Status{
		State:    state,
		ExitCode: exitCode,
		WaitHint: waitHint,
	}

	if !state.Pending() {
		status.Checkpoint = 0
		r.checkpoint = 1
	} else {
		status.Checkpoint = r.checkpoint
		r.checkpoint++
	}

	if err := r.pub.Publish(r.handle, status); err != nil {
		// Nothing to retry: the manager either heard us or it did not.
		r.events.Event(SeverityWarning, failureMessage("SetServiceStatus", err))
	}
}
