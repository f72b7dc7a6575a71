//go:build windows

package host

import (
	"context"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/quarry-io/agent/internal/lifecycle"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc/eventlog"
)

// scmPublisher publishes status reports through SetServiceStatus
type scmPublisher struct {
	controlsAccepted uint32
}

func (p *scmPublisher) Publish(handle lifecycle.Handle, status lifecycle.Status) error {
	st := windows.SERVICE_STATUS{
		ServiceType:      windows.SERVICE_WIN32_OWN_PROCESS,
		CurrentState:     uint32(status.State),
		ControlsAccepted: p.controlsAccepted,
		Win32ExitCode:    status.ExitCode,
		CheckPoint:       status.Checkpoint,
		WaitHint:         uint32(status.WaitHint.Milliseconds()),
	}
	if err := windows.SetServiceStatus(windows.Handle(handle), &st); err != nil {
		return fmt.Errorf("SetServiceStatus: %w", err)
	}
	return nil
}

// controlsAccepted builds the SERVICE_ACCEPT_* mask from the capabilities
func controlsAccepted(caps lifecycle.Capabilities) uint32 {
	var accepted uint32
	if caps.CanStop {
		accepted |= windows.SERVICE_ACCEPT_STOP
	}
	if caps.CanPauseContinue {
		accepted |= windows.SERVICE_ACCEPT_PAUSE_CONTINUE
	}
	if caps.CanShutdown {
		accepted |= windows.SERVICE_ACCEPT_SHUTDOWN
	}
	return accepted
}

// eventLogSink writes controller events to the Windows application event
// log, falling back to zap when the event source cannot be opened.
type eventLogSink struct {
	log    *eventlog.Log
	logger *zap.Logger
}

func (s *eventLogSink) Event(severity lifecycle.Severity, message string) {
	if s.log == nil {
		lifecycle.NewZapSink(s.logger).Event(severity, message)
		return
	}
	switch severity {
	case lifecycle.SeverityWarning:
		s.log.Warning(1, message)
	case lifecycle.SeverityError:
		s.log.Error(1, message)
	default:
		s.log.Info(1, message)
	}
}

// dispatcherState carries everything the C callbacks need. The dispatcher
// invokes ServiceMain on its own thread with no room for a closure, so
// one package-level instance stands in for the single service this
// process hosts.
type dispatcherState struct {
	opts Options
	ctrl *lifecycle.Controller
	done chan struct{}
}

var dispatcher *dispatcherState

// run connects the process to the service control dispatcher. The call
// returns once the service has stopped.
func run(opts Options) error {
	dispatcher = &dispatcherState{
		opts: opts,
		done: make(chan struct{}),
	}

	namePtr, err := windows.UTF16PtrFromString(opts.Name)
	if err != nil {
		return fmt.Errorf("invalid service name: %w", err)
	}

	table := []windows.SERVICE_TABLE_ENTRY{
		{ServiceName: namePtr, ServiceProc: syscall.NewCallback(serviceMain)},
		{ServiceName: nil, ServiceProc: 0},
	}

	if err := windows.StartServiceCtrlDispatcher(&table[0]); err != nil {
		return fmt.Errorf("StartServiceCtrlDispatcher: %w", err)
	}
	return nil
}

// serviceMain is the service entry point called by the dispatcher. It
// registers the control handler, builds the controller around the
// obtained status handle, and runs the start transition.
func serviceMain(argc uint32, argv **uint16) uintptr {
	d := dispatcher

	namePtr, err := windows.UTF16PtrFromString(d.opts.Name)
	if err != nil {
		return 1
	}

	handle, err := windows.RegisterServiceCtrlHandlerEx(namePtr, syscall.NewCallback(controlHandler), 0)
	if err != nil {
		// No handle means no way to report status: fatal to startup.
		d.opts.Logger.Error("Failed to register service control handler", zap.Error(err))
		return 1
	}

	sink := &eventLogSink{logger: d.opts.Logger}
	if log, err := eventlog.Open(d.opts.Name); err == nil {
		sink.log = log
		defer log.Close()
	}

	pub := &scmPublisher{controlsAccepted: controlsAccepted(d.opts.Capabilities)}
	reporter := lifecycle.NewReporter(lifecycle.Handle(handle), pub, sink)

	ctrl, err := lifecycle.NewController(d.opts.Name, d.opts.Capabilities, d.opts.Handler, reporter, sink, d.opts.PendingWaitHint)
	if err != nil {
		d.opts.Logger.Error("Failed to create lifecycle controller", zap.Error(err))
		return 1
	}
	d.ctrl = ctrl
	wireState(d.opts.Handler, ctrl)

	args := argsFromUTF16(argc, argv)
	if len(d.opts.Args) > 0 {
		args = append(args, d.opts.Args...)
	}

	ctrl.Start(context.Background(), args)
	if ctrl.State() != lifecycle.Running {
		// Start failed; the stopped report has already been sent.
		return 0
	}

	<-d.done
	return 0
}

// controlHandler receives control codes from the service control manager.
// Delivery is serialized by the manager; the controller still guards its
// state for the overlapping-dispatch case.
func controlHandler(control, eventType uint32, eventData, ctx uintptr) uintptr {
	d := dispatcher
	if d == nil || d.ctrl == nil {
		return uintptr(windows.NO_ERROR)
	}

	switch control {
	case windows.SERVICE_CONTROL_STOP:
		d.ctrl.Handle(lifecycle.ControlStop)
	case windows.SERVICE_CONTROL_PAUSE:
		d.ctrl.Handle(lifecycle.ControlPause)
	case windows.SERVICE_CONTROL_CONTINUE:
		d.ctrl.Handle(lifecycle.ControlContinue)
	case windows.SERVICE_CONTROL_SHUTDOWN:
		d.ctrl.Handle(lifecycle.ControlShutdown)
	case windows.SERVICE_CONTROL_INTERROGATE:
		d.ctrl.Handle(lifecycle.ControlInterrogate)
	default:
		// User-defined codes (128..255) and anything else: ignored.
	}

	if d.ctrl.State() == lifecycle.Stopped {
		select {
		case <-d.done:
		default:
			close(d.done)
		}
	}
	return uintptr(windows.NO_ERROR)
}

// argsFromUTF16 converts the dispatcher's argument vector
func argsFromUTF16(argc uint32, argv **uint16) []string {
	if argv == nil || argc == 0 {
		return nil
	}
	ptrs := unsafe.Slice(argv, argc)
	args := make([]string, 0, argc)
	for _, p := range ptrs {
		args = append(args, windows.UTF16PtrToString(p))
	}
	return args
}
