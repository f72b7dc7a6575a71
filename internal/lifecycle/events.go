package lifecycle

import (
	"fmt"

	"go.uber.org/zap"
)

// Severity classifies an event sink message
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityAuditSuccess
	SeverityAuditFailure
)

// String returns the human-readable name of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityAuditSuccess:
		return "audit_success"
	case SeverityAuditFailure:
		return "audit_failure"
	default:
		return "unknown"
	}
}

// EventSink records human-readable service events. The controller writes
// callback failures and unexpected errors here; it never reads back from
// the sink, so implementations are free to drop messages.
type EventSink interface {
	Event(severity Severity, message string)
}

// ZapSink adapts a zap logger to the EventSink interface. Audit severities
// are recorded at info level with an audit marker field.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates an event sink backed by the given logger
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Event(severity Severity, message string) {
	switch severity {
	case SeverityWarning:
		s.logger.Warn(message)
	case SeverityError:
		s.logger.Error(message)
	case SeverityAuditSuccess, SeverityAuditFailure:
		s.logger.Info(message, zap.String("audit", severity.String()))
	default:
		s.logger.Info(message)
	}
}

// failureMessage formats a callback failure the same way for every sink
// backend: the failing operation plus the platform code when one exists.
func failureMessage(op string, err error) string {
	if code, ok := errorCode(err); ok {
		return fmt.Sprintf("%s failed w/err 0x%08x", op, code)
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}
