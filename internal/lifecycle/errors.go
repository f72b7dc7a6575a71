package lifecycle

import (
	"errors"
	"fmt"
)

// CodedError is a structured platform failure signaled by a lifecycle
// callback. The code is reported to the control manager as the service
// exit code when a start attempt fails.
type CodedError struct {
	Code uint32
	Err  error
}

// Coded wraps err with a platform error code. A nil err produces an error
// carrying only the code.
func Coded(code uint32, err error) *CodedError {
	return &CodedError{Code: code, Err: err}
}

func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("0x%08x: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("0x%08x", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// errorCode extracts the platform code from err. The second return value
// reports whether err carried a code at all; errors without one are
// treated as unstructured failures.
func errorCode(err error) (uint32, bool) {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, true
	}
	return 0, false
}
