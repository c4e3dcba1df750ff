// Package errs defines the error taxonomy shared by the capability resolver
// and the feature loader.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNetwork             = errors.New("network error")
	ErrMalformedCapability = errors.New("malformed capability document")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrTransform           = errors.New("coordinate transform error")
)

// NetworkError reports a transport failure or a non-success status.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("network: %s: status %d: %v", e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("network: %s: status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("network: %s: %v", e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

type MalformedCapabilityError struct {
	Dialect string
	Reason  string
	Err     error
}

func (e *MalformedCapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s capabilities: %s: %v", e.Dialect, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s capabilities: %s", e.Dialect, e.Reason)
}

func (e *MalformedCapabilityError) Unwrap() error { return e.Err }

func (e *MalformedCapabilityError) Is(target error) bool { return target == ErrMalformedCapability }

// UnsupportedFormatError lists what the service offered when none of the
// accepted formats was among them.
type UnsupportedFormatError struct {
	Offered []string
}

func (e *UnsupportedFormatError) Error() string {
	if len(e.Offered) == 0 {
		return "no format advertised"
	}
	return "no acceptable format in [" + strings.Join(e.Offered, ", ") + "]"
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

type TransformError struct {
	Reason string
}

func (e *TransformError) Error() string { return "transform: " + e.Reason }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

func Transformf(format string, args ...any) error {
	return &TransformError{Reason: fmt.Sprintf(format, args...)}
}

func Malformed(dialect, reason string) error {
	return &MalformedCapabilityError{Dialect: dialect, Reason: reason}
}
