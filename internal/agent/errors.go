package agent

import (
	"errors"
	"fmt"
)

// Domain error taxonomy shared by the compiler, controller and HTTP layer.
// Every API failure maps to one of these so clients never have to sniff
// message strings.

var (
	// ErrNotFound means the operation referenced an unknown label.
	ErrNotFound = errors.New("unknown label")
	// ErrConflict means a create collided with an existing label.
	ErrConflict = errors.New("label already exists")
)

// ValidationError reports malformed input (targets, labels, plist content).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// OSError wraps a launchctl failure, preserving its diagnostic output.
type OSError struct {
	Op     string // launchctl subcommand
	Output string // stderr/stdout captured from launchctl
	Err    error
}

func (e *OSError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("launchctl %s: %v: %s", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("launchctl %s: %v", e.Op, e.Err)
}

func (e *OSError) Unwrap() error { return e.Err }

// ErrorCode returns the stable machine-readable code for err, used in the
// REST envelope alongside the human-readable message.
func ErrorCode(err error) string {
	var ve *ValidationError
	var oe *OSError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &oe):
		return "os_rejected"
	default:
		return "internal"
	}
}
