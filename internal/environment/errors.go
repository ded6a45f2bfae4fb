package environment

import (
	"errors"
	"fmt"
)

// ErrEnvironmentUnavailable is matched by every acquisition failure.
var ErrEnvironmentUnavailable = errors.New("environment unavailable")

// UnavailableError reports why a reference could not be acquired. Transient
// failures (I/O, a daemon hiccup, a file still being populated) may succeed on
// a later attempt; permanent ones (unknown package, digest mismatch) will not.
type UnavailableError struct {
	Ref       string
	Reason    string
	Transient bool
	Err       error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrEnvironmentUnavailable, e.Ref, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrEnvironmentUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func permanent(ref string, err error, format string, args ...interface{}) *UnavailableError {
	return &UnavailableError{Ref: ref, Reason: fmt.Sprintf(format, args...), Err: err}
}

func transient(ref string, err error, format string, args ...interface{}) *UnavailableError {
	return &UnavailableError{Ref: ref, Reason: fmt.Sprintf(format, args...), Transient: true, Err: err}
}

// IsTransient reports whether err is an acquisition failure worth retrying.
func IsTransient(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Transient
}
