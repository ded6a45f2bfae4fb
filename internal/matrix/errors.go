package matrix

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec is matched by every error Expand and Validate return.
var ErrInvalidSpec = errors.New("invalid matrix spec")

// InvalidSpecError describes why a spec cannot be expanded.
type InvalidSpecError struct {
	Family string
	Axis   string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	var where []string
	if e.Family != "" {
		where = append(where, fmt.Sprintf("family %q", e.Family))
	}
	if e.Axis != "" {
		where = append(where, fmt.Sprintf("axis %q", e.Axis))
	}
	if len(where) == 0 {
		return fmt.Sprintf("%s: %s", ErrInvalidSpec, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidSpec, strings.Join(where, " "), e.Reason)
}

func (e *InvalidSpecError) Is(target error) bool {
	return target == ErrInvalidSpec
}

func invalid(family, axis, format string, args ...interface{}) *InvalidSpecError {
	return &InvalidSpecError{Family: family, Axis: axis, Reason: fmt.Sprintf(format, args...)}
}
