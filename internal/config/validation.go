package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports one invalid field of a configuration or input file.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors collects every problem found in one pass so users can fix
// a file in one go.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "no validation errors"
	case 1:
		return ve[0].Error()
	}
	parts := make([]string, len(ve))
	for i, err := range ve {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// HasErrors reports whether any problem was collected.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add records a problem with field. The optional value is kept for callers
// that render the offending input.
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	e := ValidationError{Field: field, Message: message}
	if len(value) > 0 {
		e.Value = value[0]
	}
	*ve = append(*ve, e)
}

// Check records err when it is non-nil. Field context is kept when err is
// a ValidationError.
func (ve *ValidationErrors) Check(err error) {
	if err == nil {
		return
	}
	var v ValidationError
	if errors.As(err, &v) {
		*ve = append(*ve, v)
		return
	}
	*ve = append(*ve, ValidationError{Message: err.Error()})
}

// Sort orders the errors by field so messages are stable between runs.
func (ve ValidationErrors) Sort() {
	sort.SliceStable(ve, func(i, j int) bool { return ve[i].Field < ve[j].Field })
}

// ValidateRequired fails when value is blank. owner names what needs the
// field, e.g. "the docker backend".
func ValidateRequired(field, value, owner string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return ValidationError{Field: field, Value: value, Message: "is required for " + owner}
}

// ValidateOneOf fails when value is not in allowed.
func ValidateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// maxNameLen bounds family and axis names, which end up in job ids and
// report file names.
const maxNameLen = 100

// ValidateEntityName checks a family or axis name. Names may not contain the
// characters job ids use as separators.
func ValidateEntityName(name, kind string) error {
	if err := ValidateRequired("name", name, kind); err != nil {
		return err
	}
	if len(name) > maxNameLen {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("must not exceed %d characters", maxNameLen),
		}
	}
	if strings.ContainsAny(name, " \t\n/,=+") {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "cannot contain whitespace or any of '/', ',', '=', '+'",
		}
	}
	return nil
}
