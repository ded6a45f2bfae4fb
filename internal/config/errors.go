package config

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a file that could not be read, parsed or
// validated. It is shared by every loader in the module.
type ConfigurationError struct {
	FilePath  string `json:"filePath"`
	ErrorType string `json:"errorType"` // io, parse or validation
	Err       error  `json:"-"`
}

// NewConfigurationError wraps err with the file it came from.
func NewConfigurationError(filePath, errorType string, err error) *ConfigurationError {
	return &ConfigurationError{FilePath: filePath, ErrorType: errorType, Err: err}
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", ce.ErrorType, ce.FilePath, ce.Err)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}

// IsValidationError reports whether err carries ValidationErrors.
func IsValidationError(err error) bool {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var single ValidationError
	return errors.As(err, &single)
}
