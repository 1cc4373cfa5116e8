package cli

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/sentinel/pkg/config"
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string

	// Err is the load or validation error, if any.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewConfigLoadError wraps a failure from config.LoadConfig. A single field
// error keeps its field; several are joined into the message, one per line.
func NewConfigLoadError(err error) *ConfigError {
	var verr config.ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) == 0 {
		return &ConfigError{Message: err.Error(), Err: err}
	}

	if len(verr.Errors) == 1 {
		fe := verr.Errors[0]
		return &ConfigError{Field: fe.Field, Message: fe.Message, Err: err}
	}

	lines := make([]string, len(verr.Errors))
	for i, fe := range verr.Errors {
		lines[i] = "  - " + fe.Error()
	}
	return &ConfigError{
		Message: fmt.Sprintf("%d invalid fields:\n%s", len(verr.Errors), strings.Join(lines, "\n")),
		Err:     err,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}
