package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by the sluice binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitInvalid = 3
)

// ConfigError reports a configuration file that could not be loaded.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
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

// InvalidDocumentError reports a policy document that failed to load.
type InvalidDocumentError struct {
	Path string
	Err  error
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *InvalidDocumentError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(path string, err error) *ConfigError {
	return &ConfigError{Path: path, Err: err}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	var docErr *InvalidDocumentError
	if errors.As(err, &docErr) {
		return ExitInvalid
	}
	return ExitFailure
}
