package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ExitCodeError pairs an error with the process exit code it should produce.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

// Cause lets errors.Cause see through the exit code wrapper.
func (e *ExitCodeError) Cause() error {
	return e.error
}

// ConfigError reports a malformed or out-of-range machine identifier, class,
// or configuration value. It is always fatal and raised before any remote call.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.msg
}

func NewConfigError(format string, args ...interface{}) error {
	return errors.WithStack(&ConfigError{msg: fmt.Sprintf(format, args...)})
}

func IsConfigError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigError)
	return ok
}

// ErrNoMachineAvailable is returned when every candidate machine failed its
// liveness probe during one dispatch attempt.
var ErrNoMachineAvailable = errors.New("no machine available")

// ErrProbeTimeout marks a liveness probe that ran past its deadline.
var ErrProbeTimeout = errors.New("probe timeout")

func IsNoMachineAvailable(err error) bool {
	return errors.Cause(err) == ErrNoMachineAvailable
}

// ExitCodeOf maps err onto the exit code the binaries report.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return 0
	}
	if e, ok := err.(*ExitCodeError); ok {
		return e.GetExitCode()
	}
	switch {
	case IsConfigError(err):
		return ConfigErrorExitCode
	case IsNoMachineAvailable(err):
		return NoMachineAvailableExitCode
	}
	return GenericFailureExitCode
}
