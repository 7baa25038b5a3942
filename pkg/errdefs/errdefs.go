// Package errdefs defines the error kinds shared across pactown
// components and their mapping to CLI exit codes.
//
// Errors are classified by wrapping one of the sentinel values with
// fmt.Errorf and %w; callers test with errors.Is or the predicate
// helpers. Each sentinel corresponds to one failure class surfaced to
// users, so the CLI can translate any error into a stable exit code.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates an invalid or unreadable ecosystem config.
	ErrConfig = errors.New("invalid configuration")

	// ErrCycleDetected indicates a dependency cycle between services.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrUnknownDependency indicates a dependency on a service that is
	// neither declared nor given an explicit endpoint.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrNoFreePort indicates port range exhaustion.
	ErrNoFreePort = errors.New("no free port available")

	// ErrHealthTimeout indicates a service failed to become healthy
	// within its timeout.
	ErrHealthTimeout = errors.New("health check timed out")

	// ErrProcessExited indicates a service process died before or
	// instead of becoming healthy.
	ErrProcessExited = errors.New("process exited")

	// ErrAlreadyRunning indicates a start attempt for a service that is
	// already starting or running.
	ErrAlreadyRunning = errors.New("service already running")

	// ErrNotRunning indicates an operation that requires a live service
	// was invoked while the service is stopped.
	ErrNotRunning = errors.New("service not running")

	// ErrPolicyDenied indicates the security policy rejected the
	// operation.
	ErrPolicyDenied = errors.New("denied by policy")

	// ErrInternal indicates a bug or unexpected system failure.
	ErrInternal = errors.New("internal error")
)

// CLI exit codes. Success is 0.
const (
	ExitOK      = 0
	ExitUser    = 1
	ExitRuntime = 2
	ExitPolicy  = 3
)

// Config wraps err (or formats a new error) as a configuration error.
func Config(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConfig}, args...)...)
}

func IsConfig(err error) bool            { return errors.Is(err, ErrConfig) }
func IsCycleDetected(err error) bool     { return errors.Is(err, ErrCycleDetected) }
func IsUnknownDependency(err error) bool { return errors.Is(err, ErrUnknownDependency) }
func IsNoFreePort(err error) bool        { return errors.Is(err, ErrNoFreePort) }
func IsHealthTimeout(err error) bool     { return errors.Is(err, ErrHealthTimeout) }
func IsProcessExited(err error) bool     { return errors.Is(err, ErrProcessExited) }
func IsAlreadyRunning(err error) bool    { return errors.Is(err, ErrAlreadyRunning) }
func IsNotRunning(err error) bool        { return errors.Is(err, ErrNotRunning) }
func IsPolicyDenied(err error) bool      { return errors.Is(err, ErrPolicyDenied) }

// ExitCode maps err to the CLI exit code contract: 0 on nil, 1 for
// user errors (config, unknown dependency, cycle), 3 for policy
// denials, 2 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsConfig(err), IsCycleDetected(err), IsUnknownDependency(err):
		return ExitUser
	case IsPolicyDenied(err):
		return ExitPolicy
	default:
		return ExitRuntime
	}
}
