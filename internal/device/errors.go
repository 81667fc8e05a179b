// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// ShellExecutionError reports a bridge command that could not be run or exited non-zero.
type ShellExecutionError struct {
	Argv   []string
	Output string
	Err    error
}

func (e *ShellExecutionError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", strings.Join(e.Argv, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ShellExecutionError) Unwrap() error { return e.Err }

// InstallError wraps a failed install, uninstall or clear command.
type InstallError struct {
	Op      string
	Package string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Package, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// PortForwardError wraps a failed forward command.
type PortForwardError struct {
	HostPort   int
	DevicePort int
	Err        error
}

func (e *PortForwardError) Error() string {
	return fmt.Sprintf("forward tcp:%d -> tcp:%d: %v", e.HostPort, e.DevicePort, e.Err)
}

func (e *PortForwardError) Unwrap() error { return e.Err }

// LivenessCheckError reports that the agent status endpoint could not be reached or
// answered with something other than 200.
type LivenessCheckError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *LivenessCheckError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent status %s: http %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("agent status %s: %v", e.URL, e.Err)
}

func (e *LivenessCheckError) Unwrap() error { return e.Err }

// Unavailable marks the error for errdefs.IsUnavailable.
func (e *LivenessCheckError) Unavailable() {}

// UnknownPlatformError reports an SDK level that is not a number or not a known platform.
type UnknownPlatformError struct {
	Value string
	Err   error
}

func (e *UnknownPlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown target platform %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("unknown target platform %q", e.Value)
}

func (e *UnknownPlatformError) Unwrap() error { return e.Err }

// InvalidParameter marks the error for errdefs.IsInvalidArgument.
func (e *UnknownPlatformError) InvalidParameter() {}

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errdefs.ErrFailedPrecondition, fmt.Sprintf(format, args...))
}
