// Package procctl abstracts spawning and signalling external processes so
// the sweep lifecycle logic can be exercised in tests without a real
// executable or radio hardware.
package procctl

import (
	"context"
	"io"
	"os"
	"syscall"
)

// Controller is the process-control capability injected into the sweep core
type Controller interface {
	// Start spawns a process in its own process group with stdout and
	// stderr pipes attached.
	Start(ctx context.Context, name string, args ...string) (Process, error)

	// Run executes a short-lived command and returns its combined output
	// streams. Used for hardware probes; the context enforces the timeout.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

	// KillByName forcefully kills every process with the given executable
	// name, system wide. Covers orphans left behind by an unclean shutdown.
	// Matching nothing is not an error.
	KillByName(name string) error

	// Alive reports whether a process with the given PID still exists
	Alive(pid int) bool
}

// Process is a handle to one spawned external process
type Process interface {
	PID() int
	GroupID() int
	Stdout() io.Reader
	Stderr() io.Reader

	// Signal sends a signal to the process itself
	Signal(sig os.Signal) error

	// SignalGroup sends a signal to the whole process group
	SignalGroup(sig os.Signal) error

	// Wait blocks until the process exits and returns its exit status.
	// Must be called exactly once.
	Wait() ExitStatus
}

// ExitStatus describes how a process terminated
type ExitStatus struct {
	Code     int            // exit code, -1 when killed by a signal
	Signaled bool           // true when terminated by a signal
	Signal   syscall.Signal // the terminating signal, when Signaled
	Err      error          // non-exit wait failure, if any
}
