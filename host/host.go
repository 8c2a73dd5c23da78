// Package host implements the host role: the process the user
// invokes directly. It performs admission checks, opens the
// redirection files, launches the guardian, and returns a status
// tuple synchronously — it never executes user code itself.
package host

import (
	"encoding/json"
	"fmt"

	"github.com/mkasyanov/sentryd/daemonspec"
	"github.com/mkasyanov/sentryd/pidfile"
	"github.com/mkasyanov/sentryd/procspec"
	"github.com/mkasyanov/sentryd/redirect"
)

// StatusKind discriminates the outcome of StartDaemon.
type StatusKind int

const (
	Launched StatusKind = iota
	AlreadyRunning
	RedirStdoutFailed
	RedirStderrFailed
	ForkFailed
	LaunchFailed
)

func (k StatusKind) String() string {
	switch k {
	case Launched:
		return "Launched"
	case AlreadyRunning:
		return "AlreadyRunning"
	case RedirStdoutFailed:
		return "RedirStdoutFailed"
	case RedirStderrFailed:
		return "RedirStderrFailed"
	case ForkFailed:
		return "ForkFailed"
	case LaunchFailed:
		return "LaunchFailed"
	default:
		return "Unknown"
	}
}

// RunStatus is the discriminated status StartDaemon returns to its
// caller. PID is populated for Launched and AlreadyRunning; Err is
// populated for every failure kind.
type RunStatus struct {
	Kind StatusKind
	PID  int
	Err  error
}

// StartDaemon performs admission checks, opens the three redirection
// targets, launches the guardian, and returns synchronously. No
// liveness probe is performed for AlreadyRunning: a parseable
// pid-file is sufficient, regardless of whether that PID is still
// alive. Stale files are the operator's responsibility.
func StartDaemon(spec daemonspec.DaemonSpec) RunStatus {
	if pid, ok, err := pidfile.Read(spec.PIDFile); err != nil {
		return RunStatus{Kind: LaunchFailed, Err: fmt.Errorf("host: read pid-file: %w", err)}
	} else if ok {
		return RunStatus{Kind: AlreadyRunning, PID: pid}
	}

	files, err := redirect.Open(spec.StdoutPath, spec.StderrPath)
	if err != nil {
		var redirErr *redirect.Error
		if asRedirectError(err, &redirErr) {
			if redirErr.Stream == redirect.StreamStderr {
				return RunStatus{Kind: RedirStderrFailed, Err: err}
			}
			return RunStatus{Kind: RedirStdoutFailed, Err: err}
		}
		return RunStatus{Kind: RedirStdoutFailed, Err: err}
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		files.Close()
		return RunStatus{Kind: LaunchFailed, Err: fmt.Errorf("host: marshal daemon spec: %w", err)}
	}

	handle, err := procspec.Launch("guardian", payload, procspec.Options{
		ExtraFiles: files.ExtraFiles(),
		// The guardian calls setsid(2) on itself right after it
		// starts; it must not already be a process group leader, or
		// that call fails.
		NoNewProcessGroup: true,
	})
	// The host's own copies of the redirection files are no longer
	// needed once the guardian has its own duplicates via ExtraFiles;
	// close them in the parent regardless of launch outcome.
	files.Close()
	if err != nil {
		return RunStatus{Kind: ForkFailed, Err: err}
	}

	return RunStatus{Kind: Launched, PID: handle.PID()}
}

func asRedirectError(err error, target **redirect.Error) bool {
	re, ok := err.(*redirect.Error)
	if !ok {
		return false
	}
	*target = re
	return true
}
