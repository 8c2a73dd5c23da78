// Package daemonspec defines DaemonSpec, the value a caller builds to
// describe one daemon instance and that travels, JSON-encoded, from
// the host across every re-exec boundary down to the executor.
package daemonspec

import "time"

// DaemonSpec describes a single daemon instance: its pid-file
// identity, the entry point to run, and its restart policy.
// Constructed in the host, consumed once by the guardian (which
// forwards it unchanged to the executor it launches).
type DaemonSpec struct {
	PIDFile    string         `json:"pid_file"`
	Entry      string         `json:"entry"`
	Args       map[string]any `json:"args"`
	StdoutPath string         `json:"stdout_path"`
	StderrPath string         `json:"stderr_path"`
	LogLevel   string         `json:"log_level"`

	// RestartInterval, when non-nil, is the back-off delay the
	// guardian waits before relaunching the executor after it exits
	// non-zero. A nil value disables restart entirely.
	RestartInterval *time.Duration `json:"restart_interval"`

	// ExceptionEntry optionally names a registry entry invoked,
	// best-effort, when the executor's user code fails. Its own
	// failures are logged and otherwise ignored.
	ExceptionEntry string `json:"exception_entry,omitempty"`
}
