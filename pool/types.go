package pool

import "time"

// WorkerSpec describes one named worker slot, constructed by the
// executor and consumed by the worker-pool manager. Worker names must
// be pairwise distinct within one pool (Invariant 3).
type WorkerSpec struct {
	PIDFile    string         `json:"pid_file"`
	Entry      string         `json:"entry"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args"`
	StdoutPath string         `json:"stdout_path"`
	StderrPath string         `json:"stderr_path"`
	LogLevel   string         `json:"log_level"`
}

// HistoryRecord is appended whenever a worker child exits.
type HistoryRecord struct {
	PID       int        `json:"pid"`
	ExitCode  int        `json:"exit_code"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// WorkerState is the pool manager's live view of one slot. It is
// created at pool start and lives for the pool's lifetime; the slot's
// child handle comes and goes as the worker restarts (Invariant 4: a
// live child handle exists iff exactly one worker process currently
// exists for that slot).
type WorkerState struct {
	Index            int
	Spec             WorkerSpec
	StartTime        *time.Time
	NextAllowedStart *time.Time
	History          []HistoryRecord

	child    childProcess
	exitedCh <-chan int
}

// CanStart reports whether this slot is eligible to spawn a new
// worker: no live child, and either it has never run or its back-off
// window has elapsed.
func (w *WorkerState) CanStart(now time.Time) bool {
	if w.child != nil {
		return false
	}
	if len(w.History) == 0 {
		return true
	}
	return w.NextAllowedStart != nil && !now.Before(*w.NextAllowedStart)
}

// Running reports whether a child is currently attached to this slot.
func (w *WorkerState) Running() bool {
	return w.child != nil
}

// PID returns the live child's PID, or 0 if the slot is idle.
func (w *WorkerState) PID() int {
	if w.child == nil {
		return 0
	}
	return w.child.PID()
}

// dumpTimestamp formats t as "YYYY-MM-DD HH:MM:SS.ffffff", or returns
// nil for a nil t, matching the debug-dump file format.
func dumpTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02 15:04:05.000000")
	return &s
}

// historyJSON is the wire shape of HistoryRecord for the debug dump.
type historyJSON struct {
	PID       int     `json:"pid"`
	ExitCode  int     `json:"exit_code"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

// workerInfoJSON is the wire shape of one WorkerState entry in the
// debug dump, matching the schema in the external-interfaces section
// field for field.
type workerInfoJSON struct {
	Index          int           `json:"index"`
	Entry          string        `json:"entry"`
	Name           string        `json:"name"`
	StdoutFilename *string       `json:"stdout_filename"`
	StderrFilename *string       `json:"stderr_filename"`
	PID            *int          `json:"pid"`
	StartAfter     *string       `json:"start_after"`
	StartTime      *string       `json:"start_time"`
	History        []historyJSON `json:"history"`
}

// DebugDump is the top-level JSON document written after any
// changeful pass, when a debug path is configured.
type DebugDump struct {
	UpdatedAt      string           `json:"updated_at"`
	WorkerInfoList []workerInfoJSON `json:"worker_info_list"`
}

func newDebugDump(now time.Time, states []*WorkerState) DebugDump {
	list := make([]workerInfoJSON, 0, len(states))
	for _, s := range states {
		var pid *int
		if s.child != nil {
			p := s.child.PID()
			pid = &p
		}
		hist := make([]historyJSON, 0, len(s.History))
		for _, h := range s.History {
			hist = append(hist, historyJSON{
				PID:       h.PID,
				ExitCode:  h.ExitCode,
				StartTime: dumpTimestamp(h.StartTime),
				EndTime:   dumpTimestamp(h.EndTime),
			})
		}
		list = append(list, workerInfoJSON{
			Index:          s.Index,
			Entry:          s.Spec.Entry,
			Name:           s.Spec.Name,
			StdoutFilename: strPtr(s.Spec.StdoutPath),
			StderrFilename: strPtr(s.Spec.StderrPath),
			PID:            pid,
			StartAfter:     dumpTimestamp(s.NextAllowedStart),
			StartTime:      dumpTimestamp(s.StartTime),
			History:        hist,
		})
	}
	ts := now.UTC().Format("2006-01-02 15:04:05.000000")
	return DebugDump{UpdatedAt: ts, WorkerInfoList: list}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
