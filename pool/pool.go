// Package pool implements the worker-pool manager: given a list of
// WorkerSpec, it keeps a fixed set of named worker processes alive
// under a restart/back-off policy, propagates shutdown to them via a
// shared quit signal, and optionally dumps its state to a debug file
// after every pass that changed something.
//
// The original worker-pool manager used a shared-memory boolean,
// writable from the executor and polled by every worker. Go has no
// portable shared-memory primitive across unrelated processes, but an
// inherited pipe serves the same purpose and is explicitly sanctioned
// as an alternative: the pool creates one pipe per run, keeps the
// write end, and passes the read end to every worker it spawns. Each
// worker watches its copy for EOF in a background goroutine. Closing
// the write end is therefore the single write to the "flag", owned
// exclusively by this package on the executor's behalf, preserving
// the single-writer/many-reader invariant without shared memory.
package pool

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkasyanov/sentryd/backoffpolicy"
	"github.com/mkasyanov/sentryd/notify"
	"github.com/mkasyanov/sentryd/procspec"
	"github.com/mkasyanov/sentryd/redirect"
	"github.com/mkasyanov/sentryd/sleeper"
)

// childProcess is the minimal surface the pool manager needs from a
// running worker. procspec.Handle satisfies it; tests substitute a
// fake to exercise the reap/spawn/back-off logic without real OS
// processes.
type childProcess interface {
	PID() int
}

// childLauncher starts a new worker process for spec, returning its
// handle and a channel that receives exactly one value — the exit
// code — when it terminates. quitReadFD, when non-nil, is passed to
// the child as an inherited file so it can watch for pool shutdown.
type childLauncher interface {
	Launch(spec WorkerSpec, quitReadFD *os.File) (childProcess, <-chan int, error)
}

// Options configures a pool run.
type Options struct {
	DebugPath       string        // optional; empty disables the debug dump
	CheckInterval   time.Duration // pass cadence
	RestartEnabled  bool
	RestartInterval time.Duration

	// Passes, when set, is bumped once per completed supervision pass.
	// Tests wait on a target pass count instead of sleeping a fixed
	// wall-clock duration or polling the debug-dump file.
	Passes *notify.Counter
}

// Launcher runs a worker-pool supervision loop. The zero value is not
// usable; construct with New.
type Launcher struct {
	launcher childLauncher
	opts     Options
}

// New constructs a Launcher that spawns real re-exec'd worker
// processes.
func New(opts Options) *Launcher {
	return &Launcher{launcher: realLauncher{}, opts: opts}
}

// newWithLauncher is used by tests to inject a fake childLauncher.
func newWithLauncher(l childLauncher, opts Options) *Launcher {
	return &Launcher{launcher: l, opts: opts}
}

// dupNameError is returned by Run when two specs share a name.
type dupNameError struct{ name string }

func (e *dupNameError) Error() string {
	return fmt.Sprintf("pool: duplicate worker name %q", e.name)
}

// Run validates specs, then enters the worker supervision loop,
// returning only once quit is requested or every slot is permanently
// terminal (restart disabled: once a slot has exited, it never
// becomes eligible to start again).
//
// quit reports whether the calling (executor) process's own
// cooperative-quit flag has been set; Run treats that the same as an
// externally requested pool shutdown.
func (l *Launcher) Run(specs []WorkerSpec, quit func() bool) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return &dupNameError{name: s.Name}
		}
		seen[s.Name] = true
	}

	states := make([]*WorkerState, len(specs))
	for i, s := range specs {
		states[i] = &WorkerState{Index: i, Spec: s}
	}

	quitR, quitW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("pool: create shared quit pipe: %w", err)
	}
	var closeOnce sync.Once
	closeQuitPipe := func() { closeOnce.Do(func() { quitW.Close() }) }
	defer closeQuitPipe()

	for {
		if quit() {
			slog.Debug("pool: bail out, quit requested")
			break
		}

		changed := l.reapPass(states)
		changed = l.spawnPass(states, quitR) || changed

		if changed && l.opts.DebugPath != "" {
			l.writeDebugDump(states)
		}

		if l.opts.Passes != nil {
			l.opts.Passes.Bump()
		}

		if allTerminal(states) {
			slog.Debug("pool: all slots permanently terminal")
			break
		}

		sleeper.Sleep(l.opts.CheckInterval, quit)
	}

	closeQuitPipe()
	quitR.Close()

	for _, s := range states {
		if s.child == nil {
			continue
		}
		slog.Debug("pool: waiting for worker to finish", "name", s.Spec.Name, "pid", s.child.PID())
		ec := <-s.exitedCh
		l.recordExit(s, ec)
	}

	slog.Debug("pool: exit")
	return nil
}

func (l *Launcher) reapPass(states []*WorkerState) bool {
	changed := false
	for _, s := range states {
		if s.child == nil {
			continue
		}
		select {
		case ec := <-s.exitedCh:
			l.recordExit(s, ec)
			changed = true
		default:
		}
	}
	return changed
}

// recordExit appends a HistoryRecord for the slot's just-exited child
// and computes the next back-off window: restart is scheduled
// whenever restart is enabled, regardless of exit code, so a worker
// killed directly (scenario S6) is respawned the same as one that
// failed on its own.
func (l *Launcher) recordExit(s *WorkerState, exitCode int) {
	now := time.Now()
	pid := s.child.PID()
	slog.Debug("pool: worker terminated", "name", s.Spec.Name, "pid", pid, "exit_code", exitCode)

	start := s.StartTime
	s.History = append(s.History, HistoryRecord{
		PID:       pid,
		ExitCode:  exitCode,
		StartTime: start,
		EndTime:   &now,
	})
	s.child = nil
	s.exitedCh = nil
	s.StartTime = nil

	if l.opts.RestartEnabled {
		next := backoffpolicy.NextAttempt(l.opts.RestartInterval, now)
		s.NextAllowedStart = &next
	} else {
		s.NextAllowedStart = nil
	}
}

func (l *Launcher) spawnPass(states []*WorkerState, quitR *os.File) bool {
	changed := false
	now := time.Now()
	for _, s := range states {
		if !s.CanStart(now) {
			continue
		}
		child, exitedCh, err := l.launcher.Launch(s.Spec, quitR)
		if err != nil {
			slog.Error("pool: failed to launch worker", "name", s.Spec.Name, "error", err)
			continue
		}
		s.child = child
		s.exitedCh = exitedCh
		start := time.Now()
		s.StartTime = &start
		changed = true
		slog.Debug("pool: worker created", "name", s.Spec.Name, "pid", child.PID())
	}
	return changed
}

func allTerminal(states []*WorkerState) bool {
	for _, s := range states {
		if s.child != nil {
			return false
		}
		if len(s.History) == 0 {
			return false
		}
		if s.NextAllowedStart != nil {
			return false
		}
	}
	return true
}

func (l *Launcher) writeDebugDump(states []*WorkerState) {
	passID := uuid.New().String()
	dump := newDebugDump(time.Now(), states)
	data, err := json.Marshal(dump)
	if err != nil {
		slog.Error("pool: failed to marshal debug dump", "pass", passID, "error", err)
		return
	}
	tmp := l.opts.DebugPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("pool: failed to write debug dump", "pass", passID, "error", err)
		return
	}
	if err := os.Rename(tmp, l.opts.DebugPath); err != nil {
		slog.Error("pool: failed to rename debug dump into place", "pass", passID, "error", err)
	}
	slog.Debug("pool: debug info dumped", "pass", passID)
}

// realLauncher spawns actual re-exec'd worker processes.
type realLauncher struct{}

func (realLauncher) Launch(spec WorkerSpec, quitR *os.File) (childProcess, <-chan int, error) {
	files, err := redirect.Open(spec.StdoutPath, spec.StderrPath)
	if err != nil {
		return nil, nil, fmt.Errorf("pool: open redirection for worker %q: %w", spec.Name, err)
	}
	defer files.Close()

	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("pool: marshal worker spec %q: %w", spec.Name, err)
	}

	extra := append(files.ExtraFiles(), quitR)
	handle, err := procspec.Launch("worker", payload, procspec.Options{ExtraFiles: extra})
	if err != nil {
		return nil, nil, fmt.Errorf("pool: launch worker %q: %w", spec.Name, err)
	}

	exitedCh := make(chan int, 1)
	go func() {
		exitedCh <- handle.Wait()
	}()

	return handle, exitedCh, nil
}
