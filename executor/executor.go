// Package executor implements the executor role: the process in
// which user-supplied entry code actually runs, forked from (in our
// re-exec world: launched by) the guardian.
package executor

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkasyanov/sentryd/daemonspec"
	"github.com/mkasyanov/sentryd/logging"
	"github.com/mkasyanov/sentryd/registry"
	"github.com/mkasyanov/sentryd/rolectx"
)

// Run executes the executor sequence: install the termination
// handler, resolve the entry identifier, invoke it with the spec's
// argument map and a quit callback, and map the outcome to an exit
// code the guardian's restart policy interprets. guardianPID is the
// parent guardian's PID, needed so the executor's termination handler
// can SIGTERM it exactly once on shutdown.
func Run(spec daemonspec.DaemonSpec, guardianPID int) int {
	logging.Apply(logging.Config{Level: spec.LogLevel}, "executor")

	ctx := rolectx.New(rolectx.RoleExecutor)
	ctx.GuardianPID = guardianPID

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		// External SIGTERM on the executor: set quit flag, SIGTERM
		// the guardian once so it does not restart, then let user
		// code observe quit through the callback and return on its
		// own schedule.
		ctx.RequestQuit()
		ctx.KillGuardianOnce()
	}()

	fn, err := registry.Resolve(spec.Entry)
	if err != nil {
		slog.Error("executor: failed to resolve entry", "entry", spec.Entry, "error", err)
		return 1
	}

	runErr := invoke(fn, spec.Args, ctx.QuitRequested)
	if runErr == nil {
		slog.Debug("executor: entry succeeded", "entry", spec.Entry)
		return 0
	}

	slog.Error("executor: entry failed", "entry", spec.Entry, "error", runErr)
	invokeExceptionHook(spec.ExceptionEntry, runErr)
	return 1
}

func invoke(fn registry.EntryFunc, args map[string]any, quit func() bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(args, quit)
}

// invokeExceptionHook runs the user's optional exception handler on a
// best-effort basis: its own failures are logged and swallowed, never
// allowed to change the executor's exit code.
func invokeExceptionHook(entryName string, cause error) {
	if entryName == "" {
		return
	}
	fn, err := registry.Resolve(entryName)
	if err != nil {
		slog.Warn("executor: exception hook not resolvable", "entry", entryName, "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("executor: exception hook panicked", "entry", entryName, "panic", r)
		}
	}()
	if err := fn(map[string]any{"error": cause.Error()}, func() bool { return false }); err != nil {
		slog.Warn("executor: exception hook failed", "entry", entryName, "error", err)
	}
}
