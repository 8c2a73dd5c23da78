// Package guardian implements the guardian role: the detached session
// leader that owns the user-facing pid-file and runs the executor
// supervision loop — fork executor, wait for it, apply the restart
// policy — for as long as the daemon instance lives.
package guardian

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mkasyanov/sentryd/backoffpolicy"
	"github.com/mkasyanov/sentryd/daemonspec"
	"github.com/mkasyanov/sentryd/logging"
	"github.com/mkasyanov/sentryd/pidfile"
	"github.com/mkasyanov/sentryd/procspec"
	"github.com/mkasyanov/sentryd/redirect"
	"github.com/mkasyanov/sentryd/rolectx"
	"github.com/mkasyanov/sentryd/sleeper"
)

// Inherited fd numbers for the redirection files the host opened and
// handed off via ExtraFiles.
const (
	fdStdout = 3
	fdStderr = 4
	fdStdin  = 5
)

// Run executes the guardian sequence: adopt the inherited redirection
// fds, become session leader, clear umask, write the pid-file,
// install the termination handler, then run the executor supervision
// loop until either the executor exits cleanly, restart is disabled,
// or shutdown is requested. It returns the process exit code.
func Run(spec daemonspec.DaemonSpec) int {
	if err := redirect.Adopt(fdStdout, fdStderr, fdStdin); err != nil {
		// Nothing has been logged anywhere useful yet; stderr is our
		// only remaining channel.
		fmt.Fprintf(os.Stderr, "guardian: failed to adopt redirected stdio: %v\n", err)
		return 1
	}

	if err := becomeSessionLeader(); err != nil {
		fmt.Fprintf(os.Stderr, "guardian: failed to become session leader: %v\n", err)
		return 1
	}
	syscall.Umask(0)

	logging.Apply(logging.Config{Level: spec.LogLevel}, "guardian")

	lock, acquired, err := pidfile.Acquire(spec.PIDFile)
	if err != nil {
		slog.Error("guardian: failed to acquire pid-file lock", "error", err)
		return 1
	}
	if !acquired {
		slog.Error("guardian: another guardian already owns this pid-file", "pid_file", spec.PIDFile)
		return 1
	}
	defer lock.Release()

	if err := pidfile.Write(spec.PIDFile, os.Getpid()); err != nil {
		slog.Error("guardian: failed to write pid-file", "error", err)
		return 1
	}
	defer pidfile.Remove(spec.PIDFile)

	ctx := rolectx.New(rolectx.RoleGuardian)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		for range sigCh {
			// If the handler fires while a child is alive, SIGTERM it
			// exactly once; the loop then falls through on the
			// child's exit and terminates because quit is set.
			ctx.RequestQuit()
			ctx.KillExecutorOnce()
		}
	}()

	runExecutorSupervisionLoop(spec, ctx)

	slog.Debug("guardian: exit")
	return 0
}

func runExecutorSupervisionLoop(spec daemonspec.DaemonSpec, ctx *rolectx.Context) {
	payload, err := json.Marshal(spec)
	if err != nil {
		slog.Error("guardian: failed to marshal daemon spec", "error", err)
		return
	}

	for {
		if ctx.QuitRequested() {
			slog.Debug("guardian: bail out, quit requested")
			return
		}

		attempt := uuid.New().String()
		handle, err := procspec.Launch("executor", payload, procspec.Options{
			Env: []string{"SENTRYD_GUARDIAN_PID=" + itoa(os.Getpid())},
		})
		if err != nil {
			slog.Error("guardian: failed to launch executor", "attempt", attempt, "error", err)
			return
		}
		ctx.ExecutorPID = handle.PID()
		slog.Debug("guardian: executor launched", "attempt", attempt, "pid", handle.PID())

		exitCode := handle.Wait()
		ctx.ExecutorPID = 0
		slog.Debug("guardian: executor exited", "attempt", attempt, "exit_code", exitCode)

		if exitCode == 0 {
			return
		}
		if spec.RestartInterval == nil {
			slog.Debug("guardian: restart disabled, not relaunching executor")
			return
		}
		nextAttempt := backoffpolicy.NextAttempt(*spec.RestartInterval, time.Now())
		sleeper.Sleep(time.Until(nextAttempt), ctx.QuitRequested)
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
