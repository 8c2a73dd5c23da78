// Package worker implements the per-child worker entry point: the
// sequence a spawned worker process runs through before, during, and
// after invoking user code.
package worker

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/mkasyanov/sentryd/logging"
	"github.com/mkasyanov/sentryd/pidfile"
	"github.com/mkasyanov/sentryd/pool"
	"github.com/mkasyanov/sentryd/redirect"
	"github.com/mkasyanov/sentryd/registry"
)

// Inherited fd numbers, fixed by the order the pool manager's
// launcher passes ExtraFiles in: redirection files first, then the
// shared pool quit-pipe read end.
const (
	fdStdout   = 3
	fdStderr   = 4
	fdStdin    = 5
	fdQuitPipe = 6
)

// Run executes the worker sequence described for a spawned pool
// child: apply logging, claim the pid-file, redirect stdio, install a
// termination handler, watch the shared pool quit-pipe, resolve and
// invoke the user entry, and unconditionally release the pid-file on
// the way out. It returns the process exit code; callers are expected
// to os.Exit with it.
func Run(spec pool.WorkerSpec) int {
	logging.Apply(logging.Config{Level: spec.LogLevel}, "worker")
	logger := slog.With("worker", spec.Name)

	if err := pidfile.Write(spec.PIDFile, os.Getpid()); err != nil {
		logger.Error("failed to write pid-file", "error", err)
		return 1
	}
	defer pidfile.Remove(spec.PIDFile)

	if err := redirect.Adopt(fdStdout, fdStderr, fdStdin); err != nil {
		logger.Error("failed to adopt redirected stdio, worker terminated", "error", err)
		return 1
	}

	// The local flag is set only by this worker's own SIGTERM handler
	// (scenario S6: a direct SIGTERM to one worker must not affect its
	// siblings). sharedQuit mirrors the pool-wide flag, which this
	// process only ever reads: the executor is the flag's sole writer,
	// expressed here as closing its end of the inherited pipe.
	var localQuit atomic.Bool
	var sharedQuit atomic.Bool

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		localQuit.Store(true)
	}()

	go watchSharedQuit(fdQuitPipe, &sharedQuit)

	quit := func() bool {
		return localQuit.Load() || sharedQuit.Load()
	}

	fn, err := registry.Resolve(spec.Entry)
	if err != nil {
		logger.Error("failed to resolve entry", "entry", spec.Entry, "error", err)
		return 1
	}

	if err := invoke(fn, spec.Args, quit); err != nil {
		logger.Error("entry failed", "entry", spec.Entry, "error", err)
		return 1
	}

	logger.Debug("entry succeeded", "entry", spec.Entry)
	return 0
}

// invoke calls fn, converting a panic in user code into an error so
// Run can report it as exit 1 like any other failure, rather than
// crashing the worker process.
func invoke(fn registry.EntryFunc, args map[string]any, quit func() bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(args, quit)
}

// watchSharedQuit blocks reading fd until it observes EOF (the
// executor closed its write end) or an error, then sets flag. Nothing
// is ever written to this pipe; its only signal is closure.
func watchSharedQuit(fd int, flag *atomic.Bool) {
	f := os.NewFile(uintptr(fd), "pool-quit-pipe")
	defer f.Close()

	buf := make([]byte, 1)
	for {
		_, err := f.Read(buf)
		if err != nil {
			if err != io.EOF {
				slog.Debug("worker: shared quit pipe read error", "error", err)
			}
			flag.Store(true)
			return
		}
	}
}
