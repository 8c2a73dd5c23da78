// Program daemon turns a registered entry point into a supervised,
// detached process tree: host, guardian, and executor, per the CLI
// surface described in the external-interfaces design.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkasyanov/sentryd/daemonspec"
	_ "github.com/mkasyanov/sentryd/examples/noop"
	"github.com/mkasyanov/sentryd/host"
	"github.com/mkasyanov/sentryd/logging"
	"github.com/mkasyanov/sentryd/roledispatch"
)

var (
	logFile    string
	pidFile    string
	stdoutFile string
	stderrFile string
	entry      string
)

func main() {
	// Every re-exec'd role (guardian, executor, worker) starts life as
	// a fresh copy of this same binary. Before anything else — flag
	// parsing included — check whether we were launched as one of
	// those roles and, if so, dispatch directly into it.
	if code, handled := roledispatch.Dispatch(); handled {
		os.Exit(code)
	}

	logging.Init()

	rootCmd := &cobra.Command{
		Use:   "daemon",
		Short: "launch a supervised, detached process",
		RunE:  runHost,
	}

	rootCmd.Flags().StringVar(&logFile, "log", "", "path to a file holding a log level name (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&pidFile, "pid", "", "pid-file path")
	rootCmd.Flags().StringVar(&stdoutFile, "stdout", os.DevNull, "stdout redirection target")
	rootCmd.Flags().StringVar(&stderrFile, "stderr", os.DevNull, "stderr redirection target")
	rootCmd.Flags().StringVarP(&entry, "entry", "e", "", "entry identifier, \"module:symbol\"")
	rootCmd.MarkFlagRequired("pid")
	rootCmd.MarkFlagRequired("entry")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHost(cmd *cobra.Command, args []string) error {
	level, err := logging.LoadConfig(logFile)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	spec := daemonspec.DaemonSpec{
		PIDFile:    pidFile,
		Entry:      entry,
		StdoutPath: stdoutFile,
		StderrPath: stderrFile,
		LogLevel:   level,
	}

	status := host.StartDaemon(spec)
	switch status.Kind {
	case host.Launched:
		fmt.Printf("launched, pid=%d\n", status.PID)
		return nil
	case host.AlreadyRunning:
		fmt.Printf("already running, pid=%d\n", status.PID)
		return nil
	default:
		return fmt.Errorf("daemon: %s: %w", status.Kind, status.Err)
	}
}
