// Program daemonctl sends a shutdown request to a daemon launched by
// the daemon command, identified by its pid-file. There is no RPC
// surface in this toolkit: control is carried entirely by POSIX
// signals and the filesystem, so daemonctl resolves a pid-file to a
// PID and either delivers SIGTERM to it (stop) or prints it (status).
package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkasyanov/sentryd/logging"
	"github.com/mkasyanov/sentryd/pidfile"
)

func main() {
	logging.Init()

	stopCmd := &cobra.Command{
		Use:   "stop <pid-file>",
		Short: "send SIGTERM to the guardian named by a pid-file",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdStop,
	}

	statusCmd := &cobra.Command{
		Use:   "status <pid-file>",
		Short: "report whether a pid-file is present and the pid it holds (no liveness check)",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdStatus,
	}

	rootCmd := &cobra.Command{
		Use:   "daemonctl",
		Short: "control a daemon by its pid-file",
	}
	rootCmd.AddCommand(stopCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func cmdStop(cmd *cobra.Command, args []string) error {
	pid, ok, err := pidfile.Read(args[0])
	if err != nil {
		return fmt.Errorf("daemonctl: %w", err)
	}
	if !ok {
		return fmt.Errorf("daemonctl: %s: not running", args[0])
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("daemonctl: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("daemonctl: signal pid %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to pid=%d\n", pid)
	return nil
}

func cmdStatus(cmd *cobra.Command, args []string) error {
	pid, ok, err := pidfile.Read(args[0])
	if err != nil {
		return fmt.Errorf("daemonctl: %w", err)
	}
	if !ok {
		fmt.Println("not running")
		return nil
	}
	fmt.Printf("pid-file present, pid=%d\n", pid)
	return nil
}
