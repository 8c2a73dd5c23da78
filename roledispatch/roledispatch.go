// Package roledispatch decodes the role and payload a re-exec'd
// process inherits via environment variables and runs the
// corresponding role entry point. It exists as its own package,
// rather than living inline in cmd/daemon, so that tests exercising
// real process launches can re-use the exact same dispatch a built
// daemon binary performs: a test binary's TestMain checks
// procspec.RoleEnv before handing control to the test runner, exactly
// as cmd/daemon's main does before flag parsing, which makes
// `go test` binaries able to stand in for the daemon binary in
// os.Executable()-based re-exec tests.
package roledispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mkasyanov/sentryd/daemonspec"
	"github.com/mkasyanov/sentryd/executor"
	"github.com/mkasyanov/sentryd/guardian"
	"github.com/mkasyanov/sentryd/pool"
	"github.com/mkasyanov/sentryd/procspec"
	"github.com/mkasyanov/sentryd/worker"
)

// Dispatch reads role from procspec.RoleEnv; if unset, it returns
// false and the caller should proceed with its normal entry point
// (CLI parsing, or the test runner). If set, it decodes the payload
// from procspec.PayloadEnv, runs the named role, and returns its exit
// code alongside true.
func Dispatch() (code int, handled bool) {
	role := os.Getenv(procspec.RoleEnv)
	if role == "" {
		return 0, false
	}

	payload := []byte(os.Getenv(procspec.PayloadEnv))

	switch role {
	case "guardian":
		var spec daemonspec.DaemonSpec
		if err := json.Unmarshal(payload, &spec); err != nil {
			fmt.Fprintf(os.Stderr, "roledispatch: decode guardian spec: %v\n", err)
			return 1, true
		}
		return guardian.Run(spec), true

	case "executor":
		var spec daemonspec.DaemonSpec
		if err := json.Unmarshal(payload, &spec); err != nil {
			fmt.Fprintf(os.Stderr, "roledispatch: decode executor spec: %v\n", err)
			return 1, true
		}
		guardianPID, _ := strconv.Atoi(os.Getenv("SENTRYD_GUARDIAN_PID"))
		return executor.Run(spec, guardianPID), true

	case "worker":
		var spec pool.WorkerSpec
		if err := json.Unmarshal(payload, &spec); err != nil {
			fmt.Fprintf(os.Stderr, "roledispatch: decode worker spec: %v\n", err)
			return 1, true
		}
		return worker.Run(spec), true

	default:
		fmt.Fprintf(os.Stderr, "roledispatch: unknown role %q\n", role)
		return 1, true
	}
}
