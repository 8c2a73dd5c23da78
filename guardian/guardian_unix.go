//go:build linux || darwin

package guardian

import (
	"fmt"
	"syscall"
)

// becomeSessionLeader detaches the guardian from any controlling
// terminal by starting a new session. Must run after Adopt has
// already redirected stdio, matching the spec's ordering: dup2 first,
// then become session leader.
func becomeSessionLeader() error {
	if _, err := syscall.Setsid(); err != nil {
		return fmt.Errorf("setsid: %w", err)
	}
	return nil
}
