// Package pidfile implements the PID-file primitives shared by every
// role: a text file holding the owning process's decimal PID,
// followed by a newline. Creation and deletion of a given pid-file
// path are owned exclusively by the process whose PID it holds
// (Invariant 1); every other reader treats the file as advisory only.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// Read parses the PID stored at path. It reports ok=false, with no
// error, if the file does not exist — matching the spec's "absence ≡
// not running" rule for admission purposes. A present-but-unparseable
// file is also reported as ok=false; callers that need to distinguish
// the two should stat the path themselves first.
func Read(path string) (pid int, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("pidfile: read %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	parsed, convErr := strconv.Atoi(text)
	if convErr != nil {
		return 0, false, nil
	}
	return parsed, true, nil
}

// Write creates path containing pid followed by a newline, truncating
// any previous contents. The file is written in place, not replaced
// atomically.
func Write(path string, pid int) error {
	content := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("pidfile: write %s: %w", path, err)
	}
	return nil
}

// Remove deletes path. It is idempotent: removing a path that does
// not exist is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove %s: %w", path, err)
	}
	return nil
}

// Lock is an advisory file lock held alongside a pid-file, acquired
// via Acquire. Release drops the lock; it does not remove the
// pid-file itself.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes a non-blocking advisory lock on path+".lock". This
// hardens Invariant 2 (at most one guardian per pid-file path) beyond
// the synchronous read-before-fork check the host performs: even if
// two hosts race past that check, only one guardian will win the
// lock. It reports ok=false, with no error, when another process
// already holds the lock; the guardian logs that case and exits
// non-zero.
func Acquire(path string) (*Lock, bool, error) {
	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("pidfile: acquire lock for %s: %w", path, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{fl: fl}, true, nil
}

// Release drops the advisory lock. Safe to call once; further calls
// are no-ops.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("pidfile: release lock: %w", err)
	}
	return nil
}
