//go:build linux || darwin

package redirect

import "syscall"

// dup2AndClose duplicates oldFD onto newFD, then closes oldFD (unless
// it already was newFD, which happens only in tests that hand-wire
// fds directly).
func dup2AndClose(oldFD, newFD int) error {
	if oldFD == newFD {
		return nil
	}
	if err := syscall.Dup2(oldFD, newFD); err != nil {
		return err
	}
	return syscall.Close(oldFD)
}
