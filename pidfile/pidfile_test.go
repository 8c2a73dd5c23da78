package pidfile_test

import (
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"github.com/mkasyanov/sentryd/pidfile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReadAbsentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.pid")
	_, ok, err := pidfile.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for absent pid-file")
	}
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := pidfile.Write(path, 12345); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	pid, ok, err := pidfile.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true after Write")
	}
	if pid != 12345 {
		t.Fatalf("expected pid=12345, got %d", pid)
	}
}

func TestReadTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := pidfile.Write(path, 99); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	pid, ok, err := pidfile.Read(path)
	if err != nil || !ok || pid != 99 {
		t.Fatalf("Read = (%d, %v, %v), want (99, true, nil)", pid, ok, err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := pidfile.Remove(path); err != nil {
		t.Fatalf("Remove on absent path failed: %v", err)
	}

	if err := pidfile.Write(path, 1); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := pidfile.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := pidfile.Remove(path); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
}

func TestAcquireExcludesSecondLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	lock1, ok, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first Acquire to succeed")
	}
	defer lock1.Release()

	_, ok, err = pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if ok {
		t.Fatalf("expected second Acquire to fail while first lock is held")
	}

	if err := lock1.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	lock2, ok, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected Acquire to succeed after release")
	}
	lock2.Release()
}
