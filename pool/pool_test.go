package pool

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestMain for this package's test binary lives in pool_real_test.go
// (package pool_test): a single binary may only define it once, and
// that file's version must dispatch into the worker role for the
// subprocess-backed tests in this directory to work at all.

type fakeChild struct{ pid int }

func (f *fakeChild) PID() int { return f.pid }

// fakeLauncher lets tests drive worker lifecycles without spawning
// real OS processes: each Launch call hands back a channel the test
// can push an exit code into whenever it wants that slot's "child" to
// terminate.
type fakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	exitChs map[string]chan int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{exitChs: make(map[string]chan int)}
}

func (f *fakeLauncher) Launch(spec WorkerSpec, quitR *os.File) (childProcess, <-chan int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	ch := make(chan int, 1)
	f.exitChs[spec.Name] = ch
	return &fakeChild{pid: f.nextPID}, ch, nil
}

func (f *fakeLauncher) exit(name string, code int) {
	f.mu.Lock()
	ch := f.exitChs[name]
	f.mu.Unlock()
	ch <- code
}

func (f *fakeLauncher) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextPID
}

func TestRunRejectsDuplicateNames(t *testing.T) {
	fl := newFakeLauncher()
	l := newWithLauncher(fl, Options{CheckInterval: time.Millisecond})

	specs := []WorkerSpec{{Name: "x"}, {Name: "x"}}
	err := l.Run(specs, func() bool { return true })
	if err == nil {
		t.Fatalf("expected error for duplicate worker names")
	}
	if fl.launchCount() != 0 {
		t.Fatalf("expected no worker spawned on duplicate-name rejection, got %d", fl.launchCount())
	}
}

func TestRestartDisabledCleanExitNeverRelaunches(t *testing.T) {
	fl := newFakeLauncher()
	l := newWithLauncher(fl, Options{
		CheckInterval:  5 * time.Millisecond,
		RestartEnabled: false,
	})

	var quit atomic.Bool
	done := make(chan error, 1)
	go func() { done <- l.Run([]WorkerSpec{{Name: "a"}}, quit.Load) }()

	waitForLaunches(t, fl, 1)
	fl.exit("a", 0)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after the only slot exited with restart disabled")
	}
	if fl.launchCount() != 1 {
		t.Fatalf("expected exactly one launch, got %d", fl.launchCount())
	}
}

// TestDirectSIGTERMStillRestarts is scenario S6: a worker killed
// directly (here simulated as a clean exit, since from the pool's
// point of view a worker's own SIGTERM handler just makes it return)
// is respawned after restart_interval the same as any other exit —
// the exit code plays no part in the decision.
func TestDirectSIGTERMStillRestarts(t *testing.T) {
	fl := newFakeLauncher()
	l := newWithLauncher(fl, Options{
		CheckInterval:   5 * time.Millisecond,
		RestartEnabled:  true,
		RestartInterval: 20 * time.Millisecond,
	})

	var quit atomic.Bool
	defer quit.Store(true)
	done := make(chan error, 1)
	go func() { done <- l.Run([]WorkerSpec{{Name: "a"}}, quit.Load) }()

	waitForLaunches(t, fl, 1)
	fl.exit("a", 0)
	waitForLaunches(t, fl, 2)

	quit.Store(true)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after quit was requested")
	}
}

func TestFailedExitSchedulesBackoffThenRestarts(t *testing.T) {
	fl := newFakeLauncher()
	l := newWithLauncher(fl, Options{
		CheckInterval:   5 * time.Millisecond,
		RestartEnabled:  true,
		RestartInterval: 20 * time.Millisecond,
	})

	var quit atomic.Bool
	defer quit.Store(true)
	done := make(chan error, 1)
	go func() { done <- l.Run([]WorkerSpec{{Name: "a"}}, quit.Load) }()

	waitForLaunches(t, fl, 1)
	fl.exit("a", 1)
	waitForLaunches(t, fl, 2)

	quit.Store(true)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after quit was requested")
	}
}

func TestRestartDisabledNeverRelaunches(t *testing.T) {
	fl := newFakeLauncher()
	l := newWithLauncher(fl, Options{
		CheckInterval:  5 * time.Millisecond,
		RestartEnabled: false,
	})

	var quit atomic.Bool
	done := make(chan error, 1)
	go func() { done <- l.Run([]WorkerSpec{{Name: "a"}}, quit.Load) }()

	waitForLaunches(t, fl, 1)
	fl.exit("a", 1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit once the only slot became permanently terminal")
	}
	if fl.launchCount() != 1 {
		t.Fatalf("expected no restart with RestartEnabled=false, got %d launches", fl.launchCount())
	}
}

func TestShutdownJoinsEachSlotsOwnHandle(t *testing.T) {
	fl := newFakeLauncher()
	l := newWithLauncher(fl, Options{CheckInterval: 5 * time.Millisecond})

	var quit atomic.Bool
	done := make(chan error, 1)
	specs := []WorkerSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	go func() { done <- l.Run(specs, quit.Load) }()

	waitForLaunches(t, fl, 3)
	quit.Store(true)

	// Exit the slots out of spawn order; a correct shutdown join must
	// wait for every slot's own handle, not a reused loop variable
	// from the spawn pass (the upstream bug this repository fixes).
	time.Sleep(20 * time.Millisecond)
	fl.exit("c", 0)
	fl.exit("a", 0)
	fl.exit("b", 0)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after all slots exited during shutdown")
	}
}

func waitForLaunches(t *testing.T, fl *fakeLauncher, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fl.launchCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d launches, got %d", n, fl.launchCount())
}

