// Package notify provides a monotonically increasing counter with a
// blocking wait for a target value, built on the same cond-broadcast-
// on-state-change idiom as a buffered output stream's "wait for more
// data" reader. The worker-pool manager bumps its counter once per
// completed supervision pass; tests wait on a target count instead of
// polling the debug-dump file or sleeping a fixed duration.
package notify

import "sync"

// Counter is a thread-safe monotonically increasing counter with a
// blocking wait for a target value.
type Counter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewCounter creates a ready-to-use Counter starting at 0.
func NewCounter() *Counter {
	c := &Counter{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Bump increments the counter and wakes any waiters.
func (c *Counter) Bump() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	c.cond.Broadcast()
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitAtLeast blocks until the counter reaches at least target.
func (c *Counter) WaitAtLeast(target int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.count < target {
		c.cond.Wait()
	}
}
