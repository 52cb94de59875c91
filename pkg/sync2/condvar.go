package sync2

import "sync"

// Condvar is a condition variable that cooperates with whatever Mutex the
// caller passes to Wait, rather than owning one itself — matching the
// create-mutex-separately, create-condvar-separately API surface.
type Condvar struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// NewCondvar returns a condition variable with no waiters.
func NewCondvar() *Condvar { return &Condvar{} }

// Wait releases m, blocks until Signal wakes this waiter, then reacquires m
// before returning.
func (c *Condvar) Wait(m Mutex) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	m.Unlock()
	<-ch
	m.Lock()
}

// Signal wakes the longest-waiting blocked goroutine, if any. A no-op if
// nothing is waiting.
func (c *Condvar) Signal() {
	c.mu.Lock()
	if len(c.waiters) == 0 {
		c.mu.Unlock()
		return
	}
	ch := c.waiters[0]
	c.waiters = c.waiters[1:]
	c.mu.Unlock()
	close(ch)
}
