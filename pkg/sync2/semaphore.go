package sync2

import "sync"

// Semaphore is a counting semaphore: Down blocks while the count is zero,
// Up releases one unit and wakes a blocked waiter if any.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore returns a semaphore initialized with count available units.
func NewSemaphore(count int) *Semaphore {
	s := &Semaphore{count: count}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Down blocks until a unit is available, then takes it.
func (s *Semaphore) Down() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// Up releases one unit back to the semaphore.
func (s *Semaphore) Up() {
	s.mu.Lock()
	s.count++
	s.cond.Signal()
	s.mu.Unlock()
}
