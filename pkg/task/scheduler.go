package task

import "sync"

// Scheduler is a FIFO ready queue of runnable TCBs.
type Scheduler struct {
	mu    sync.Mutex
	ready []*TCB
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler { return &Scheduler{} }

// Enqueue marks t ready and appends it to the back of the queue.
func (s *Scheduler) Enqueue(t *TCB) {
	t.setStatus(StatusReady)
	s.mu.Lock()
	s.ready = append(s.ready, t)
	s.mu.Unlock()
}

// Fetch pops the task at the front of the queue, or returns nil if empty.
func (s *Scheduler) Fetch() *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ready) == 0 {
		return nil
	}
	t := s.ready[0]
	s.ready = s.ready[1:]
	return t
}

// Len reports how many tasks are currently waiting to run.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}
