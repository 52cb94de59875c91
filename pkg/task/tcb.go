// Package task implements process and task (thread) control blocks, the
// FIFO scheduler, and the goroutine-based processor that runs them.
//
// Each TCB owns exactly one goroutine for its lifetime, standing in for the
// real kernel's trap-frame context switch: scheduling a task means starting
// (or resuming) its goroutine, and Go's own runtime scheduler handles the
// actual interleaving. Spawn and Fork append each new task to the FIFO
// ready queue and start its goroutine at once, so tasks start in creation
// order; nothing on that path takes tasks back off the queue (only
// Processor.DrainReady does), and Yield does not pass through it: Yield
// only hints the Go scheduler to let another ready goroutine run.
package task

import (
	"runtime"
	"sync/atomic"

	"github.com/jacobsa/syncutil"
)

// Status enumerates a task's lifecycle state.
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusBlocked
	StatusZombie
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

var nextTaskID uint64

// TCB is one schedulable unit of execution.
type TCB struct {
	ID  uint64
	PCB *PCB

	mu            syncutil.InvariantMutex
	status        Status            // GUARDED_BY(mu)
	syscallCounts map[uint64]uint32 // GUARDED_BY(mu)
	startTimeUs   int64             // GUARDED_BY(mu)
}

func newTCB(pcb *PCB) *TCB {
	t := &TCB{
		ID:            atomic.AddUint64(&nextTaskID, 1) - 1,
		PCB:           pcb,
		syscallCounts: make(map[uint64]uint32),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *TCB) checkInvariants() {
	if t.status < StatusReady || t.status > StatusZombie {
		panic("task.TCB: status out of range")
	}
}

// Status returns the task's current lifecycle state.
func (t *TCB) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *TCB) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Yield voluntarily gives up the processor, hinting the Go runtime to let
// another ready goroutine run before this one resumes.
func (t *TCB) Yield() {
	t.setStatus(StatusReady)
	runtime.Gosched()
	t.setStatus(StatusRunning)
}

// markStarted records nowUs as this task's first-run timestamp, if one
// hasn't already been recorded.
func (t *TCB) markStarted(nowUs int64) {
	t.mu.Lock()
	if t.startTimeUs == 0 {
		t.startTimeUs = nowUs
	}
	t.mu.Unlock()
}

// StartTimeUs returns the microsecond timestamp this task first ran.
func (t *TCB) StartTimeUs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTimeUs
}

// RecordSyscall increments the call count for syscallID.
func (t *TCB) RecordSyscall(syscallID uint64) {
	t.mu.Lock()
	t.syscallCounts[syscallID]++
	t.mu.Unlock()
}

// SyscallCounts returns a snapshot of this task's per-syscall call counts.
func (t *TCB) SyscallCounts() map[uint64]uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[uint64]uint32, len(t.syscallCounts))
	for k, v := range t.syscallCounts {
		out[k] = v
	}
	return out
}
