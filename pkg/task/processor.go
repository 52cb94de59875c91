package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/timeutil"
)

// Program is the body a task's goroutine runs. It receives the TCB so it
// can call Yield, record syscalls, and read its own process's state.
type Program func(t *TCB)

// Processor dispatches ready tasks from a Scheduler onto their own
// goroutines and tracks how many are currently executing.
type Processor struct {
	sched   *Scheduler
	clock   timeutil.Clock
	running int64

	wg sync.WaitGroup
}

// NewProcessor returns a processor pulling from sched, using clock for
// first-run timestamps.
func NewProcessor(sched *Scheduler, clock timeutil.Clock) *Processor {
	return &Processor{sched: sched, clock: clock}
}

// Dispatch starts t's goroutine running prog. The call returns immediately;
// use Wait to block until every dispatched task has finished.
func (p *Processor) Dispatch(t *TCB, prog Program) {
	t.markStarted(p.clock.Now().UnixMicro())
	t.setStatus(StatusRunning)
	atomic.AddInt64(&p.running, 1)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer atomic.AddInt64(&p.running, -1)

		_, report := reqtrace.StartSpan(context.Background(), fmt.Sprintf("task %d", t.ID))
		defer report(nil)

		prog(t)
	}()
}

// RunningCount returns how many tasks are currently executing.
func (p *Processor) RunningCount() int64 { return atomic.LoadInt64(&p.running) }

// Now returns the current time in microseconds, per the processor's clock.
func (p *Processor) Now() int64 { return p.clock.Now().UnixMicro() }

// Wait blocks until every task ever Dispatch-ed has returned from its
// Program.
func (p *Processor) Wait() { p.wg.Wait() }

// DrainReady dispatches every currently-ready task from the scheduler,
// running each with prog.
func (p *Processor) DrainReady(prog Program) {
	for {
		t := p.sched.Fetch()
		if t == nil {
			return
		}
		p.Dispatch(t, prog)
	}
}
