package task

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/easykernel/easykernel/pkg/mm"
	"github.com/easykernel/easykernel/pkg/pagetable"
	"github.com/easykernel/easykernel/pkg/vfs"
	"github.com/jacobsa/timeutil"
)

var nextPID int64

func allocPID() int64 { return atomic.AddInt64(&nextPID, 1) - 1 }

// Manager owns the scheduler and processor and is the entry point for
// process lifecycle operations: spawning a fresh process from a loaded
// program, forking, exiting, and reaping exited children via Waitpid.
type Manager struct {
	sched *Scheduler
	proc  *Processor

	frames *mm.FrameAllocator

	// Root is the filesystem root every freshly spawned process inherits as
	// its FSRoot. Set once during kernel wiring; nil disables filesystem
	// syscalls.
	Root *vfs.Inode

	// Init is the process any exiting process's still-live children are
	// reparented to, mirroring a real kernel reparenting orphans to pid 1.
	// Set once during kernel wiring, after the init process is spawned; nil
	// leaves orphans unreachable via Waitpid, as in a kernel with no init.
	Init *PCB
}

// NewManager returns a manager whose processor draws timestamps from
// clock and whose address spaces draw physical frames from a pool of
// frameCount pages.
func NewManager(clock timeutil.Clock, frameCount pagetable.Frame) *Manager {
	sched := NewScheduler()
	return &Manager{
		sched:  sched,
		proc:   NewProcessor(sched, clock),
		frames: mm.NewFrameAllocator(frameCount),
	}
}

// Now returns the current time in microseconds, per the manager's clock.
func (m *Manager) Now() int64 { return m.proc.Now() }

// Spawn creates a fresh process (no parent) running prog, schedules its
// single initial thread, and returns the new PCB and TCB.
func (m *Manager) Spawn(prog Program) (*PCB, *TCB) {
	return m.spawnWithParent(nil, prog)
}

func (m *Manager) spawnWithParent(parent *PCB, prog Program) (*PCB, *TCB) {
	ms := mm.New(pagetable.NewSimTable(), m.frames)
	pcb := NewPCB(allocPID(), parent, ms)
	if parent != nil {
		pcb.FSRoot = parent.FSRoot
		parent.AddChild(pcb)
	} else {
		pcb.FSRoot = m.Root
	}
	t := pcb.AddTCB()
	m.sched.Enqueue(t)
	m.proc.Dispatch(t, m.wrap(pcb, t, prog))
	return pcb, t
}

// wrap adapts a caller Program into one that marks the process exited (with
// code 0, if the program returns normally rather than calling Exit itself)
// once it completes.
func (m *Manager) wrap(pcb *PCB, t *TCB, prog Program) Program {
	return func(t *TCB) {
		prog(t)
		if exited, _ := pcb.ExitStatus(); !exited {
			m.Exit(pcb, 0)
		}
	}
}

// Fork creates a child process that is a snapshot of parent: a deep copy of
// its address space and a shared-by-reference file descriptor table,
// running childProg (typically a trampoline that returns 0 to the "child"
// side and the child's pid to the "parent" side via its own return value
// convention, left to the caller). Returns the child PCB and its initial
// TCB.
func (m *Manager) Fork(parent *PCB, childProg Program) (*PCB, *TCB) {
	ms, err := parent.MemorySet.Clone()
	if err != nil {
		panic(fmt.Sprintf("task.Manager: fork out of physical frames: %v", err))
	}
	child := NewPCB(allocPID(), parent, ms)
	child.FDTable = parent.FDTable.Fork()
	child.FSRoot = parent.FSRoot
	parent.AddChild(child)

	t := child.AddTCB()
	m.sched.Enqueue(t)
	m.proc.Dispatch(t, m.wrap(child, t, childProg))
	return child, t
}

// Exec replaces the calling task's image in place: same PCB, same pid,
// fresh address space, then runs prog on the calling goroutine (the
// caller's own task goroutine, mid-syscall) — Exec does not return control
// to whatever was running before it, since prog now owns this task for the
// rest of its life, exactly like the real syscall never returning to its
// caller on success.
func (m *Manager) Exec(pcb *PCB, t *TCB, prog Program) {
	pcb.MemorySet = mm.New(pagetable.NewSimTable(), m.frames)
	prog(t)
	if exited, _ := pcb.ExitStatus(); !exited {
		m.Exit(pcb, 0)
	}
}

// Exit marks pcb (and all of its threads) exited with the given code, then
// reparents any still-live children to the init process (m.Init), matching
// a real kernel handing orphans to pid 1 so they remain reapable.
func (m *Manager) Exit(pcb *PCB, code int) {
	pcb.MarkExited(code)
	for _, t := range pcb.Threads() {
		t.setStatus(StatusZombie)
	}

	if m.Init != nil && pcb != m.Init {
		for _, child := range pcb.Children() {
			child.Parent = m.Init
			m.Init.AddChild(child)
		}
	}
}

// Waitpid is a single non-blocking poll for a child matching pid (or any
// child, if pid < 0) having exited. It never blocks: a caller that needs to
// wait retries after yielding, the way the original kernel's sys_waitpid
// trap does. Returns -1 if there is no such child at all, -2 if a matching
// child exists but hasn't exited yet, or the exited child's pid and exit
// code once one has.
func (m *Manager) Waitpid(parent *PCB, pid int64) (int64, int) {
	return parent.WaitChild(pid)
}

// Yield cooperatively reschedules the calling task, letting another ready
// goroutine run.
func (m *Manager) Yield(t *TCB) { t.Yield() }

// Sleep blocks the calling task until at least durationUs microseconds have
// elapsed on m's clock, matching the original kernel's sys_sleep (add a
// timer, suspend until it fires). There is no timer queue to add to here:
// the task's own goroutine cooperatively reschedules itself until the
// deadline, the same way Yield hands the processor to other ready
// goroutines, rather than blocking the underlying OS thread.
func (m *Manager) Sleep(t *TCB, durationUs int64) {
	deadline := m.Now() + durationUs
	t.setStatus(StatusBlocked)
	for m.Now() < deadline {
		runtime.Gosched()
	}
	t.setStatus(StatusRunning)
}

// Wait blocks until every task this manager has ever dispatched has
// returned.
func (m *Manager) Wait() { m.proc.Wait() }

func (m *Manager) String() string {
	return fmt.Sprintf("task.Manager(ready=%d, running=%d)", m.sched.Len(), m.proc.RunningCount())
}
