package task

import (
	"github.com/easykernel/easykernel/pkg/fd"
	"github.com/easykernel/easykernel/pkg/mm"
	"github.com/easykernel/easykernel/pkg/sync2"
	"github.com/easykernel/easykernel/pkg/vfs"
	"github.com/jacobsa/syncutil"
)

// defaultPriority is the priority a freshly created process starts with.
// The FIFO dispatcher doesn't consume it; it's a hook point for a future
// stride/CFS scheduler.
const defaultPriority = 16

// PCB is a process control block: the address space, file descriptor
// table, thread group, and synchronization-object lists shared by every
// TCB belonging to one process.
type PCB struct {
	PID    int64
	Parent *PCB

	mu syncutil.InvariantMutex

	children []*PCB // GUARDED_BY(mu)
	tcbs     []*TCB // GUARDED_BY(mu)
	exited   bool   // GUARDED_BY(mu)
	exitCode int    // GUARDED_BY(mu)
	priority int    // GUARDED_BY(mu); >= 2, enforced by SetPriority

	MemorySet *mm.MemorySet
	FDTable   *fd.Table
	FSRoot    *vfs.Inode // working directory root; inherited across fork and exec

	mutexList        []sync2.Mutex      // GUARDED_BY(mu)
	mutexDeadlock    *sync2.DeadlockTable
	semList          []*sync2.Semaphore // GUARDED_BY(mu)
	semDeadlock      *sync2.DeadlockTable
	condvarList      []*sync2.Condvar // GUARDED_BY(mu)
	enDeadlockDetect bool             // GUARDED_BY(mu)
}

// NewPCB returns a fresh process rooted at pid, with no threads or
// children yet.
func NewPCB(pid int64, parent *PCB, ms *mm.MemorySet) *PCB {
	p := &PCB{
		PID:           pid,
		Parent:        parent,
		MemorySet:     ms,
		FDTable:       fd.New(),
		priority:      defaultPriority,
		mutexDeadlock: sync2.NewDeadlockTable(),
		semDeadlock:   sync2.NewDeadlockTable(),
	}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)
	return p
}

func (p *PCB) checkInvariants() {}

// Priority returns the process's current scheduling priority.
func (p *PCB) Priority() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priority
}

// SetPriority sets the process's priority. Priorities below 2 are
// rejected, matching the original kernel's sys_set_priority.
func (p *PCB) SetPriority(priority int) bool {
	if priority < 2 {
		return false
	}
	p.mu.Lock()
	p.priority = priority
	p.mu.Unlock()
	return true
}

// AddTCB registers a new thread in this process and returns it.
func (p *PCB) AddTCB() *TCB {
	t := newTCB(p)
	p.mu.Lock()
	p.tcbs = append(p.tcbs, t)
	p.mu.Unlock()
	p.mutexDeadlock.AddTask(int(t.ID))
	p.semDeadlock.AddTask(int(t.ID))
	return t
}

// Threads returns a snapshot of this process's threads.
func (p *PCB) Threads() []*TCB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*TCB(nil), p.tcbs...)
}

// AddChild registers child as a child process, reparenting it to p.
func (p *PCB) AddChild(child *PCB) {
	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()
}

// Children returns a snapshot of this process's children.
func (p *PCB) Children() []*PCB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*PCB(nil), p.children...)
}

// RemoveChild drops child from p's child list (called once its exit status
// has been reaped by Waitpid).
func (p *PCB) RemoveChild(child *PCB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

// MarkExited records the process's exit code, observable by a parent's
// next Waitpid poll.
func (p *PCB) MarkExited(code int) {
	p.mu.Lock()
	p.exited = true
	p.exitCode = code
	p.mu.Unlock()
}

// ExitStatus returns whether the process has exited, and its code if so.
func (p *PCB) ExitStatus() (exited bool, code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitCode
}

// WaitChild is a single, non-blocking poll for a child matching target (or,
// if target < 0, any child) having exited: it never waits for one to exit,
// matching the original kernel's sys_waitpid, which a caller retries after
// yielding rather than the kernel itself blocking. Returns (-1, 0) if p has
// no matching children at all, (-2, 0) if a matching child exists but none
// has exited yet, or the reaped child's pid and exit code once one has.
func (p *PCB) WaitChild(target int64) (int64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var match *PCB
	any := false
	for _, c := range p.children {
		if target >= 0 && c.PID != target {
			continue
		}
		any = true
		if exited, _ := c.exitedLocked(); exited {
			match = c
			break
		}
	}
	if !any {
		return -1, 0
	}
	if match == nil {
		return -2, 0
	}
	for i, c := range p.children {
		if c == match {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	_, code := match.exitedLocked()
	return match.PID, code
}

func (p *PCB) exitedLocked() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitCode
}

// EnableDeadlockDetection toggles banker's-algorithm checking for this
// process's mutex and semaphore requests.
func (p *PCB) EnableDeadlockDetection(enabled bool) {
	p.mu.Lock()
	p.enDeadlockDetect = enabled
	p.mu.Unlock()
}

func (p *PCB) deadlockDetectionEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enDeadlockDetect
}

// CreateMutex registers a new mutex (spinning if !blocking, else blocking)
// and returns its id.
func (p *PCB) CreateMutex(blocking bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var m sync2.Mutex
	if blocking {
		m = sync2.NewBlockingMutex()
	} else {
		m = sync2.NewSpinMutex()
	}
	p.mutexList = append(p.mutexList, m)
	id := len(p.mutexList) - 1
	p.mutexDeadlock.AddResource(1)
	return id
}

// MutexLock attempts to lock mutex id on behalf of task tid. If deadlock
// detection is enabled and the request would be unsafe, returns false
// without locking anything.
func (p *PCB) MutexLock(tid uint64, id int) bool {
	if p.deadlockDetectionEnabled() {
		if !p.mutexDeadlock.RequestIsSafe(int(tid), id) {
			return false
		}
	}
	p.mu.Lock()
	m := p.mutexList[id]
	p.mu.Unlock()

	m.Lock()
	p.mutexDeadlock.Grant(int(tid), id)
	return true
}

// MutexUnlock releases mutex id on behalf of task tid.
func (p *PCB) MutexUnlock(tid uint64, id int) {
	p.mu.Lock()
	m := p.mutexList[id]
	p.mu.Unlock()

	p.mutexDeadlock.Release(int(tid), id)
	m.Unlock()
}

// CreateSemaphore registers a new counting semaphore and returns its id.
func (p *PCB) CreateSemaphore(count int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.semList = append(p.semList, sync2.NewSemaphore(count))
	id := len(p.semList) - 1
	p.semDeadlock.AddResource(count)
	return id
}

// SemaphoreDown attempts to take one unit of semaphore id on behalf of task
// tid, subject to the same deadlock-safety gate as MutexLock.
func (p *PCB) SemaphoreDown(tid uint64, id int) bool {
	if p.deadlockDetectionEnabled() {
		if !p.semDeadlock.RequestIsSafe(int(tid), id) {
			return false
		}
	}
	p.mu.Lock()
	s := p.semList[id]
	p.mu.Unlock()

	s.Down()
	p.semDeadlock.Grant(int(tid), id)
	return true
}

// SemaphoreUp releases one unit of semaphore id on behalf of task tid.
func (p *PCB) SemaphoreUp(tid uint64, id int) {
	p.mu.Lock()
	s := p.semList[id]
	p.mu.Unlock()

	p.semDeadlock.Release(int(tid), id)
	s.Up()
}

// CreateCondvar registers a new condition variable and returns its id.
func (p *PCB) CreateCondvar() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condvarList = append(p.condvarList, sync2.NewCondvar())
	return len(p.condvarList) - 1
}

// CondvarSignal wakes one waiter on condvar id.
func (p *PCB) CondvarSignal(id int) {
	p.mu.Lock()
	c := p.condvarList[id]
	p.mu.Unlock()
	c.Signal()
}

// CondvarWait waits on condvar id, releasing and reacquiring mutex
// mutexID around the wait.
func (p *PCB) CondvarWait(condvarID, mutexID int) {
	p.mu.Lock()
	c := p.condvarList[condvarID]
	m := p.mutexList[mutexID]
	p.mu.Unlock()
	c.Wait(m)
}
