package task

import (
	"runtime"
	"testing"

	"github.com/easykernel/easykernel/pkg/mm"
	"github.com/jacobsa/timeutil"
)

// waitpidBlocking polls Waitpid, yielding between attempts, the way a real
// caller retries across the -2 "still running" sentinel.
func waitpidBlocking(t *testing.T, m *Manager, parent *PCB, pid int64) (int64, int) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if got, code := m.Waitpid(parent, pid); got != -2 {
			return got, code
		}
		runtime.Gosched()
	}
	t.Fatal("waitpid never left the -2 sentinel")
	return 0, 0
}

func TestForkedChildRunsToCompletionAndIsReapable(t *testing.T) {
	m := NewManager(timeutil.RealClock(), 64)

	parent, _ := m.Spawn(func(t *TCB) {})
	done := make(chan struct{})
	child, _ := m.Fork(parent, func(t *TCB) { close(done) })
	<-done

	pid, code := waitpidBlocking(t, m, parent, child.PID)
	if pid != child.PID {
		t.Fatalf("Waitpid returned pid %d, want %d", pid, child.PID)
	}
	if code != 0 {
		t.Fatalf("Waitpid returned code %d, want 0", code)
	}
}

func TestWaitpidReturnsTransientSentinelForLiveChild(t *testing.T) {
	m := NewManager(timeutil.RealClock(), 64)

	parent, _ := m.Spawn(func(t *TCB) {})
	release := make(chan struct{})
	child, _ := m.Fork(parent, func(t *TCB) { <-release })

	if pid, _ := m.Waitpid(parent, child.PID); pid != -2 {
		t.Fatalf("Waitpid on a live matching child = %d, want -2", pid)
	}

	close(release)
	pid, _ := waitpidBlocking(t, m, parent, child.PID)
	if pid != child.PID {
		t.Fatalf("Waitpid after exit returned %d, want %d", pid, child.PID)
	}
}

func TestWaitpidNoMatchingChildReturnsSentinel(t *testing.T) {
	m := NewManager(timeutil.RealClock(), 64)
	parent, _ := m.Spawn(func(t *TCB) {})

	pid, _ := m.Waitpid(parent, 12345)
	if pid != -1 {
		t.Fatalf("Waitpid with no matching child = %d, want -1", pid)
	}
}

func TestForkClonesAddressSpaceContents(t *testing.T) {
	m := NewManager(timeutil.RealClock(), 64)
	parent, _ := m.Spawn(func(t *TCB) {})

	if _, err := parent.MemorySet.InsertFramedArea(0, 1, mm.PermR|mm.PermW); err != nil {
		t.Fatalf("InsertFramedArea: %v", err)
	}
	frame, _, ok := parent.MemorySet.Translate(0)
	if !ok {
		t.Fatal("parent translate failed")
	}
	copy(parent.MemorySet.Page(frame), []byte("forked"))

	// Fork clones the address space synchronously before dispatching the
	// child's goroutine, so the child's PCB already reflects the copy here.
	child, _ := m.Fork(parent, func(t *TCB) {})

	childFrame, _, ok := child.MemorySet.Translate(0)
	if !ok {
		t.Fatal("child translate failed")
	}
	if string(child.MemorySet.Page(childFrame)[:6]) != "forked" {
		t.Fatal("child's page did not contain a copy of the parent's contents")
	}

	// Mutating the parent after fork must not affect the child's copy.
	copy(parent.MemorySet.Page(frame), []byte("mutated"))
	if string(child.MemorySet.Page(childFrame)[:6]) != "forked" {
		t.Fatal("fork should be a deep copy, not aliased with the parent")
	}
}

func TestYieldReturnsToRunning(t *testing.T) {
	m := NewManager(timeutil.RealClock(), 64)
	done := make(chan struct{})
	var sawReady bool
	_, tcb := m.Spawn(func(t *TCB) {
		t.Yield()
		if t.Status() == StatusRunning {
			sawReady = true
		}
		close(done)
	})
	<-done
	_ = tcb
	if !sawReady {
		t.Fatal("task should be back in StatusRunning after Yield returns")
	}
}

func TestPCBPriorityRejectsBelowTwo(t *testing.T) {
	pcb := NewPCB(0, nil, nil)
	if got := pcb.Priority(); got != defaultPriority {
		t.Fatalf("fresh PCB priority = %d, want %d", got, defaultPriority)
	}

	if pcb.SetPriority(1) {
		t.Fatal("SetPriority(1) should be rejected")
	}
	if got := pcb.Priority(); got != defaultPriority {
		t.Fatalf("priority after rejected SetPriority = %d, want unchanged %d", got, defaultPriority)
	}

	if !pcb.SetPriority(5) {
		t.Fatal("SetPriority(5) should succeed")
	}
	if got := pcb.Priority(); got != 5 {
		t.Fatalf("priority after SetPriority(5) = %d, want 5", got)
	}
}

func TestMutexDeadlockDetectionRefusesUnsafeGrant(t *testing.T) {
	pcb := NewPCB(0, nil, nil)
	pcb.EnableDeadlockDetection(true)
	t0 := pcb.AddTCB()
	t1 := pcb.AddTCB()

	id := pcb.CreateMutex(false)
	if !pcb.MutexLock(t0.ID, id) {
		t.Fatal("first lock should be granted")
	}
	if pcb.MutexLock(t1.ID, id) {
		t.Fatal("second task's lock request should be refused while held and unsafe")
	}
	pcb.MutexUnlock(t0.ID, id)
	if !pcb.MutexLock(t1.ID, id) {
		t.Fatal("lock should succeed once released")
	}
}
