package syscall

import (
	"context"

	"github.com/easykernel/easykernel/pkg/fd"
	"github.com/easykernel/easykernel/pkg/mm"
	"github.com/easykernel/easykernel/pkg/pagetable"
	"github.com/easykernel/easykernel/pkg/task"
	"github.com/jacobsa/reqtrace"
)

// Deadlock is the sentinel return value for a mutex/semaphore request
// refused by deadlock detection.
const Deadlock = -0xDEAD

// Open flags, matching the bit assignments a caller's loaded program would
// pass to an openat syscall.
const (
	OpenRDOnly = 0
	OpenWROnly = 1 << 0
	OpenRDWR   = 1 << 1
	OpenCreate = 1 << 9
	OpenTrunc  = 1 << 10
)

// Dispatch routes one trapped syscall to the task/mm/vfs layer underneath,
// recording it against t's per-syscall accounting first. Fork, Exec, and
// Spawn are not handled here: this simulation represents a loaded program
// as a Go closure rather than an instruction stream, so there is no
// register state to resume after the trap returns — callers needing those
// three use task.Manager's Fork/Exec/Spawn directly with the continuation
// closure they already have in hand.
func Dispatch(mgr *task.Manager, pcb *task.PCB, t *task.TCB, id uint64, args [6]uint64) int64 {
	t.RecordSyscall(id)

	_, report := reqtrace.StartSpan(context.Background(), Name(id))
	defer report(nil)

	switch id {
	case Exit:
		mgr.Exit(pcb, int(int32(args[0])))
		return 0

	case Yield:
		mgr.Yield(t)
		return 0

	case Sleep:
		mgr.Sleep(t, int64(args[0]))
		return 0

	case GetTime:
		return getTime(mgr, pcb, args[0])

	case SetPriority:
		priority := int(int32(args[0]))
		if pcb.SetPriority(priority) {
			return int64(priority)
		}
		return -1

	case GetPID:
		return pcb.PID

	case Sbrk:
		old, err := pcb.MemorySet.Brk(int64(args[0]))
		if err != nil {
			return -1
		}
		return int64(old)

	case Mmap:
		return doMmap(pcb, args[0], args[1], args[2])

	case Munmap:
		return doMunmap(pcb, args[0], args[1])

	case Waitpid:
		return doWaitpid(mgr, pcb, args)

	case TaskInfo:
		return taskInfo(mgr, pcb, t, args[0])

	case OpenAt:
		return doOpen(pcb, args[0], uint32(args[1]))

	case Close:
		if pcb.FDTable.Close(int(args[0])) {
			return 0
		}
		return -1

	case Read:
		return doRead(pcb, args)

	case Write:
		return doWrite(pcb, args)

	case FStat:
		return doFStat(pcb, args)

	case LinkAt:
		return doLinkAt(pcb, args)

	case UnlinkAt:
		return doUnlinkAt(pcb, args)

	case MutexCreate:
		return int64(pcb.CreateMutex(args[0] != 0))

	case MutexLock:
		if pcb.MutexLock(t.ID, int(args[0])) {
			return 0
		}
		return Deadlock

	case MutexUnlock:
		pcb.MutexUnlock(t.ID, int(args[0]))
		return 0

	case SemaphoreCreate:
		return int64(pcb.CreateSemaphore(int(args[0])))

	case SemaphoreUp:
		pcb.SemaphoreUp(t.ID, int(args[0]))
		return 0

	case SemaphoreDown:
		if pcb.SemaphoreDown(t.ID, int(args[0])) {
			return 0
		}
		return Deadlock

	case CondvarCreate:
		return int64(pcb.CreateCondvar())

	case CondvarSignal:
		pcb.CondvarSignal(int(args[0]))
		return 0

	case CondvarWait:
		pcb.CondvarWait(int(args[0]), int(args[1]))
		return 0

	case EnableDeadlockDetect:
		pcb.EnableDeadlockDetection(args[0] != 0)
		return 0

	default:
		return -1
	}
}

func getTime(mgr *task.Manager, pcb *task.PCB, vaddr uint64) int64 {
	us := mgr.Now()
	tv := TimeVal{Sec: us / 1_000_000, USec: us % 1_000_000}
	if !WriteBytes(pcb.MemorySet, vaddr, tv.Marshal()) {
		return -1
	}
	return 0
}

func taskInfo(mgr *task.Manager, pcb *task.PCB, t *task.TCB, vaddr uint64) int64 {
	info := TaskInfo{
		Status:        t.Status().String(),
		TimeMs:        (mgr.Now() - t.StartTimeUs()) / 1000,
		SyscallCounts: t.SyscallCounts(),
	}
	if !WriteBytes(pcb.MemorySet, vaddr, info.Marshal()) {
		return -1
	}
	return 0
}

// doMmap validates the port bits and page alignment the way the original
// kernel does before delegating to the address space: port must use only
// bits 0-2 (R/W/X) and must set at least one of them, and start must be
// page-aligned.
func doMmap(pcb *task.PCB, start, length, port uint64) int64 {
	if port&^uint64(0x7) != 0 || port&0x7 == 0 {
		return -1
	}
	if start&pagetable.PageSizeMask != 0 {
		return -1
	}
	if length == 0 {
		return 0
	}

	var perm uint8 = pagetable.PermU
	if port&0x1 != 0 {
		perm |= pagetable.PermR
	}
	if port&0x2 != 0 {
		perm |= pagetable.PermW
	}
	if port&0x4 != 0 {
		perm |= pagetable.PermX
	}

	startVPN := pagetable.VPN(start >> pagetable.PageSizeBits)
	endVPN := pagetable.CeilVPN(start + length)
	if _, err := pcb.MemorySet.InsertFramedArea(startVPN, endVPN, perm); err != nil {
		return -1
	}
	return 0
}

func doMunmap(pcb *task.PCB, start, length uint64) int64 {
	if start&pagetable.PageSizeMask != 0 {
		return -1
	}
	startVPN := pagetable.VPN(start >> pagetable.PageSizeBits)
	endVPN := pagetable.CeilVPN(start + length)
	if err := pcb.MemorySet.RemoveFramedArea(startVPN, endVPN); err != nil {
		return -1
	}
	return 0
}

func doWaitpid(mgr *task.Manager, pcb *task.PCB, args [6]uint64) int64 {
	pid, code := mgr.Waitpid(pcb, int64(args[0]))
	if pid < 0 {
		return pid
	}
	if statusAddr := args[1]; statusAddr != 0 {
		buf := make([]byte, 4)
		buf[0] = byte(code)
		buf[1] = byte(code >> 8)
		buf[2] = byte(code >> 16)
		buf[3] = byte(code >> 24)
		WriteBytes(pcb.MemorySet, statusAddr, buf)
	}
	return pid
}

func doOpen(pcb *task.PCB, pathVaddr uint64, flags uint32) int64 {
	if pcb.FSRoot == nil {
		return -1
	}
	name, ok := readCString(pcb.MemorySet, pathVaddr)
	if !ok {
		return -1
	}

	inode := pcb.FSRoot.Find(name)
	if inode == nil {
		if flags&OpenCreate == 0 {
			return -1
		}
		inode = pcb.FSRoot.Create(name)
		if inode == nil {
			return -1
		}
	} else if flags&OpenTrunc != 0 {
		inode.Clear()
	}

	return int64(pcb.FDTable.Install(fd.NewVFSFile(inode, name)))
}

func doRead(pcb *task.PCB, args [6]uint64) int64 {
	f := pcb.FDTable.Get(int(args[0]))
	if f == nil {
		return -1
	}
	length := int(args[2])
	buf := make([]byte, length)
	n, err := f.Read(buf)
	if err != nil {
		return -1
	}
	if n > 0 && !WriteBytes(pcb.MemorySet, args[1], buf[:n]) {
		return -1
	}
	return int64(n)
}

func doWrite(pcb *task.PCB, args [6]uint64) int64 {
	f := pcb.FDTable.Get(int(args[0]))
	if f == nil {
		return -1
	}
	buf, ok := ReadBytes(pcb.MemorySet, args[1], int(args[2]))
	if !ok {
		return -1
	}
	n, err := f.Write(buf)
	if err != nil {
		return -1
	}
	return int64(n)
}

func doFStat(pcb *task.PCB, args [6]uint64) int64 {
	raw := pcb.FDTable.Get(int(args[0]))
	vf, ok := raw.(*fd.VFSFile)
	if !ok {
		return -1
	}
	_, nlink, found := pcb.FSRoot.GetFstat(vf.Name())
	if !found {
		return -1
	}
	buf := make([]byte, 8)
	buf[0] = byte(vf.Inode().InodeID())
	buf[1] = byte(vf.Inode().InodeID() >> 8)
	buf[2] = byte(vf.Inode().InodeID() >> 16)
	buf[3] = byte(vf.Inode().InodeID() >> 24)
	buf[4] = byte(nlink)
	if !WriteBytes(pcb.MemorySet, args[1], buf) {
		return -1
	}
	return 0
}

func doLinkAt(pcb *task.PCB, args [6]uint64) int64 {
	if pcb.FSRoot == nil {
		return -1
	}
	oldName, ok1 := readCString(pcb.MemorySet, args[0])
	newName, ok2 := readCString(pcb.MemorySet, args[1])
	if !ok1 || !ok2 {
		return -1
	}
	pcb.FSRoot.LinkAt(oldName, newName)
	return 0
}

func doUnlinkAt(pcb *task.PCB, args [6]uint64) int64 {
	if pcb.FSRoot == nil {
		return -1
	}
	name, ok := readCString(pcb.MemorySet, args[0])
	if !ok {
		return -1
	}
	if pcb.FSRoot.UnlinkAt(name) {
		return 0
	}
	return -1
}

// readCString reads a NUL-terminated string out of user memory one byte at
// a time, mirroring the original kernel's translated_str, which cannot
// assume the string's length up front. Bounded to avoid scanning forever
// into an unmapped region that happens to never hit a zero byte.
func readCString(ms *mm.MemorySet, vaddr uint64) (string, bool) {
	const maxLen = 4096
	var out []byte
	for i := 0; i < maxLen; i++ {
		b, ok := ReadBytes(ms, vaddr+uint64(i), 1)
		if !ok {
			return "", false
		}
		if b[0] == 0 {
			return string(out), true
		}
		out = append(out, b[0])
	}
	return "", false
}
