package syscall

import (
	"encoding/binary"

	"github.com/easykernel/easykernel/pkg/mm"
	"github.com/easykernel/easykernel/pkg/pagetable"
)

// TranslatedByteBuffer splits the length bytes starting at user virtual
// address vaddr into one []byte slice per physical page they span. A
// region never spans more than two pages for any struct copied by this
// package, but the split handles an arbitrary length and arbitrary
// starting offset, mirroring how a real kernel must walk the page table
// once per page rather than assuming a user buffer is physically
// contiguous.
func TranslatedByteBuffer(ms *mm.MemorySet, vaddr uint64, length int) ([][]byte, bool) {
	var out [][]byte
	addr := vaddr
	remaining := length
	for remaining > 0 {
		vpn, offset := pagetable.VAddrToVPN(addr)
		frame, _, ok := ms.Translate(vpn)
		if !ok {
			return nil, false
		}
		page := ms.Page(frame)
		end := offset + uint64(remaining)
		if end > pagetable.PageSize {
			end = pagetable.PageSize
		}
		chunk := page[offset:end]
		out = append(out, chunk)
		remaining -= len(chunk)
		addr += uint64(len(chunk))
	}
	return out, true
}

// WriteBytes copies data into the user buffer at vaddr, splitting the copy
// across pages as needed. Reports false if any page in the range is
// unmapped.
func WriteBytes(ms *mm.MemorySet, vaddr uint64, data []byte) bool {
	chunks, ok := TranslatedByteBuffer(ms, vaddr, len(data))
	if !ok {
		return false
	}
	off := 0
	for _, c := range chunks {
		n := copy(c, data[off:])
		off += n
	}
	return true
}

// ReadBytes copies length bytes out of the user buffer at vaddr into a
// freshly allocated, physically contiguous slice.
func ReadBytes(ms *mm.MemorySet, vaddr uint64, length int) ([]byte, bool) {
	chunks, ok := TranslatedByteBuffer(ms, vaddr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, 0, length)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, true
}

// TimeVal mirrors the wall-clock timestamp struct sys_get_time writes into
// user memory: whole seconds plus the microsecond remainder.
type TimeVal struct {
	Sec  int64
	USec int64
}

const timeValWireSize = 16

// Marshal encodes t in the fixed 16-byte wire layout.
func (t TimeVal) Marshal() []byte {
	buf := make([]byte, timeValWireSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(t.USec))
	return buf
}

// TaskInfo mirrors the per-task accounting struct sys_task_info writes
// into user memory: lifecycle status, elapsed time since first
// dispatch, and a snapshot of syscall call counts.
type TaskInfo struct {
	Status        string
	TimeMs        int64
	SyscallCounts map[uint64]uint32
}

// Marshal encodes info as: status length + status bytes, time_ms, a
// syscall-count pair total, then (syscall id, count) pairs — a simple
// variable-length layout rather than the original's fixed MAX_SYSCALL_NUM
// array, since this simulation has no fixed syscall table size to pad to.
func (info TaskInfo) Marshal() []byte {
	buf := make([]byte, 0, 32+12*len(info.SyscallCounts))

	statusBytes := []byte(info.Status)
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(statusBytes)))
	buf = append(buf, lenBuf...)
	buf = append(buf, statusBytes...)

	timeBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(timeBuf, uint64(info.TimeMs))
	buf = append(buf, timeBuf...)

	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(info.SyscallCounts)))
	buf = append(buf, countBuf...)

	for id, count := range info.SyscallCounts {
		pair := make([]byte, 12)
		binary.LittleEndian.PutUint64(pair[0:8], id)
		binary.LittleEndian.PutUint32(pair[8:12], count)
		buf = append(buf, pair...)
	}
	return buf
}
