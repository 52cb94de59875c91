package mm

import (
	"fmt"

	"github.com/easykernel/easykernel/pkg/pagetable"
	"github.com/jacobsa/syncutil"
)

// MemorySet is one process's address space: an ordered set of framed areas
// plus the page table backing them.
//
// INVARIANT: no two areas in areas overlap (checked on every insert)
// INVARIANT: every vpn mapped in table belongs to exactly one area in areas
type MemorySet struct {
	mu syncutil.InvariantMutex

	table   pagetable.Table
	frames  *FrameAllocator
	areas   []*Area // GUARDED_BY(mu)
	heapLow pagetable.VPN
	brk     uint64 // GUARDED_BY(mu); current heap break, in bytes
}

// New returns an empty address space backed by table, drawing physical
// frames from frames.
func New(table pagetable.Table, frames *FrameAllocator) *MemorySet {
	ms := &MemorySet{table: table, frames: frames}
	ms.mu = syncutil.NewInvariantMutex(ms.checkInvariants)
	return ms
}

func (ms *MemorySet) checkInvariants() {
	for i, a := range ms.areas {
		for j, b := range ms.areas {
			if i != j && a.Overlaps(b.startVPN, b.endVPN) {
				panic("mm.MemorySet: overlapping areas")
			}
		}
	}
}

// overlapsLocked reports whether [start, end) overlaps any existing area.
// LOCKS_REQUIRED(ms.mu).
func (ms *MemorySet) overlapsLocked(start, end pagetable.VPN) bool {
	for _, a := range ms.areas {
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// InsertFramedArea allocates fresh frames for [start, end) and maps them
// with perm, returning the new Area. Fails if any page in the range is
// already mapped.
func (ms *MemorySet) InsertFramedArea(start, end pagetable.VPN, perm uint8) (*Area, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.overlapsLocked(start, end) {
		return nil, fmt.Errorf("mm.MemorySet: range [%d, %d) already mapped", start, end)
	}

	a := newArea(start, end, perm)
	for vpn := start; vpn < end; vpn++ {
		frame, ok := ms.frames.Alloc()
		if !ok {
			// Roll back whatever frames this area already grabbed.
			for v, f := range a.frames {
				ms.frames.Dealloc(f)
				ms.table.Unmap(v)
				delete(a.frames, v)
			}
			return nil, fmt.Errorf("mm.MemorySet: out of physical frames")
		}
		a.frames[vpn] = frame
		ms.table.Map(vpn, frame, perm)
	}
	ms.areas = append(ms.areas, a)
	return a, nil
}

// RemoveFramedArea unmaps and frees every page in [start, end). The range
// need not match a single area's bounds exactly: it may trim a prefix or
// suffix of an area, split an area in two by removing a middle sub-range,
// or span several areas at once, as long as every page in [start, end) is
// currently mapped. Fails otherwise, leaving the address space unchanged.
func (ms *MemorySet) RemoveFramedArea(start, end pagetable.VPN) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for vpn := start; vpn < end; vpn++ {
		if _, _, ok := ms.table.Translate(vpn); !ok {
			return fmt.Errorf("mm.MemorySet: vpn %d in [%d, %d) is not mapped", vpn, start, end)
		}
	}

	var kept []*Area
	for _, a := range ms.areas {
		if !a.Overlaps(start, end) {
			kept = append(kept, a)
			continue
		}

		lo, hi := a.startVPN, a.endVPN
		if start > lo {
			lo = start
		}
		if end < hi {
			hi = end
		}
		for vpn := lo; vpn < hi; vpn++ {
			ms.table.Unmap(vpn)
			ms.frames.Dealloc(a.frames[vpn])
			delete(a.frames, vpn)
		}

		switch {
		case lo == a.startVPN && hi == a.endVPN:
			// The whole area was removed; don't keep it.
		case lo == a.startVPN:
			a.startVPN = hi
			kept = append(kept, a)
		case hi == a.endVPN:
			a.endVPN = lo
			kept = append(kept, a)
		default:
			// A middle sub-range was removed: split into two areas, each
			// claiming its half of the remaining frames.
			right := newArea(hi, a.endVPN, a.perm)
			for vpn := hi; vpn < a.endVPN; vpn++ {
				right.frames[vpn] = a.frames[vpn]
				delete(a.frames, vpn)
			}
			a.endVPN = lo
			kept = append(kept, a, right)
		}
	}
	ms.areas = kept
	return nil
}

// Translate returns the frame and permission bits for vpn, if mapped.
func (ms *MemorySet) Translate(vpn pagetable.VPN) (pagetable.Frame, uint8, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.table.Translate(vpn)
}

// Page returns the byte range backing physical frame f. Used by the syscall
// layer to copy bytes between a task's address space and kernel buffers.
func (ms *MemorySet) Page(f pagetable.Frame) []byte {
	return ms.frames.Page(f)
}

// Clone returns a new address space that is a deep copy of ms: every framed
// area is reproduced with freshly allocated frames whose contents are
// copied byte-for-byte from the originals. The heap break is copied and the
// clone gets its own fresh SimTable, so the two MemorySets share no pages or
// page table afterward; both keep drawing frames from the same
// FrameAllocator.
func (ms *MemorySet) Clone() (*MemorySet, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	child := New(pagetable.NewSimTable(), ms.frames)
	for _, a := range ms.areas {
		childArea, err := child.InsertFramedArea(a.startVPN, a.endVPN, a.perm)
		if err != nil {
			return nil, err
		}
		for vpn := a.startVPN; vpn < a.endVPN; vpn++ {
			srcFrame := a.frames[vpn]
			dstFrame := childArea.frames[vpn]
			copy(ms.frames.Page(dstFrame), ms.frames.Page(srcFrame))
		}
	}
	child.heapLow = ms.heapLow
	child.brk = ms.brk
	return child, nil
}

// SetHeap fixes the heap's base and initial break, both byte addresses.
func (ms *MemorySet) SetHeap(base uint64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.heapLow = pagetable.CeilVPN(base)
	ms.brk = base
}

// Brk grows or shrinks the heap by delta bytes (may be negative), returning
// the old break on success. Fails if the new break would fall below the
// heap base.
func (ms *MemorySet) Brk(delta int64) (uint64, error) {
	ms.mu.Lock()
	oldBrk := ms.brk
	newBrk := int64(oldBrk) + delta
	if newBrk < int64(pagetable.VPNToVAddr(ms.heapLow)) {
		ms.mu.Unlock()
		return 0, fmt.Errorf("mm.MemorySet: brk underflow")
	}
	ms.mu.Unlock()

	oldTop := pagetable.CeilVPN(oldBrk)
	newTop := pagetable.CeilVPN(uint64(newBrk))

	switch {
	case newTop > oldTop:
		if _, err := ms.InsertFramedArea(oldTop, newTop, PermR|PermW|PermU); err != nil {
			return 0, err
		}
	case newTop < oldTop:
		if err := ms.RemoveFramedArea(newTop, oldTop); err != nil {
			return 0, err
		}
	}

	ms.mu.Lock()
	ms.brk = uint64(newBrk)
	ms.mu.Unlock()
	return oldBrk, nil
}

// Permission bits, re-exported here for callers that only import mm.
const (
	PermR = pagetable.PermR
	PermW = pagetable.PermW
	PermX = pagetable.PermX
	PermU = pagetable.PermU
)
