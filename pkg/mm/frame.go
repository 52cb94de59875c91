package mm

import "github.com/easykernel/easykernel/pkg/pagetable"

// FrameAllocator hands out and reclaims physical page frames. Recycled
// frames are served first, from a stack-based free list (most-recently-freed
// first); only when that list is empty are fresh frames handed out, in
// increasing order up to the limit.
type FrameAllocator struct {
	next  pagetable.Frame
	limit pagetable.Frame
	free  []pagetable.Frame

	mem []byte // backing bytes for every frame this allocator could ever hand out
}

// NewFrameAllocator returns an allocator serving frames [0, limit), backed
// by limit*pagetable.PageSize bytes of simulated physical memory.
func NewFrameAllocator(limit pagetable.Frame) *FrameAllocator {
	return &FrameAllocator{limit: limit, mem: make([]byte, int(limit)*pagetable.PageSize)}
}

// Page returns the byte range backing frame f.
func (a *FrameAllocator) Page(f pagetable.Frame) []byte {
	start := int(f) * pagetable.PageSize
	return a.mem[start : start+pagetable.PageSize]
}

// Alloc reserves one frame, or reports false if none remain.
func (a *FrameAllocator) Alloc() (pagetable.Frame, bool) {
	if n := len(a.free); n > 0 {
		f := a.free[n-1]
		a.free = a.free[:n-1]
		return f, true
	}
	if a.next >= a.limit {
		return 0, false
	}
	f := a.next
	a.next++
	return f, true
}

// Dealloc returns a previously allocated frame to the pool.
func (a *FrameAllocator) Dealloc(f pagetable.Frame) {
	a.free = append(a.free, f)
}
