package syscall

import (
	"bytes"
	"testing"

	"github.com/easykernel/easykernel/pkg/mm"
	"github.com/easykernel/easykernel/pkg/pagetable"
)

func newTestMemorySet(t *testing.T) *mm.MemorySet {
	t.Helper()
	ms := mm.New(pagetable.NewSimTable(), mm.NewFrameAllocator(4))
	if _, err := ms.InsertFramedArea(0, 2, mm.PermR|mm.PermW); err != nil {
		t.Fatalf("InsertFramedArea: %v", err)
	}
	return ms
}

func TestWriteBytesReadBytesStraddlingPages(t *testing.T) {
	ms := newTestMemorySet(t)

	// Start 10 bytes before the end of the first page so the write straddles
	// into the second page's frame.
	vaddr := uint64(pagetable.PageSize - 10)
	payload := bytes.Repeat([]byte{0xAB}, 20)

	if !WriteBytes(ms, vaddr, payload) {
		t.Fatal("WriteBytes across a page boundary should succeed")
	}
	got, ok := ReadBytes(ms, vaddr, len(payload))
	if !ok {
		t.Fatal("ReadBytes across a page boundary should succeed")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %v, want %v", got, payload)
	}
}

func TestWriteBytesUnmappedRegionFails(t *testing.T) {
	ms := newTestMemorySet(t)
	if WriteBytes(ms, uint64(4*pagetable.PageSize), []byte{1}) {
		t.Fatal("WriteBytes into an unmapped page should fail")
	}
}

func TestTimeValMarshalLayout(t *testing.T) {
	tv := TimeVal{Sec: 1, USec: 2}
	buf := tv.Marshal()
	if len(buf) != timeValWireSize {
		t.Fatalf("len = %d, want %d", len(buf), timeValWireSize)
	}
}

func TestTaskInfoMarshalRoundTripsThroughMemory(t *testing.T) {
	ms := newTestMemorySet(t)
	info := TaskInfo{Status: "running", TimeMs: 42, SyscallCounts: map[uint64]uint32{GetTime: 3}}
	data := info.Marshal()

	if !WriteBytes(ms, 0, data) {
		t.Fatal("WriteBytes of marshaled TaskInfo should succeed")
	}
	got, ok := ReadBytes(ms, 0, len(data))
	if !ok || !bytes.Equal(got, data) {
		t.Fatal("read back bytes did not match marshaled TaskInfo")
	}
}
