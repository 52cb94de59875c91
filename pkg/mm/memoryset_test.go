package mm

import (
	"testing"

	"github.com/easykernel/easykernel/pkg/pagetable"
)

func newTestSet(frames pagetable.Frame) *MemorySet {
	return New(pagetable.NewSimTable(), NewFrameAllocator(frames))
}

func TestInsertFramedAreaTranslate(t *testing.T) {
	ms := newTestSet(16)

	a, err := ms.InsertFramedArea(0, 4, PermR|PermW|PermU)
	if err != nil {
		t.Fatalf("InsertFramedArea: %v", err)
	}
	if a.StartVPN() != 0 || a.EndVPN() != 4 {
		t.Fatalf("area range = [%d, %d)", a.StartVPN(), a.EndVPN())
	}

	for vpn := pagetable.VPN(0); vpn < 4; vpn++ {
		if _, _, ok := ms.Translate(vpn); !ok {
			t.Fatalf("vpn %d not mapped after insert", vpn)
		}
	}
	if _, _, ok := ms.Translate(4); ok {
		t.Fatal("vpn 4 should not be mapped")
	}
}

func TestInsertFramedAreaRejectsOverlap(t *testing.T) {
	ms := newTestSet(16)
	if _, err := ms.InsertFramedArea(0, 4, PermR); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := ms.InsertFramedArea(2, 6, PermR); err == nil {
		t.Fatal("overlapping insert should fail")
	}
}

func TestInsertFramedAreaOutOfFrames(t *testing.T) {
	ms := newTestSet(2)
	if _, err := ms.InsertFramedArea(0, 4, PermR); err == nil {
		t.Fatal("expected out-of-frames error")
	}
	// Frames grabbed before the failure must have been rolled back.
	if _, err := ms.InsertFramedArea(0, 2, PermR); err != nil {
		t.Fatalf("rollback left frames unavailable: %v", err)
	}
}

func TestRemoveFramedAreaExactMatch(t *testing.T) {
	ms := newTestSet(16)
	ms.InsertFramedArea(0, 4, PermR)

	if err := ms.RemoveFramedArea(0, 4); err != nil {
		t.Fatalf("exact-range removal: %v", err)
	}
	if _, _, ok := ms.Translate(0); ok {
		t.Fatal("vpn 0 should be unmapped after removal")
	}
}

func TestRemoveFramedAreaRejectsUnmappedRange(t *testing.T) {
	ms := newTestSet(16)
	ms.InsertFramedArea(0, 4, PermR)

	if err := ms.RemoveFramedArea(2, 6); err == nil {
		t.Fatal("removal spanning past the end of the mapped region should fail")
	}
	// Nothing should have been unmapped by the failed attempt.
	for vpn := pagetable.VPN(0); vpn < 4; vpn++ {
		if _, _, ok := ms.Translate(vpn); !ok {
			t.Fatalf("vpn %d should still be mapped after a rejected removal", vpn)
		}
	}
}

func TestRemoveFramedAreaIsPageGranular(t *testing.T) {
	ms := newTestSet(16)
	ms.InsertFramedArea(0, 6, PermR|PermW)

	// Removing a middle sub-range should split the area in two, leaving
	// its neighbors mapped on either side.
	if err := ms.RemoveFramedArea(2, 4); err != nil {
		t.Fatalf("middle removal: %v", err)
	}
	for _, vpn := range []pagetable.VPN{0, 1, 4, 5} {
		if _, _, ok := ms.Translate(vpn); !ok {
			t.Fatalf("vpn %d should remain mapped after a middle removal", vpn)
		}
	}
	for _, vpn := range []pagetable.VPN{2, 3} {
		if _, _, ok := ms.Translate(vpn); ok {
			t.Fatalf("vpn %d should be unmapped after a middle removal", vpn)
		}
	}

	// The two surviving halves should each still behave like ordinary
	// areas: a further removal confined to one half must not disturb the
	// other.
	if err := ms.RemoveFramedArea(0, 2); err != nil {
		t.Fatalf("prefix removal: %v", err)
	}
	if _, _, ok := ms.Translate(4); !ok {
		t.Fatal("vpn 4 should still be mapped after trimming the unrelated prefix area")
	}
	if err := ms.RemoveFramedArea(4, 6); err != nil {
		t.Fatalf("suffix removal: %v", err)
	}
	if _, _, ok := ms.Translate(5); ok {
		t.Fatal("vpn 5 should be unmapped after the final removal")
	}
}

func TestBrkGrowAndShrink(t *testing.T) {
	ms := newTestSet(16)
	ms.SetHeap(0x1000)

	old, err := ms.Brk(int64(pagetable.PageSize))
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if old != 0x1000 {
		t.Fatalf("old brk = 0x%x, want 0x1000", old)
	}
	if _, _, ok := ms.Translate(pagetable.VPN(0x1000 / pagetable.PageSize)); !ok {
		t.Fatal("heap page should be mapped after growth")
	}

	if _, err := ms.Brk(-int64(pagetable.PageSize)); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if _, _, ok := ms.Translate(pagetable.VPN(0x1000 / pagetable.PageSize)); ok {
		t.Fatal("heap page should be unmapped after shrink")
	}

	if _, err := ms.Brk(-int64(pagetable.PageSize) * 100); err == nil {
		t.Fatal("shrinking below heap base should fail")
	}
}

func TestCloneDeepCopiesContents(t *testing.T) {
	ms := newTestSet(16)
	a, _ := ms.InsertFramedArea(0, 1, PermR|PermW)
	frame := a.frames[0]
	page := ms.Page(frame)
	page[0] = 0x42

	clone, err := ms.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	cloneFrame, _, ok := clone.Translate(0)
	if !ok {
		t.Fatal("clone missing area mapping")
	}
	if clone.Page(cloneFrame)[0] != 0x42 {
		t.Fatal("clone did not copy page contents")
	}

	// Mutating the parent after Clone must not affect the child.
	page[0] = 0x99
	if clone.Page(cloneFrame)[0] != 0x42 {
		t.Fatal("clone shares backing storage with parent")
	}
}
