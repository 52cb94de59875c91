package pagetable

import "testing"

func TestVAddrToVPNRoundTrip(t *testing.T) {
	addr := uint64(0x12345)
	vpn, offset := VAddrToVPN(addr)
	if got := VPNToVAddr(vpn) + offset; got != addr {
		t.Fatalf("round trip: got 0x%x, want 0x%x", got, addr)
	}
	if offset != addr&PageSizeMask {
		t.Fatalf("offset = %d, want %d", offset, addr&PageSizeMask)
	}
}

func TestCeilVPN(t *testing.T) {
	if got := CeilVPN(0); got != 0 {
		t.Fatalf("CeilVPN(0) = %d, want 0", got)
	}
	if got := CeilVPN(1); got != 1 {
		t.Fatalf("CeilVPN(1) = %d, want 1", got)
	}
	if got := CeilVPN(PageSize); got != 1 {
		t.Fatalf("CeilVPN(PageSize) = %d, want 1", got)
	}
}

func TestSimTableMapTranslateUnmap(t *testing.T) {
	tbl := NewSimTable()

	if _, _, ok := tbl.Translate(5); ok {
		t.Fatal("translate of unmapped vpn should fail")
	}

	tbl.Map(5, 42, PermR|PermW)
	frame, perm, ok := tbl.Translate(5)
	if !ok || frame != 42 || perm != PermR|PermW {
		t.Fatalf("translate after map: frame=%d perm=%d ok=%v", frame, perm, ok)
	}

	tbl.Unmap(5)
	if _, _, ok := tbl.Translate(5); ok {
		t.Fatal("translate after unmap should fail")
	}
}
