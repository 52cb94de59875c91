// Package pagetable models address translation for a simulated process
// address space: a page table mapping virtual page numbers to physical
// frames, without touching any real MMU.
package pagetable

const (
	// PageSizeBits is the page size exponent; pages are 4 KiB.
	PageSizeBits = 12
	// PageSize is the page size in bytes.
	PageSize = 1 << PageSizeBits
	// PageSizeMask masks the in-page offset out of a virtual address.
	PageSizeMask = PageSize - 1
)

// VPN is a virtual page number.
type VPN uint64

// Frame is a physical page frame number.
type Frame uint64

// PermR/W/X/U mirror the permission bits carried in a page table entry.
const (
	PermR = 1 << iota
	PermW
	PermX
	PermU
)

// VAddrToVPN splits a virtual address into its page number and in-page
// offset.
func VAddrToVPN(addr uint64) (VPN, uint64) {
	return VPN(addr >> PageSizeBits), addr & PageSizeMask
}

// VPNToVAddr reassembles a page-aligned virtual address from a VPN.
func VPNToVAddr(vpn VPN) uint64 { return uint64(vpn) << PageSizeBits }

// CeilVPN returns the smallest VPN whose page start is >= addr.
func CeilVPN(addr uint64) VPN {
	return VPN((addr + PageSize - 1) >> PageSizeBits)
}

// entry is one page table entry: the mapped frame plus permission bits.
type entry struct {
	frame Frame
	perm  uint8
	valid bool
}

// Table is a process's page table: a sparse VPN -> frame map, standing in
// for the architecture-specific multi-level page table the real kernel
// would walk in hardware. Implementations need not be safe for concurrent
// use; callers serialize access through the owning address space's lock.
type Table interface {
	// Map installs a VPN -> frame translation with the given permission bits.
	Map(vpn VPN, frame Frame, perm uint8)

	// Unmap removes any translation for vpn. A no-op if vpn isn't mapped.
	Unmap(vpn VPN)

	// Translate returns the frame and permission bits mapped for vpn, and
	// whether a mapping exists at all.
	Translate(vpn VPN) (frame Frame, perm uint8, ok bool)
}

// SimTable is the default, map-backed Table implementation.
type SimTable struct {
	entries map[VPN]entry
}

// NewSimTable returns an empty page table.
func NewSimTable() *SimTable {
	return &SimTable{entries: make(map[VPN]entry)}
}

func (t *SimTable) Map(vpn VPN, frame Frame, perm uint8) {
	t.entries[vpn] = entry{frame: frame, perm: perm, valid: true}
}

func (t *SimTable) Unmap(vpn VPN) {
	delete(t.entries, vpn)
}

func (t *SimTable) Translate(vpn VPN) (Frame, uint8, bool) {
	e, ok := t.entries[vpn]
	if !ok || !e.valid {
		return 0, 0, false
	}
	return e.frame, e.perm, true
}
