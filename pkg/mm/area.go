package mm

import "github.com/easykernel/easykernel/pkg/pagetable"

// Area is a contiguous virtual page range, uniformly permissioned, backed
// by frames the area itself owns (one frame per resident page).
//
// INVARIANT: len(frames) == int(endVPN-startVPN)
type Area struct {
	startVPN pagetable.VPN
	endVPN   pagetable.VPN
	perm     uint8
	frames   map[pagetable.VPN]pagetable.Frame
}

func newArea(start, end pagetable.VPN, perm uint8) *Area {
	return &Area{startVPN: start, endVPN: end, perm: perm, frames: make(map[pagetable.VPN]pagetable.Frame)}
}

// Contains reports whether vpn falls within this area's range.
func (a *Area) Contains(vpn pagetable.VPN) bool {
	return vpn >= a.startVPN && vpn < a.endVPN
}

// Overlaps reports whether [start, end) shares any page with this area.
func (a *Area) Overlaps(start, end pagetable.VPN) bool {
	return start < a.endVPN && end > a.startVPN
}

// StartVPN and EndVPN expose the area's page range.
func (a *Area) StartVPN() pagetable.VPN { return a.startVPN }
func (a *Area) EndVPN() pagetable.VPN   { return a.endVPN }

// Permission returns the area's permission bit set.
func (a *Area) Permission() uint8 { return a.perm }
