// Package tlb models the fixed-size software-refilled TLB spec.md §4.6
// and §4.7's as_activate describe: a small array of entries, each either
// invalid or mapping one virtual page to a physical frame with a dirty
// (writable) bit. Grounded on original_source's arch/mips/mips/vm.c TLB
// refill loop (scan for an invalid slot via TLB_Read, else pick one at
// random via TLB_Random) and on the teacher's Tlbshoot/tlb_shootdown
// naming for invalidation. Single-CPU here, so there is no cross-CPU
// shootdown to perform — mutation happens only while critsec is held,
// per spec.md §5.
package tlb

import "math/rand"

// NumEntries is the number of slots in the software TLB. OS/161's MIPS
// target has 64 hardware TLB entries; this port keeps the same count.
const NumEntries = 64

/// Entry is one TLB slot.
type Entry struct {
	Valid bool
	Dirty bool // writable
	VPN   uint32
	Frame uint32
}

/// TLB is the fixed-size, single-CPU software TLB.
type TLB struct {
	entries [NumEntries]Entry
}

/// New constructs an all-invalid TLB.
func New() *TLB {
	return &TLB{}
}

/// Lookup finds a valid entry mapping vpn, if any.
func (t *TLB) Lookup(vpn uint32) (Entry, bool) {
	for _, e := range t.entries {
		if e.Valid && e.VPN == vpn {
			return e, true
		}
	}
	return Entry{}, false
}

/// Write installs an entry for vpn->frame, preferring the first invalid
/// slot; if all are valid, overwrites a slot chosen uniformly at random
/// (TLB_Random), matching the refill loop's "find invalid else random"
/// policy.
func (t *TLB) Write(vpn, frame uint32, dirty bool) {
	for i := range t.entries {
		if !t.entries[i].Valid {
			t.entries[i] = Entry{Valid: true, Dirty: dirty, VPN: vpn, Frame: frame}
			return
		}
	}
	i := rand.Intn(NumEntries)
	t.entries[i] = Entry{Valid: true, Dirty: dirty, VPN: vpn, Frame: frame}
}

/// Invalidate clears any entry mapping vpn, e.g. after a page is
/// evicted or swapped out from under it.
func (t *TLB) Invalidate(vpn uint32) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VPN == vpn {
			t.entries[i] = Entry{}
		}
	}
}

/// InvalidateAll clears every entry, used by as_activate (the kernel has
/// no address-space identifiers to disambiguate stale entries across a
/// context switch).
func (t *TLB) InvalidateAll() {
	for i := range t.entries {
		t.entries[i] = Entry{}
	}
}
