// Package coremap inventories every physical frame and backs demand
// paging with a flat swap file: allocation, random-victim eviction, and
// fetch-on-fault. This is the largest single port in the kernel
// (spec.md §2 budgets it at roughly a quarter of the source).
//
// Grounded on the teacher's mem.Physmem_t (a free-list-linked Physpg_t
// array with Refup/Refdown reference counting, _phys_new/_phys_put),
// generalized from that refcounted-free-list design to the explicit
// four-state FREE/FIXED/DIRTY/CLEAN model spec.md §3 specifies, and
// directly on original_source/os161/kern/arch/mips/mips/vm.c's
// alloc_one_page/alloc_npages/evict_or_swap/free_kpages for the
// scan-then-evict algorithm, including the two source-bug fixes spec.md
// §9 calls out: alloc_npages's unreachable num_continuous==npages
// assertion is replaced by the specified "evict when a contiguous run
// isn't free" policy, and evict_or_swap_with_avoidance's de Morgan bug
// (!= where && of two == was meant) is implemented as the correct
// skip-if-FIXED-or-FREE-or-is-the-avoid-address check.
//
// A coremap entry never owns its address space: Owner is a PTEWriter, a
// typed handle used only to reach back into the owning address space's
// page table when eviction or fetch must update a PTE — never to walk
// or free that address space's own state. That split is spec.md §9's
// "manual pointer graph" design note made concrete.
package coremap

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/mem"
	"github.com/ilovaca/ece344/biscuit/src/swapfile"
)

/// State is the lifecycle state of one physical frame (spec.md §3).
type State int

const (
	/// FREE frames are reclaimable without I/O.
	FREE State = iota
	/// FIXED frames are kernel-owned and never evicted.
	FIXED
	/// DIRTY user frames differ from any swap copy.
	DIRTY
	/// CLEAN user frames are identical to their swap copy.
	CLEAN
	/// evicting is a transient reservation state: the frame has been
	/// picked as a victim and its content is being written out, but it
	/// is not yet FREE. Never observable outside this package.
	evicting
)

var stateNames = [...]string{FREE: "FREE", FIXED: "FIXED", DIRTY: "DIRTY", CLEAN: "CLEAN", evicting: "evicting"}

/// String renders a frame state by name, for diagnostics.
func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(?)"
}

/// PTEWriter is the callback boundary a coremap frame's owner implements
/// so eviction and fetch can update the one PTE that maps a frame,
/// without coremap ever walking or owning that address space's page
/// tables. Implemented by vm.AddressSpace.
type PTEWriter interface {
	/// WritePTE installs pte as the mapping for va in the owner's page
	/// table. va is always page-aligned.
	WritePTE(va uint, pte mem.Pte_t)
	/// InvalidateTLB removes any cached translation for va.
	InvalidateTLB(va uint)
}

/// Frame is one physical-frame coremap entry.
type Frame struct {
	State    State
	Owner    PTEWriter
	Vaddr    uint
	NumPages int // meaningful only at the base frame of a multi-page run
}

/// Coremap is the in-RAM table of every physical frame, plus the swap
/// bitmap backing demand paging. One instance exists per kernel, created
/// once at Bootstrap and never destroyed (spec.md §9's "global mutable
/// state" design note).
type Coremap struct {
	mu      sync.Mutex // guards frames; paired with critsec for spec-fidelity bracketing
	frames  []Frame
	store   []mem.Page_t
	backend swapfile.Backend

	swap swapBitmap

	evictions int64
}

/// Bootstrap inventories numPages physical frames and wires backend as
/// the swap I/O target, matching spec.md §4.5: the first
/// ceil(sizeof(coremap)/PAGE_SIZE)+1 frames are FIXED (the coremap "owns
/// itself"); fixedPages lets the caller size that reservation instead of
/// computing sizeof on a Go slice, which has no fixed on-disk size.
func Bootstrap(numPages int, fixedPages int, backend swapfile.Backend, swapSlots int) *Coremap {
	cm := &Coremap{
		frames:  make([]Frame, numPages),
		store:   make([]mem.Page_t, numPages),
		backend: backend,
		swap:    newSwapBitmap(swapSlots),
	}
	for i := 0; i < fixedPages && i < numPages; i++ {
		cm.frames[i] = Frame{State: FIXED}
	}
	return cm
}

/// NumFrames reports the total frame count.
func (cm *Coremap) NumFrames() int {
	return len(cm.frames)
}

/// FrameState reports frame i's state, for tests and diagnostics.
func (cm *Coremap) FrameState(i int) State {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.frames[i].State
}

/// Counts tallies frames by state, for the invariants spec.md §8 checks
/// and for diag's profile export.
func (cm *Coremap) Counts() (free, fixed, dirty, clean int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, f := range cm.frames {
		switch f.State {
		case FREE:
			free++
		case FIXED:
			fixed++
		case DIRTY:
			dirty++
		case CLEAN:
			clean++
		}
	}
	return
}

/// Evictions reports the number of completed evictions, for diagnostics.
func (cm *Coremap) Evictions() int64 {
	return atomic.LoadInt64(&cm.evictions)
}

/// ReadPage copies frame pa's content into dst.
func (cm *Coremap) ReadPage(pa mem.Pa_t, dst *mem.Page_t) {
	cm.mu.Lock()
	*dst = cm.store[mem.PaToFrame(pa)]
	cm.mu.Unlock()
}

/// WritePage overwrites frame pa's content with src.
func (cm *Coremap) WritePage(pa mem.Pa_t, src *mem.Page_t) {
	cm.mu.Lock()
	cm.store[mem.PaToFrame(pa)] = *src
	cm.mu.Unlock()
}

/// CopyPage copies src's content onto dst, used by as_copy so the
/// destination page is byte-identical to the source without aliasing it.
func (cm *Coremap) CopyPage(dst, src mem.Pa_t) {
	cm.mu.Lock()
	cm.store[mem.PaToFrame(dst)] = cm.store[mem.PaToFrame(src)]
	cm.mu.Unlock()
}

// allocOneLocked finds the first FREE frame without evicting. Caller
// holds cm.mu.
func (cm *Coremap) allocOneLocked() (int, bool) {
	for i := range cm.frames {
		if cm.frames[i].State == FREE {
			return i, true
		}
	}
	return -1, false
}

func (cm *Coremap) claimLocked(idx int, owner PTEWriter, va uint, state State, npages int) {
	cm.frames[idx] = Frame{State: state, Owner: owner, Vaddr: va, NumPages: npages}
}

/// allocOne obtains one FREE frame, evicting a victim if none is free,
/// and claims it under owner/va/state. Matches spec.md §4.5's
/// alloc_kpages(1)/alloc_page_userspace single-page path.
func (cm *Coremap) allocOne(owner PTEWriter, va uint, state State) (int, defs.Err_t) {
	spl := critsec.Splhigh()
	cm.mu.Lock()
	idx, ok := cm.allocOneLocked()
	if ok {
		cm.claimLocked(idx, owner, va, state, 1)
		cm.mu.Unlock()
		critsec.Splx(spl)
		return idx, 0
	}
	cm.mu.Unlock()
	critsec.Splx(spl)

	idx, err := cm.evictVictim(va, owner)
	if err != 0 {
		return -1, err
	}

	spl = critsec.Splhigh()
	cm.mu.Lock()
	cm.claimLocked(idx, owner, va, state, 1)
	cm.mu.Unlock()
	critsec.Splx(spl)
	return idx, 0
}

/// AllocKpages allocates n physically contiguous kernel-owned (FIXED)
/// frames, per spec.md §4.5: n==1 takes the single-page path; n>1 first
/// looks for n contiguous FREE frames, and failing that, n contiguous
/// non-FIXED frames to evict in place, recording NumPages in every frame
/// of the run so FreeKpages can recover the run length from the base
/// frame alone.
func (cm *Coremap) AllocKpages(n int) (mem.Pa_t, defs.Err_t) {
	if n <= 0 {
		panic("coremap: AllocKpages n <= 0")
	}
	if n == 1 {
		idx, err := cm.allocOne(nil, 0, FIXED)
		if err != 0 {
			return 0, err
		}
		return mem.FrameToPa(uint32(idx)), 0
	}
	return cm.allocRun(n)
}

func (cm *Coremap) findContiguous(n int, pred func(Frame) bool) (int, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	run := 0
	for i := 0; i < len(cm.frames); i++ {
		if pred(cm.frames[i]) {
			run++
			if run == n {
				return i - n + 1, true
			}
		} else {
			run = 0
		}
	}
	return -1, false
}

func (cm *Coremap) allocRun(n int) (mem.Pa_t, defs.Err_t) {
	base, ok := cm.findContiguous(n, func(f Frame) bool { return f.State == FREE })
	if !ok {
		base, ok = cm.findContiguous(n, func(f Frame) bool { return f.State != FIXED })
		if !ok {
			return 0, -defs.ENOMEM
		}
		for i := base; i < base+n; i++ {
			st := cm.FrameState(i)
			if st == FREE {
				continue
			}
			if err := cm.evictIndex(i); err != 0 {
				return 0, err
			}
		}
	}
	spl := critsec.Splhigh()
	cm.mu.Lock()
	for i := base; i < base+n; i++ {
		cm.frames[i] = Frame{State: FIXED, NumPages: n}
	}
	cm.mu.Unlock()
	critsec.Splx(spl)
	return mem.FrameToPa(uint32(base)), 0
}

/// AllocUserPage allocates one frame on behalf of a user address space,
/// marking it DIRTY and recording owner/va so eviction can later update
/// the right PTE. Returns the physical address; the caller installs it
/// into a PTE (spec.md §4.5).
func (cm *Coremap) AllocUserPage(owner PTEWriter, va uint) (mem.Pa_t, defs.Err_t) {
	idx, err := cm.allocOne(owner, va, DIRTY)
	if err != 0 {
		return 0, err
	}
	var zero mem.Page_t
	cm.WritePage(mem.FrameToPa(uint32(idx)), &zero)
	return mem.FrameToPa(uint32(idx)), 0
}

/// FreeKpages returns a run of kernel frames to FREE given the base
/// physical address, recovering the run length from NumPages recorded
/// at that frame when it was allocated. An address not corresponding to
/// a frame base is a kernel bug (panic), matching spec.md §7.
func (cm *Coremap) FreeKpages(pa mem.Pa_t) defs.Err_t {
	idx := int(mem.PaToFrame(pa))
	spl := critsec.Splhigh()
	cm.mu.Lock()
	defer cm.mu.Unlock()
	defer critsec.Splx(spl)
	if idx < 0 || idx >= len(cm.frames) {
		panic("coremap: FreeKpages: address out of range")
	}
	f := cm.frames[idx]
	if f.State != FIXED || f.NumPages == 0 {
		panic("coremap: FreeKpages: not a frame base")
	}
	for i := idx; i < idx+f.NumPages; i++ {
		cm.frames[i] = Frame{State: FREE}
	}
	return 0
}

/// FreeOwned releases every frame owned by owner — DIRTY or CLEAN user
/// pages belonging to an address space being destroyed (spec.md §4.7
/// as_destroy). It does not touch the swap bitmap; the caller (vm) is
/// responsible for clearing swap-bitmap bits for any of its PTEs that
/// are SWAPPED, since only the address space knows which PTEs those are.
func (cm *Coremap) FreeOwned(owner PTEWriter) {
	spl := critsec.Splhigh()
	cm.mu.Lock()
	defer cm.mu.Unlock()
	defer critsec.Splx(spl)
	for i := range cm.frames {
		if (cm.frames[i].State == DIRTY || cm.frames[i].State == CLEAN) && cm.frames[i].Owner == owner {
			cm.frames[i] = Frame{State: FREE}
		}
	}
}

// pickVictimLocked chooses a victim frame uniformly at random among
// frames that are neither FIXED, FREE, nor transiently evicting, and
// that are not the (owner, vaddr) pair the caller wants to avoid
// stealing from itself. This is the corrected form of the source's
// evict_or_swap_with_avoidance, which used != where && of two ==
// checks was intended (spec.md §9): skip a frame if it is FIXED, or
// FREE, or exactly the avoid address.
func (cm *Coremap) pickVictimLocked(avoidVa uint, avoidOwner PTEWriter) (int, bool) {
	var candidates []int
	for i, f := range cm.frames {
		if f.State == FIXED || f.State == FREE || f.State == evicting {
			continue
		}
		if f.Owner == avoidOwner && f.Vaddr == avoidVa && avoidOwner != nil {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return -1, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

/// evictVictim picks a random eligible victim and evicts it (spec.md
/// §4.5 evict_or_swap), returning the now-FREE frame's index.
func (cm *Coremap) evictVictim(avoidVa uint, avoidOwner PTEWriter) (int, defs.Err_t) {
	spl := critsec.Splhigh()
	cm.mu.Lock()
	idx, ok := cm.pickVictimLocked(avoidVa, avoidOwner)
	if !ok {
		cm.mu.Unlock()
		critsec.Splx(spl)
		return -1, -defs.ENOMEM
	}
	prev := cm.frames[idx].State
	cm.frames[idx].State = evicting
	cm.mu.Unlock()
	critsec.Splx(spl)

	if err := cm.writeOutAndRelease(idx, prev); err != 0 {
		return -1, err
	}
	return idx, 0
}

/// evictIndex forces eviction of a specific frame (used by alloc_kpages'
/// n>1 path, which must reclaim particular frames to get contiguity, not
/// an arbitrary victim).
func (cm *Coremap) evictIndex(idx int) defs.Err_t {
	cm.mu.Lock()
	st := cm.frames[idx].State
	if st == FREE {
		cm.mu.Unlock()
		return 0
	}
	cm.frames[idx].State = evicting
	cm.mu.Unlock()
	return cm.writeOutAndRelease(idx, st)
}

// writeOutAndRelease performs the (potentially blocking) swap I/O for a
// frame already marked evicting, then frees it; prev is the state the
// frame had before it was marked evicting. Holding no lock across
// the I/O matches spec.md §5: swap I/O is a suspension point and must
// not run with interrupt priority raised.
func (cm *Coremap) writeOutAndRelease(idx int, prev State) defs.Err_t {
	cm.mu.Lock()
	f := cm.frames[idx]
	cm.mu.Unlock()
	f.State = prev

	if f.State == DIRTY {
		slot, ok := cm.swap.alloc()
		if !ok {
			cm.mu.Lock()
			cm.frames[idx] = f
			cm.mu.Unlock()
			return -defs.ENOMEM
		}
		var page mem.Page_t
		cm.ReadPage(mem.FrameToPa(uint32(idx)), &page)
		if err := cm.backend.WriteSlot(slot, &page); err != nil {
			panic("coremap: swap write failed: " + err.Error())
		}
		if f.Owner != nil {
			f.Owner.WritePTE(f.Vaddr, mem.MkSwappedPte(slot))
			f.Owner.InvalidateTLB(f.Vaddr)
		}
	}
	// CLEAN frames already have a valid swap copy; no I/O needed, and
	// the PTE was already left pointing at that slot by whichever
	// earlier eviction produced the CLEAN state.

	atomic.AddInt64(&cm.evictions, 1)
	spl := critsec.Splhigh()
	cm.mu.Lock()
	cm.frames[idx] = Frame{State: FREE}
	cm.mu.Unlock()
	critsec.Splx(spl)
	return 0
}

/// FetchPage reads swap slot into a freshly obtained FREE frame, marks
/// it DIRTY, and clears the slot from the swap bitmap (spec.md §4.5
/// fetch_page). The caller (vm's fault handler) installs the returned
/// physical address into the faulting PTE as PRESENT.
func (cm *Coremap) FetchPage(owner PTEWriter, va uint, slot uint32) (mem.Pa_t, defs.Err_t) {
	idx, err := cm.allocOne(owner, va, DIRTY)
	if err != 0 {
		return 0, err
	}
	var page mem.Page_t
	if rerr := cm.backend.ReadSlot(slot, &page); rerr != nil {
		panic("coremap: swap read failed: " + rerr.Error())
	}
	cm.WritePage(mem.FrameToPa(uint32(idx)), &page)
	cm.swap.free(slot)
	return mem.FrameToPa(uint32(idx)), 0
}

/// AllocSwapSlot reserves a swap slot outside the normal eviction path.
/// vm's as_copy does not call it: it reads a SWAPPED source page with
/// ReadSwapSlot and leaves the source PTE's own slot untouched.
func (cm *Coremap) AllocSwapSlot() (uint32, defs.Err_t) {
	slot, ok := cm.swap.alloc()
	if !ok {
		return 0, -defs.ENOMEM
	}
	return slot, 0
}

/// FreeSwapSlot clears slot's occupancy bit. Called by vm.as_destroy for
/// every SWAPPED PTE it tears down, since only the owning address space
/// knows which slots its own page table references.
func (cm *Coremap) FreeSwapSlot(slot uint32) {
	cm.swap.free(slot)
}

/// ReadSwapSlot and WriteSwapSlot let vm perform swap I/O directly for
/// operations the coremap itself does not mediate (as_copy fetching a
/// source page without going through FetchPage's allocation side
/// effects on the source address space).
func (cm *Coremap) ReadSwapSlot(slot uint32, page *mem.Page_t) {
	if err := cm.backend.ReadSlot(slot, page); err != nil {
		panic("coremap: swap read failed: " + err.Error())
	}
}

func (cm *Coremap) WriteSwapSlot(slot uint32, page *mem.Page_t) {
	if err := cm.backend.WriteSlot(slot, page); err != nil {
		panic("coremap: swap write failed: " + err.Error())
	}
}

// swapBitmap tracks swap-slot occupancy. Guarded by its own mutex rather
// than critsec or cm.mu: bitmap scans are pure bookkeeping, independent
// of frame state, and giving them their own narrow lock keeps alloc/free
// cheap without serializing on the coremap's own critical section.
type swapBitmap struct {
	mu     sync.Mutex
	bits   []bool
	cursor int
}

func newSwapBitmap(capacity int) swapBitmap {
	return swapBitmap{bits: make([]bool, capacity)}
}

func (s *swapBitmap) alloc() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.bits)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		if !s.bits[idx] {
			s.bits[idx] = true
			s.cursor = idx + 1
			return uint32(idx), true
		}
	}
	return 0, false
}

func (s *swapBitmap) free(slot uint32) {
	s.mu.Lock()
	s.bits[slot] = false
	s.mu.Unlock()
}

/// SwapUsed reports the number of occupied swap slots, for diagnostics.
func (cm *Coremap) SwapUsed() int {
	cm.swap.mu.Lock()
	defer cm.swap.mu.Unlock()
	n := 0
	for _, b := range cm.swap.bits {
		if b {
			n++
		}
	}
	return n
}

/// SwapCapacity reports the total number of swap slots.
func (cm *Coremap) SwapCapacity() int {
	return len(cm.swap.bits)
}

/// Snapshot returns a copy of every frame's current state, in
/// frame-index order. Read-only access to otherwise-private coremap
/// state, for diag's pprof export.
func (cm *Coremap) Snapshot() []Frame {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return append([]Frame(nil), cm.frames...)
}
