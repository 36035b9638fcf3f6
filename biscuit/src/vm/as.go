// Package vm implements a process address space: an ordered region
// list, a two-level 1024x1024 page table, the implicit heap and stack,
// demand-paging fault handling, and the as_create/as_destroy/as_copy/
// as_define_region/as_prepare_load/as_complete_load/as_define_stack/
// as_activate operations of spec.md §4.7.
//
// Grounded on the teacher's vm.Vm_t — the region list (Vmregion_t), the
// Pmap/P_pmap pair, the Lock_pmap/Unlock_pmap/Lockassert_pmap pattern
// guarding page-table mutation, and Sys_pgfault/Page_insert/Uvmfree —
// generalized from biscuit's four-level, copy-on-write, file-mapping
// x86-64 PML4 address space down to spec.md §3's simpler two-level,
// anonymous-only, region-plus-implicit-stack-plus-heap model, and on
// original_source/os161/kern/vm/addrspace.c + mips/mips/vm.c's
// vm_fault/handle_vaddr_fault for the region-then-stack-then-heap lookup
// order and the exact two-level index extraction this port's PTEs use.
package vm

import (
	"github.com/ilovaca/ece344/biscuit/src/coremap"
	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/mem"
	"github.com/ilovaca/ece344/biscuit/src/tlb"
	"github.com/ilovaca/ece344/biscuit/src/util"
)

/// Region is a contiguous range of virtual pages with uniform
/// permissions (spec.md §3). scratch* hold the original permissions
/// while PrepareLoad has temporarily widened them for the ELF loader.
type Region struct {
	Vbase  uint
	Npages uint
	R, W, X bool

	scratchR, scratchW, scratchX bool
	scratchSaved                 bool
}

/// End returns the first address past the region.
func (r Region) End() uint {
	return r.Vbase + r.Npages*uint(mem.PGSIZE)
}

/// FaultType classifies a page fault (spec.md §4.6).
type FaultType int

const (
	FaultRead FaultType = iota
	FaultWrite
	FaultReadonly
)

/// AddressSpace is a process's view of virtual memory: regions, heap
/// bounds, and a two-level page table. lockPmap/unlockPmap bracket the
/// same sections the teacher's Lock_pmap/Unlock_pmap pair protects
/// (Vmregion, Pmap, and page-table contents), built on critsec rather
/// than a private mutex so that a coremap eviction's callback into this
/// same address space's WritePTE — on the same goroutine's call stack,
/// mid-Fault — re-enters instead of deadlocking (critsec is reentrant
/// per goroutine; see critsec's package doc). pgfltaken mirrors the
/// teacher's own "is a fault being handled right now" assertion flag.
type AddressSpace struct {
	regions   []Region
	heapStart uint
	heapEnd   uint
	dir       mem.PDir

	cm  *coremap.Coremap
	tlb *tlb.TLB

	pgfltaken bool
}

/// New constructs an empty address space (as_create): no regions, a
/// zero heap, and an all-nil page-table directory.
func New(cm *coremap.Coremap, t *tlb.TLB) *AddressSpace {
	return &AddressSpace{cm: cm, tlb: t}
}

func (as *AddressSpace) lockPmap() critsec.Spl_t {
	spl := critsec.Splhigh()
	as.pgfltaken = true
	return spl
}

func (as *AddressSpace) unlockPmap(spl critsec.Spl_t) {
	critsec.Splx(spl)
	if !critsec.Curspl() {
		as.pgfltaken = false
	}
}

func (as *AddressSpace) lockassertPmap() {
	if !as.pgfltaken {
		panic("vm: pmap lock must be held")
	}
}

/// DefineRegion appends a page-aligned region (as_define_region). The
/// second region ever defined initializes heap_start/heap_end to its
/// end address, per spec.md §4.7 ("the top of the second defined
/// region (bss end)").
func (as *AddressSpace) DefineRegion(vbase, sz uint, r, w, x bool) defs.Err_t {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)

	base := util.Rounddown(vbase, uint(mem.PGSIZE))
	end := util.Roundup(vbase+sz, uint(mem.PGSIZE))
	npages := (end - base) / uint(mem.PGSIZE)

	for _, ex := range as.regions {
		if base < ex.End() && ex.Vbase < end {
			return -defs.EINVAL
		}
	}

	as.regions = append(as.regions, Region{Vbase: base, Npages: npages, R: r, W: w, X: x})
	if len(as.regions) == 2 {
		as.heapStart = end
		as.heapEnd = end
	}
	return 0
}

/// PrepareLoad widens every defined region to read+write so the ELF
/// loader (an external collaborator, spec.md §1) can write text/bss
/// contents regardless of their final permissions, saving the original
/// bits in scratch fields (as_prepare_load).
func (as *AddressSpace) PrepareLoad() {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	for i := range as.regions {
		r := &as.regions[i]
		r.scratchR, r.scratchW, r.scratchX = r.R, r.W, r.X
		r.scratchSaved = true
		r.R, r.W = true, true
	}
}

/// CompleteLoad restores the permissions PrepareLoad saved
/// (as_complete_load).
func (as *AddressSpace) CompleteLoad() {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	for i := range as.regions {
		r := &as.regions[i]
		if !r.scratchSaved {
			continue
		}
		r.R, r.W, r.X = r.scratchR, r.scratchW, r.scratchX
		r.scratchSaved = false
	}
}

/// DefineStack returns the fixed initial user stack pointer
/// (as_define_stack); the stack itself is implicit (the STACK_PAGES
/// pages immediately below USERSTACK) and never appears in as.regions.
func (as *AddressSpace) DefineStack() uint {
	return defs.USERSTACK
}

/// Activate invalidates every TLB entry, matching the kernel's lack of
/// address-space identifiers (as_activate): any cached translation
/// might belong to a different address space after a context switch.
func (as *AddressSpace) Activate() {
	as.tlb.InvalidateAll()
}

func stackBase() uint {
	return defs.USERSTACK - defs.STACK_PAGES*uint(mem.PGSIZE)
}

// lookupRegion finds the region, stack, or heap band containing va, in
// the order spec.md §4.6 specifies: user-defined regions first, then
// the stack, then the heap.
func (as *AddressSpace) lookupRegion(va uint) (perm Region, ok bool) {
	for _, r := range as.regions {
		if va >= r.Vbase && va < r.End() {
			return r, true
		}
	}
	if va >= stackBase() && va < defs.USERSTACK {
		return Region{Vbase: stackBase(), Npages: defs.STACK_PAGES, R: true, W: true}, true
	}
	if as.heapStart != as.heapEnd && va >= as.heapStart && va < as.heapEnd {
		return Region{Vbase: as.heapStart, Npages: (as.heapEnd - as.heapStart) / uint(mem.PGSIZE), R: true, W: true}, true
	}
	return Region{}, false
}

// pteSlot returns a pointer to the PTE for va, allocating and zeroing
// the second-level table if create is true and it is absent.
func (as *AddressSpace) pteSlot(va uint, create bool) *mem.Pte_t {
	as.lockassertPmap()
	l1 := mem.L1Index(va)
	if as.dir[l1] == nil {
		if !create {
			return nil
		}
		as.dir[l1] = &mem.PT{}
	}
	l2 := mem.L2Index(va)
	return &as.dir[l1][l2]
}

/// WritePTE implements coremap.PTEWriter: install pte as va's mapping.
/// Called back by the coremap only while evicting or fetching a page
/// this address space owns.
func (as *AddressSpace) WritePTE(va uint, pte mem.Pte_t) {
	spl := as.lockPmap()
	defer as.unlockPmap(spl)
	p := as.pteSlot(va, true)
	*p = pte
}

/// InvalidateTLB implements coremap.PTEWriter.
func (as *AddressSpace) InvalidateTLB(va uint) {
	as.tlb.Invalidate(uint32(va >> mem.PGSHIFT))
}

/// Fault handles a page fault at va (spec.md §4.6): locate the
/// containing region/stack/heap band, walk (and grow) the two-level
/// page table, resolve the PTE (present, swapped, or demand-zero), and
/// install a TLB entry. Runs with interrupt priority raised throughout,
/// so no concurrent TLB or coremap mutation can interleave.
func (as *AddressSpace) Fault(ftype FaultType, faultVa uint) defs.Err_t {
	if ftype == FaultReadonly {
		return -defs.EFAULT
	}
	va := util.Rounddown(faultVa, uint(mem.PGSIZE))

	spl := as.lockPmap()
	defer as.unlockPmap(spl)

	region, ok := as.lookupRegion(va)
	if !ok {
		return -defs.EFAULT
	}

	pte := as.pteSlot(va, true)
	var frame uint32
	switch {
	case pte.Present():
		frame = pte.Frame()
	case pte.Swapped():
		slot := pte.Frame()
		pa, err := as.cm.FetchPage(as, va, slot)
		if err != 0 {
			return err
		}
		frame = mem.PaToFrame(pa)
		*pte = mem.MkPresentPte(frame)
	default:
		pa, err := as.cm.AllocUserPage(as, va)
		if err != 0 {
			return err
		}
		frame = mem.PaToFrame(pa)
		*pte = mem.MkPresentPte(frame)
	}

	dirty := region.W
	as.tlb.Write(uint32(va>>mem.PGSHIFT), frame, dirty)
	return 0
}

/// Destroy tears down the address space (as_destroy): every coremap
/// frame this address space owns is freed, every SWAPPED PTE's swap
/// slot is released, and the page-table directory is cleared.
func (as *AddressSpace) Destroy() {
	spl := as.lockPmap()
	defer as.unlockPmap(spl)

	as.cm.FreeOwned(as)
	for _, pt := range as.dir {
		if pt == nil {
			continue
		}
		for _, pte := range pt {
			if pte.Swapped() {
				as.cm.FreeSwapSlot(pte.Frame())
			}
		}
	}
	as.dir = mem.PDir{}
	as.regions = nil
	as.heapStart, as.heapEnd = 0, 0
}

/// Copy deep-copies the address space (as_copy, used by fork): regions,
/// heap bounds, and every present or swapped page are duplicated so
/// writes to the copy never perturb the original. A SWAPPED source page
/// is first fetched into memory (without evicting the source's own
/// frame, since the fetch targets a fresh destination frame) before
/// being duplicated, then the fetched copy is itself left resident —
/// the source's own PTE and swap slot are untouched.
func (as *AddressSpace) Copy() (*AddressSpace, defs.Err_t) {
	spl := as.lockPmap()
	defer as.unlockPmap(spl)

	dst := New(as.cm, as.tlb)
	dst.regions = append([]Region(nil), as.regions...)
	dst.heapStart, dst.heapEnd = as.heapStart, as.heapEnd

	dstSpl := dst.lockPmap()
	defer dst.unlockPmap(dstSpl)

	for l1, pt := range as.dir {
		if pt == nil {
			continue
		}
		for l2, pte := range pt {
			if pte.Empty() {
				continue
			}
			va := uint(l1)<<22 | uint(l2)<<12

			var srcPa mem.Pa_t
			switch {
			case pte.Present():
				srcPa = mem.FrameToPa(pte.Frame())
			case pte.Swapped():
				var page mem.Page_t
				as.cm.ReadSwapSlot(pte.Frame(), &page)
				dstPa, err := as.cm.AllocUserPage(dst, va)
				if err != 0 {
					dst.Destroy()
					return nil, err
				}
				as.cm.WritePage(dstPa, &page)
				if dst.dir[l1] == nil {
					dst.dir[l1] = &mem.PT{}
				}
				dst.dir[l1][l2] = mem.MkPresentPte(mem.PaToFrame(dstPa))
				continue
			}

			dstPa, err := as.cm.AllocUserPage(dst, va)
			if err != 0 {
				dst.Destroy()
				return nil, err
			}
			as.cm.CopyPage(dstPa, srcPa)
			if dst.dir[l1] == nil {
				dst.dir[l1] = &mem.PT{}
			}
			dst.dir[l1][l2] = mem.MkPresentPte(mem.PaToFrame(dstPa))
		}
	}

	return dst, 0
}

/// Sbrk moves heap_end by incr bytes (spec.md §4.4 sbrk) and returns the
/// previous heap_end. Fails EINVAL if the new end would fall below
/// heap_start, ENOMEM if it would encroach on the stack band.
func (as *AddressSpace) Sbrk(incr int) (uint, defs.Err_t) {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)

	prev := as.heapEnd
	next := int(as.heapEnd) + incr
	if next < int(as.heapStart) {
		return 0, -defs.EINVAL
	}
	if uint(next) > stackBase() {
		return 0, -defs.ENOMEM
	}
	as.heapEnd = uint(next)
	return prev, 0
}

/// HeapBounds reports the current heap_start/heap_end, for tests.
func (as *AddressSpace) HeapBounds() (uint, uint) {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	return as.heapStart, as.heapEnd
}

/// Regions returns a copy of the defined region list, for tests and
/// diagnostics.
func (as *AddressSpace) Regions() []Region {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	return append([]Region(nil), as.regions...)
}

/// StackBase returns the fixed lower bound of the implicit stack band.
func StackBase() uint {
	return stackBase()
}
