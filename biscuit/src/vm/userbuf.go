package vm

import (
	"sync"

	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/mem"
	"github.com/ilovaca/ece344/biscuit/src/res"
	"github.com/ilovaca/ece344/biscuit/src/util"
)

// copyBudget bounds the kernel-heap bytes in flight across every
// Userbuf transfer system-wide, mirroring the teacher's
// res.Resadd_noblock guard (Uioread/Uiowrite's _tx loop) against a
// runaway copy exhausting kernel memory one page-sized chunk at a time.
var copyBudget = res.NewBudget(map[res.Res_t]int{res.Kmalloc: 1 << 24})

/// Userbuf streams bytes between a user virtual address range and a
/// kernel buffer, one page at a time, taking a page fault (and thus
/// demand-allocating or fetching the backing frame) as needed. Grounded
/// on the teacher's Userbuf_t/_tx, narrowed from that type's
/// page-table-walking Userdmap8_inner to this kernel's Fault+pteSlot
/// path and from biscuit's four-level x86-64 tables to this target's
/// two-level ones (spec.md §4.6).
type Userbuf struct {
	as  *AddressSpace
	uva uint
	len int
	off int
}

/// NewUserbuf constructs a Userbuf over the n bytes starting at uva in as.
func NewUserbuf(as *AddressSpace, uva uint, n int) *Userbuf {
	ub := &Userbuf{}
	ub.Init(as, uva, n)
	return ub
}

/// Init (re-)initializes ub, letting a Userbuf drawn from Ubpool be
/// reused for a new transfer instead of allocated fresh.
func (ub *Userbuf) Init(as *AddressSpace, uva uint, n int) {
	if n < 0 {
		panic("vm: negative user buffer length")
	}
	ub.as = as
	ub.uva = uva
	ub.len = n
	ub.off = 0
}

/// Remain reports the number of bytes not yet transferred.
func (ub *Userbuf) Remain() int {
	return ub.len - ub.off
}

/// Totalsz reports the buffer's total length.
func (ub *Userbuf) Totalsz() int {
	return ub.len
}

/// Uioread copies from user memory into dst, returning the number of
/// bytes copied and an error if a page in range cannot be faulted in.
func (ub *Userbuf) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

/// Uiowrite copies src into user memory, returning the number of bytes
/// copied and an error if a page in range cannot be faulted in.
func (ub *Userbuf) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub.tx(src, true)
}

// tx moves min(len(buf), ub.Remain()) bytes, one page-crossing chunk at
// a time, stopping early (and leaving ub.off where the failure occurred,
// so a retry resumes cleanly) on the first fault or budget failure.
func (ub *Userbuf) tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		uva := ub.uva + uint(ub.off)
		pageVa := util.Rounddown(uva, uint(mem.PGSIZE))
		pageOff := int(uva - pageVa)

		chunk := mem.PGSIZE - pageOff
		if chunk > len(buf) {
			chunk = len(buf)
		}
		if remain := ub.len - ub.off; chunk > remain {
			chunk = remain
		}

		if !copyBudget.Noblock(res.Kmalloc, chunk) {
			return ret, -defs.ENOMEM
		}

		ftype := FaultRead
		if write {
			ftype = FaultWrite
		}
		if err := ub.as.Fault(ftype, pageVa); err != 0 {
			copyBudget.Return(res.Kmalloc, chunk)
			return ret, err
		}

		spl := ub.as.lockPmap()
		pte := ub.as.pteSlot(pageVa, false)
		if pte == nil || !pte.Present() {
			ub.as.unlockPmap(spl)
			panic("vm: userbuf fault did not install a present pte")
		}
		frame := pte.Frame()
		ub.as.unlockPmap(spl)

		pa := mem.FrameToPa(frame)
		var page mem.Page_t
		ub.as.cm.ReadPage(pa, &page)
		if write {
			copy(page[pageOff:pageOff+chunk], buf[:chunk])
			ub.as.cm.WritePage(pa, &page)
		} else {
			copy(buf[:chunk], page[pageOff:pageOff+chunk])
		}

		copyBudget.Return(res.Kmalloc, chunk)
		buf = buf[chunk:]
		ub.off += chunk
		ret += chunk
	}
	return ret, 0
}

/// Fakebuf adapts a plain kernel-resident slice to the same Uioread/
/// Uiowrite/Remain/Totalsz shape a Userbuf exposes, for kernel-internal
/// callers that need to share a copy routine with genuine user-memory
/// transfers without a real address space. Exec stages argv through
/// Userbuf and does not use it. Grounded on the teacher's Fakeubuf_t.
type Fakebuf struct {
	buf []uint8
	len int
}

/// NewFakebuf wraps buf for use as a Uioread/Uiowrite source or sink.
func NewFakebuf(buf []uint8) *Fakebuf {
	return &Fakebuf{buf: buf, len: len(buf)}
}

func (fb *Fakebuf) Remain() int  { return len(fb.buf) }
func (fb *Fakebuf) Totalsz() int { return fb.len }

func (fb *Fakebuf) Uioread(dst []uint8) (int, defs.Err_t) {
	c := copy(dst, fb.buf)
	fb.buf = fb.buf[c:]
	return c, 0
}

func (fb *Fakebuf) Uiowrite(src []uint8) (int, defs.Err_t) {
	c := copy(fb.buf, src)
	fb.buf = fb.buf[c:]
	return c, 0
}

/// Ubpool is a pool of reusable Userbuf structures, matching the
/// teacher's Ubpool. proc's read/write path allocates with NewUserbuf
/// and does not draw from it.
var Ubpool = sync.Pool{New: func() any { return new(Userbuf) }}
