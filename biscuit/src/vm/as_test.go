package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ilovaca/ece344/biscuit/src/coremap"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/mem"
	"github.com/ilovaca/ece344/biscuit/src/swapfile"
	"github.com/ilovaca/ece344/biscuit/src/tlb"
)

func testKernel(numFrames int) (*coremap.Coremap, *tlb.TLB) {
	cm := coremap.Bootstrap(numFrames, 1, swapfile.NewMem(), 256)
	return cm, tlb.New()
}

// pteOf reads va's current PTE under the pmap lock, as pteSlot itself
// asserts that lock is held.
func pteOf(as *AddressSpace, va uint) mem.Pte_t {
	spl := as.lockPmap()
	defer as.unlockPmap(spl)
	return *as.pteSlot(va, false)
}

func TestDefineRegionOverlapRejected(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x2000, true, false, true))
	require.Equal(t, -defs.EINVAL, int(as.DefineRegion(0x2000, 0x1000, true, true, false)))
}

func TestDefineRegionSetsHeapAtSecondRegion(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x1000, true, false, true))
	start, end := as.HeapBounds()
	require.Zero(t, start)
	require.Zero(t, end)

	require.Zero(t, as.DefineRegion(0x10000, 0x3000, true, true, false))
	start, end = as.HeapBounds()
	require.Equal(t, uint(0x13000), start)
	require.Equal(t, start, end)
}

func TestFaultDemandZeroesAndInstallsTLBEntry(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x1000, true, true, false))
	require.Zero(t, as.DefineRegion(0x10000, 0x1000, true, true, false))

	require.Zero(t, as.Fault(FaultWrite, 0x1000))
	_, ok := tl.Lookup(uint32(0x1000 >> mem.PGSHIFT))
	require.True(t, ok)

	var page mem.Page_t
	pte := pteOf(as, 0x1000)
	require.True(t, pte.Present())
	cm.ReadPage(mem.FrameToPa(pte.Frame()), &page)
	var zero mem.Page_t
	require.Equal(t, zero, page)
}

func TestFaultOutsideAnyRegionIsEfault(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x1000, true, true, false))
	require.Zero(t, as.DefineRegion(0x10000, 0x1000, true, true, false))
	require.Equal(t, -defs.EFAULT, int(as.Fault(FaultRead, 0x500000)))
}

func TestFaultReadonlyIsAlwaysEfault(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Equal(t, -defs.EFAULT, int(as.Fault(FaultReadonly, 0x1000)))
}

func TestFaultAcrossFullStackBand(t *testing.T) {
	cm, tl := testKernel(int(defs.STACK_PAGES) + 8)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x1000, true, true, false))
	require.Zero(t, as.DefineRegion(0x10000, 0x1000, true, true, false))

	base := StackBase()
	for i := uint(0); i < defs.STACK_PAGES; i++ {
		va := base + i*uint(mem.PGSIZE)
		require.Zero(t, as.Fault(FaultWrite, va), "page %d of stack band", i)
	}
}

func TestSbrkGrowsAndRejectsEncroachment(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x1000, true, true, false))
	require.Zero(t, as.DefineRegion(0x10000, 0x1000, true, true, false))

	prev, err := as.Sbrk(int(mem.PGSIZE))
	require.Zero(t, err)
	require.Equal(t, uint(0x11000), prev)
	_, end := as.HeapBounds()
	require.Equal(t, uint(0x11000)+uint(mem.PGSIZE), end)

	_, err = as.Sbrk(-2 * int(mem.PGSIZE))
	require.Equal(t, -defs.EINVAL, int(err))

	huge := int(StackBase()) - int(end) + int(mem.PGSIZE)
	_, err = as.Sbrk(huge)
	require.Equal(t, -defs.ENOMEM, int(err))
}

func TestCopyIsIndependentOfSource(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x1000, true, true, false))
	require.Zero(t, as.DefineRegion(0x10000, 0x1000, true, true, false))
	require.Zero(t, as.Fault(FaultWrite, 0x1000))

	srcPte := pteOf(as, 0x1000)
	var srcPage mem.Page_t
	srcPage[0] = 0xAB
	cm.WritePage(mem.FrameToPa(srcPte.Frame()), &srcPage)

	dst, err := as.Copy()
	require.Zero(t, err)

	dstPte := pteOf(dst, 0x1000)
	require.True(t, dstPte.Present())
	require.NotEqual(t, srcPte.Frame(), dstPte.Frame())

	var dstPage mem.Page_t
	cm.WritePage(mem.FrameToPa(dstPte.Frame()), &dstPage)
	dstPage[0] = 0xCD
	cm.WritePage(mem.FrameToPa(dstPte.Frame()), &dstPage)

	var reread mem.Page_t
	cm.ReadPage(mem.FrameToPa(srcPte.Frame()), &reread)
	require.EqualValues(t, 0xAB, reread[0])
}

func TestFaultFetchesSwappedPage(t *testing.T) {
	backend := swapfile.NewMem()
	cm := coremap.Bootstrap(2, 1, backend, 64) // 1 FIXED, 1 user-usable
	tl := tlb.New()
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x2000, true, true, false))
	require.Zero(t, as.DefineRegion(0x10000, 0x1000, true, true, false))

	require.Zero(t, as.Fault(FaultWrite, 0x1000))
	pte := pteOf(as, 0x1000)
	var pattern mem.Page_t
	pattern[10] = 0x42
	cm.WritePage(mem.FrameToPa(pte.Frame()), &pattern)

	// A second page owned by the same address space forces the coremap
	// to evict a victim; with no other user-usable frame, the page at
	// 0x1000 is the only eligible victim, so it gets swapped out from
	// under this same address space (the deadlock-prone path critsec's
	// reentrancy exists to make safe).
	require.Zero(t, as.Fault(FaultWrite, 0x2000))
	require.True(t, pteOf(as, 0x1000).Swapped())

	require.Zero(t, as.Fault(FaultRead, 0x1000))
	refetched := pteOf(as, 0x1000)
	require.True(t, refetched.Present())
	var got mem.Page_t
	cm.ReadPage(mem.FrameToPa(refetched.Frame()), &got)
	require.Equal(t, pattern, got)
}

func TestUserbufRoundTripAcrossPageBoundary(t *testing.T) {
	cm, tl := testKernel(64)
	as := New(cm, tl)
	require.Zero(t, as.DefineRegion(0x1000, 0x3000, true, true, false))
	require.Zero(t, as.DefineRegion(0x20000, 0x1000, true, true, false))

	uva := uint(mem.PGSIZE) - 4 + 0x1000
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	wb := NewUserbuf(as, uva, len(payload))
	n, err := wb.Uiowrite(payload)
	require.Zero(t, err)
	require.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	rb := NewUserbuf(as, uva, len(got))
	n, err = rb.Uioread(got)
	require.Zero(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got)
}
