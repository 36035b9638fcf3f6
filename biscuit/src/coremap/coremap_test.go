package coremap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ilovaca/ece344/biscuit/src/mem"
	"github.com/ilovaca/ece344/biscuit/src/swapfile"
)

type fakeOwner struct {
	writes []struct {
		va  uint
		pte mem.Pte_t
	}
	invalidated []uint
}

func (o *fakeOwner) WritePTE(va uint, pte mem.Pte_t) {
	o.writes = append(o.writes, struct {
		va  uint
		pte mem.Pte_t
	}{va, pte})
}

func (o *fakeOwner) InvalidateTLB(va uint) {
	o.invalidated = append(o.invalidated, va)
}

func TestAllocFreeKpagesRoundTrip(t *testing.T) {
	cm := Bootstrap(16, 2, swapfile.NewMem(), 64)
	free0, fixed0, _, _ := cm.Counts()

	pa, err := cm.AllocKpages(3)
	require.Zero(t, err)

	free1, fixed1, _, _ := cm.Counts()
	require.Equal(t, free0-3, free1)
	require.Equal(t, fixed0+3, fixed1)

	require.Zero(t, cm.FreeKpages(pa))
	free2, fixed2, _, _ := cm.Counts()
	require.Equal(t, free0, free2)
	require.Equal(t, fixed0, fixed2)
}

func TestAllocUserPageMarksDirty(t *testing.T) {
	cm := Bootstrap(8, 1, swapfile.NewMem(), 64)
	owner := &fakeOwner{}
	pa, err := cm.AllocUserPage(owner, 0x1000)
	require.Zero(t, err)
	require.Equal(t, DIRTY, cm.FrameState(int(mem.PaToFrame(pa))))
}

func TestSwapOutFetchPageRoundTrip(t *testing.T) {
	cm := Bootstrap(4, 1, swapfile.NewMem(), 64)
	owner := &fakeOwner{}
	pa, err := cm.AllocUserPage(owner, 0x2000)
	require.Zero(t, err)

	var pattern mem.Page_t
	for i := range pattern {
		pattern[i] = uint8(i)
	}
	cm.WritePage(pa, &pattern)

	victim, verr := cm.evictVictim(0, nil) // avoid nothing; only one evictable frame exists
	require.Zero(t, verr)
	require.Equal(t, int(mem.PaToFrame(pa)), victim)
	require.Equal(t, FREE, cm.FrameState(victim))
	require.Len(t, owner.writes, 1)
	require.True(t, owner.writes[0].pte.Swapped())
	slot := owner.writes[0].pte.Frame()

	fetchedPa, ferr := cm.FetchPage(owner, 0x2000, slot)
	require.Zero(t, ferr)
	var got mem.Page_t
	cm.ReadPage(fetchedPa, &got)
	require.Equal(t, pattern, got)
	require.Equal(t, DIRTY, cm.FrameState(int(mem.PaToFrame(fetchedPa))))
}

func TestEvictionWhenMemoryFull(t *testing.T) {
	backend := swapfile.NewMem()
	cm := Bootstrap(3, 1, backend, 64) // 1 FIXED, 2 available to users
	o1, o2 := &fakeOwner{}, &fakeOwner{}
	_, err := cm.AllocUserPage(o1, 0x1000)
	require.Zero(t, err)
	_, err = cm.AllocUserPage(o2, 0x2000)
	require.Zero(t, err)

	free, _, dirty, _ := cm.Counts()
	require.Zero(t, free)
	require.Equal(t, 2, dirty)

	o3 := &fakeOwner{}
	_, err = cm.AllocUserPage(o3, 0x3000)
	require.Zero(t, err)
	require.EqualValues(t, 1, cm.Evictions())

	evicted := len(o1.writes) == 1 || len(o2.writes) == 1
	require.True(t, evicted, "exactly one of the two resident pages should have been evicted")
}

func TestFreeOwnedReleasesOnlyThatOwner(t *testing.T) {
	cm := Bootstrap(8, 1, swapfile.NewMem(), 64)
	o1, o2 := &fakeOwner{}, &fakeOwner{}
	_, err := cm.AllocUserPage(o1, 0x1000)
	require.Zero(t, err)
	_, err = cm.AllocUserPage(o2, 0x2000)
	require.Zero(t, err)

	cm.FreeOwned(o1)
	free, _, dirty, _ := cm.Counts()
	require.Equal(t, 1, dirty)
	require.Equal(t, 6, free)
}

func TestAllocKpagesContiguousExhaustion(t *testing.T) {
	cm := Bootstrap(4, 1, swapfile.NewMem(), 64) // 3 FREE frames
	_, err := cm.AllocKpages(3)
	require.Zero(t, err)
	_, err = cm.AllocKpages(1)
	require.Equal(t, -1, int(err))
}
