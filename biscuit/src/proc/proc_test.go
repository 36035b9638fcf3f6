package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ilovaca/ece344/biscuit/src/console"
	"github.com/ilovaca/ece344/biscuit/src/coremap"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/swapfile"
	"github.com/ilovaca/ece344/biscuit/src/tlb"
)

func testTable(numFrames int) *Table {
	cm := coremap.Bootstrap(numFrames, 1, swapfile.NewMem(), 256)
	return Bootstrap(cm, tlb.New(), console.NewRing(16), NewStaticLoader())
}

func TestBootstrapInstallsInit(t *testing.T) {
	tbl := testTable(64)
	require.True(t, tbl.Exists(defs.INIT_PID))
	parent, ok := tbl.ParentOf(defs.INIT_PID)
	require.True(t, ok)
	require.Equal(t, defs.Pid_t(defs.INIT_PID), parent)
}

func TestForkInstallsChildAtomically(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{}
	child, err := tbl.Fork(defs.INIT_PID, tf)
	require.Zero(t, err)
	require.True(t, tbl.Exists(child))
	parent, ok := tbl.ParentOf(child)
	require.True(t, ok)
	require.Equal(t, defs.Pid_t(defs.INIT_PID), parent)
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{}
	mid, err := tbl.Fork(defs.INIT_PID, tf)
	require.Zero(t, err)
	grandchild, err := tbl.Fork(mid, tf)
	require.Zero(t, err)

	tbl.Exit(mid, 7)

	parent, ok := tbl.ParentOf(grandchild)
	require.True(t, ok)
	require.Equal(t, defs.Pid_t(defs.INIT_PID), parent)
}

func TestWaitpidReturnsExitCodeAndReaps(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{}
	child, err := tbl.Fork(defs.INIT_PID, tf)
	require.Zero(t, err)

	done := make(chan struct{})
	go func() {
		tbl.Exit(child, 42)
		close(done)
	}()
	<-done

	code, err := tbl.Waitpid(defs.INIT_PID, child)
	require.Zero(t, err)
	require.Equal(t, 42, code)
	require.False(t, tbl.Exists(child))
}

func TestWaitpidOnNonChildIsEinval(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{}
	child, err := tbl.Fork(defs.INIT_PID, tf)
	require.Zero(t, err)
	other, err := tbl.Fork(defs.INIT_PID, tf)
	require.Zero(t, err)

	_, err = tbl.Waitpid(other, child)
	require.Equal(t, -defs.EINVAL, int(err))
}

func TestSbrkGrowsChildHeap(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{}
	child, err := tbl.Fork(defs.INIT_PID, tf)
	require.Zero(t, err)

	prev, err := tbl.Sbrk(child, 4096)
	require.Zero(t, err)
	next, err := tbl.Sbrk(child, 0)
	require.Zero(t, err)
	require.Equal(t, prev+4096, next)
}

func TestExecReplacesAddressSpaceAndReturnsStack(t *testing.T) {
	tbl := testTable(64)
	loader := tbl.loader.(*StaticLoader)
	loader.Register("/bin/hi", Image{
		Segments: []Segment{{Vbase: 0x1000, Size: 0x1000, R: true, X: true}},
		Entry:    0x1000,
	})

	initPcb := tbl.mustGet(defs.INIT_PID)
	pathUva := uint(0x10000)
	require.Zero(t, initPcb.as.DefineRegion(pathUva, uint(len("/bin/hi"))+8, true, true, false))

	require.Zero(t, writeUserBytes(initPcb.as, pathUva, append([]byte("/bin/hi"), 0)))
	var zero [8]byte
	require.Zero(t, writeUserBytes(initPcb.as, pathUva+16, zero[:]))

	sp, entry, err := tbl.Exec(defs.INIT_PID, pathUva, pathUva+16)
	require.Zero(t, err)
	require.Greater(t, sp, uint(0))
	require.EqualValues(t, 0x1000, entry)
}
