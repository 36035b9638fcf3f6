package syscall

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ilovaca/ece344/biscuit/src/console"
	"github.com/ilovaca/ece344/biscuit/src/coremap"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/proc"
	"github.com/ilovaca/ece344/biscuit/src/swapfile"
	"github.com/ilovaca/ece344/biscuit/src/tlb"
	"github.com/ilovaca/ece344/biscuit/src/vm"
)

type fakeRebooter struct{ mode uint64 }

func (r *fakeRebooter) Reboot(mode uint64) { r.mode = mode }

func testTable(numFrames int) *proc.Table {
	tbl, _ := testTableWithLoader(numFrames)
	return tbl
}

func testTableWithLoader(numFrames int) (*proc.Table, *proc.StaticLoader) {
	cm := coremap.Bootstrap(numFrames, 1, swapfile.NewMem(), 256)
	loader := proc.NewStaticLoader()
	return proc.Bootstrap(cm, tlb.New(), console.NewRing(16), loader), loader
}

func TestDispatchGetpidReturnsSuccess(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{Callno: SYS_GETPID}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, tf)
	require.False(t, tf.Err)
	require.Equal(t, uint64(defs.INIT_PID), tf.V0)
	require.Equal(t, uint64(instrLen), tf.Epc)
}

func TestDispatchUnknownCallnoIsEnosys(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{Callno: 99}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, tf)
	require.True(t, tf.Err)
	require.Equal(t, uint64(defs.ENOSYS), tf.V0)
}

func TestDispatchForkReturnsChildPid(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{Callno: SYS_FORK}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, tf)
	require.False(t, tf.Err)
	require.True(t, tbl.Exists(defs.Pid_t(tf.V0)))
}

func TestDispatchRebootInvokesRebooter(t *testing.T) {
	tbl := testTable(64)
	rb := &fakeRebooter{}
	tf := &defs.Trapframe{Callno: SYS_REBOOT, A0: 7}
	Dispatch(tbl, rb, defs.INIT_PID, tf)
	require.EqualValues(t, 7, rb.mode)
}

// TestDispatchExecvInstallsEntryAndStackPointer exercises spec.md §4.4
// exec step 8 through the syscall boundary: on success Dispatch must
// install the loaded program's entry point and stack pointer directly
// into Epc/Sp rather than resuming after the trapping instruction.
func TestDispatchExecvInstallsEntryAndStackPointer(t *testing.T) {
	tbl, loader := testTableWithLoader(64)
	loader.Register("/bin/hi", proc.Image{
		Segments: []proc.Segment{{Vbase: 0x1000, Size: 0x1000, R: true, X: true}},
		Entry:    0x1000,
	})

	as := tbl.AddressSpace(defs.INIT_PID)
	pathUva := uint(0x10000)
	require.Zero(t, as.DefineRegion(pathUva, uint(len("/bin/hi"))+8, true, true, false))
	ub := vm.NewUserbuf(as, pathUva, len("/bin/hi")+1)
	_, werr := ub.Uiowrite(append([]byte("/bin/hi"), 0))
	require.Zero(t, werr)
	var zero [8]byte
	ub2 := vm.NewUserbuf(as, pathUva+16, 8)
	_, werr = ub2.Uiowrite(zero[:])
	require.Zero(t, werr)

	tf := &defs.Trapframe{Callno: SYS_EXECV, A0: uint64(pathUva), A1: uint64(pathUva + 16), Epc: 0x4000}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, tf)
	require.False(t, tf.Err)
	require.EqualValues(t, 0x1000, tf.Epc)
	require.Greater(t, tf.Sp, uint64(0))
}

// TestDispatchExecvBadPathIsEfaultAndAdvancesPc exercises the exec
// failure path: an unresolvable path must flow through the generic
// error epilogue instead of the entry/stack-pointer install.
func TestDispatchExecvBadPathIsEfaultAndAdvancesPc(t *testing.T) {
	tbl := testTable(64)
	tf := &defs.Trapframe{Callno: SYS_EXECV, A0: 0, A1: 0, Epc: 0x4000}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, tf)
	require.True(t, tf.Err)
	require.Equal(t, uint64(defs.EFAULT), tf.V0)
	require.EqualValues(t, 0x4000+instrLen, tf.Epc)
}

// TestDispatchWaitpidReturnsPidAndWritesStatus exercises spec.md §8
// scenario 1 (fork-exit-wait) through the syscall boundary: waitpid must
// return the child's pid in v0, not its exit code, and must copy the
// exit code out to the caller-supplied status pointer.
func TestDispatchWaitpidReturnsPidAndWritesStatus(t *testing.T) {
	tbl := testTable(64)

	forkTf := &defs.Trapframe{Callno: SYS_FORK}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, forkTf)
	require.False(t, forkTf.Err)
	child := defs.Pid_t(forkTf.V0)

	exitTf := &defs.Trapframe{Callno: SYS_EXIT, A0: 42}
	Dispatch(tbl, &fakeRebooter{}, child, exitTf)

	initAs := tbl.AddressSpace(defs.INIT_PID)
	statusUva := uint(0x20000)
	require.Zero(t, initAs.DefineRegion(statusUva, 8, true, true, false))

	waitTf := &defs.Trapframe{Callno: SYS_WAITPID, A0: uint64(child), A1: uint64(statusUva)}
	Dispatch(tbl, &fakeRebooter{}, defs.INIT_PID, waitTf)
	require.False(t, waitTf.Err)
	require.Equal(t, uint64(child), waitTf.V0)
	require.False(t, tbl.Exists(child))

	ub := vm.NewUserbuf(initAs, statusUva, 8)
	var raw [8]byte
	n, rerr := ub.Uioread(raw[:])
	require.Zero(t, rerr)
	require.Equal(t, 8, n)
	require.EqualValues(t, 42, binary.LittleEndian.Uint64(raw[:]))
}
