// Package proc implements process and thread lifecycle (spec.md §3,
// §4.4): the fixed-capacity PCB table, PID allocation, fork, exec, exit
// (reparent-to-init), waitpid, getpid, console read/write, and sbrk.
//
// Grounded on the teacher's tinfo.Tnote_t/Threadinfo_t (per-thread
// alive/killed bookkeeping over a guarded map, generalized here to a
// fixed array indexed by PID) and accnt.Accnt_t (kept as Pcb_t.Accnt,
// the per-process usage-accounting fields, finalized into the table's
// diag.Counters when a process exits), and on
// original_source/os161/kern/include/thread.h +
// os161/kern/userprog/runprogram.c for the fork/exec/exit/waitpid
// semantics and the argument-copy-to-stack layout spec.md §4.4 exec
// describes. Two source bugs spec.md §9 flags are fixed here: the child
// PCB is installed into the table atomically with PID allocation
// (several sys_fork variants in original_source never do this), and
// Waitpid validates the PID and checks the slot is non-nil before
// dereferencing it (reordered from the source's "dereference, then
// check" pattern).
package proc

import (
	"sync"

	"github.com/ilovaca/ece344/biscuit/src/accnt"
	"github.com/ilovaca/ece344/biscuit/src/console"
	"github.com/ilovaca/ece344/biscuit/src/coremap"
	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/diag"
	"github.com/ilovaca/ece344/biscuit/src/fd"
	"github.com/ilovaca/ece344/biscuit/src/sched"
	"github.com/ilovaca/ece344/biscuit/src/tlb"
	"github.com/ilovaca/ece344/biscuit/src/vm"
)

/// Pcb_t is one process control block (spec.md §3): identity, exit
/// status, the backing thread, the parent link, address space, and
/// current working directory. A PCB is freed only by the parent's
/// Waitpid or, once reparented, by init. wait_sem (spec.md §3, marked
/// optional there) has no field here: sleepq already supplies the
/// "sleep on this PCB's address" primitive §4.4 waitpid describes
/// directly, with no separate semaphore needed.
type Pcb_t struct {
	mu sync.Mutex

	exited   bool
	exitCode int

	thread    *sched.Thread
	parentPid defs.Pid_t

	as  *vm.AddressSpace
	cwd *fd.Cwd_t

	/// startNs is the timestamp Accnt's lifetime charge is measured
	/// from, stamped once at PCB creation (Bootstrap, Fork).
	startNs int

	/// Accnt is the process's accumulated user/system time, kept from
	/// the teacher's accnt.Accnt_t. Finalized into the table's
	/// diag.Counters by Exit.
	Accnt accnt.Accnt_t
}

/// Table is the fixed-capacity [MAX_PID]*Pcb_t PCB table (spec.md §3):
/// one instance per kernel, created at boot and never destroyed, mutated
/// only while interrupt priority is raised (spec.md §5, §9's "global
/// mutable state" design note). Grounded on the teacher's
/// tinfo.Threadinfo_t (a guarded map of per-thread notes) generalized to
/// a fixed array indexed by PID, with the per-goroutine TLS slot that
/// package relies on replaced by plumbing pid/*Pcb_t explicitly into
/// every entry point (spec.md §9, "avoid hidden globals for curthread").
type Table struct {
	mu   sync.Mutex
	pcbs [defs.MAX_PID]*Pcb_t

	sched   *sched.Scheduler
	cm      *coremap.Coremap
	tlb     *tlb.TLB
	console console.Device
	loader  Loader

	/// counters is the table's shared diag.Counters; the zero value is
	/// ready to use, so Bootstrap never needs to construct one. Exit
	/// folds each process's finalized Accnt into it, and the syscall
	/// dispatcher increments Syscalls on every call it routes.
	counters diag.Counters
}

/// Counters exposes the table's diag.Counters to callers outside this
/// package (the syscall dispatcher's per-call Syscalls increment, a
/// future diagnostics endpoint).
func (t *Table) Counters() *diag.Counters {
	return &t.counters
}

/// Bootstrap constructs the PCB table and installs init (PID 1): an
/// empty address space, its own thread, and a root cwd. Slot 0 is never
/// allocated (spec.md §3's invariant); init's own parent_pid names
/// itself, so a reparented orphan simply points at the same value init
/// itself carries.
func Bootstrap(cm *coremap.Coremap, tl *tlb.TLB, dev console.Device, ld Loader) *Table {
	t := &Table{sched: sched.New(), cm: cm, tlb: tl, console: dev, loader: ld}
	initPcb := &Pcb_t{
		parentPid: defs.INIT_PID,
		as:        vm.New(cm, tl),
		cwd:       fd.MkRootCwd(),
	}
	initPcb.startNs = initPcb.Accnt.Now()
	initPcb.thread = t.sched.Spawn(defs.INIT_PID)
	t.pcbs[defs.INIT_PID] = initPcb
	return t
}

func (t *Table) get(pid defs.Pid_t) (*Pcb_t, bool) {
	if pid < 0 || pid >= defs.MAX_PID {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.pcbs[pid]
	return p, p != nil
}

// mustGet fetches pid's PCB, panicking if the caller (always this
// package's own entry points, driven by a dispatcher that already
// validated pid) names a slot that does not exist — a kernel bug, not a
// user error, per spec.md §7.
func (t *Table) mustGet(pid defs.Pid_t) *Pcb_t {
	p, ok := t.get(pid)
	if !ok {
		panic("proc: operation on unknown pid")
	}
	return p
}

/// Exists reports whether pid currently names a live PCB (running or
/// zombie, not yet reaped).
func (t *Table) Exists(pid defs.Pid_t) bool {
	_, ok := t.get(pid)
	return ok
}

/// ParentOf reports pid's current parent_pid, for tests exercising the
/// reparent-to-init scenario (spec.md §8 scenario 2).
func (t *Table) ParentOf(pid defs.Pid_t) (defs.Pid_t, bool) {
	p, ok := t.get(pid)
	if !ok {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parentPid, true
}

/// AddressSpace returns pid's current address space, for callers outside
/// this package that need to copy bytes in or out on its behalf (the
/// syscall dispatcher's waitpid status copy-out, diagnostics).
func (t *Table) AddressSpace(pid defs.Pid_t) *vm.AddressSpace {
	p := t.mustGet(pid)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.as
}

/// Exited reports whether pid's PCB has exited (zombie, pending reap).
func (t *Table) Exited(pid defs.Pid_t) (bool, bool) {
	p, ok := t.get(pid)
	if !ok {
		return false, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, true
}

// allocAndInstall performs PID allocation (a linear scan of the table
// from MIN_PID) and installs pcb into the chosen slot within the same
// interrupt-raised section, so the two never observably separate — the
// fix for the source bug spec.md §9 notes, where several sys_fork
// variants hand out a PID before the table slot is ever assigned.
func (t *Table) allocAndInstall(pcb *Pcb_t) (defs.Pid_t, defs.Err_t) {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := defs.MIN_PID; i < defs.MAX_PID; i++ {
		if t.pcbs[i] == nil {
			t.pcbs[i] = pcb
			return i, 0
		}
	}
	return 0, -defs.EAGAIN
}
