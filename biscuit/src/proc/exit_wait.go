package proc

import (
	"encoding/binary"

	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/diag"
	"github.com/ilovaca/ece344/biscuit/src/sleepq"
	"github.com/ilovaca/ece344/biscuit/src/vm"
)

// Exit implements spec.md §4.4's exit: tear down the address space,
// record the exit code, finalize the process's accumulated accounting
// time into the table's diag.Counters, retire the thread, reparent any
// children of pid to init, and wake whatever is sleeping on pid's own
// zombie slot (its parent's Waitpid, if already waiting). Neither Exit
// nor the syscall dispatcher special-cases init: an exit syscall from
// PID 1 is handled like any other.
func (t *Table) Exit(pid defs.Pid_t, code int) {
	p := t.mustGet(pid)
	p.as.Destroy()

	p.Accnt.Finish(p.startNs)
	p.Accnt.Lock()
	userNs, sysNs := p.Accnt.Userns, p.Accnt.Sysns
	p.Accnt.Unlock()
	t.counters.Add(diag.AccountedUserNs, userNs)
	t.counters.Add(diag.AccountedSysNs, sysNs)

	spl := critsec.Splhigh()
	p.mu.Lock()
	p.exited = true
	p.exitCode = code
	p.mu.Unlock()
	sleepq.WakeAll(p)
	critsec.Splx(spl)

	t.reparentChildren(pid)
	t.sched.Retire(p.thread)
}

// reparentChildren walks the table once, under raised priority, handing
// every live child of pid to init (spec.md §4.4, spec.md §8 scenario 2).
// A child that already exited before reparenting needs no extra wakeup
// here: Exit already broadcast on its own PCB when it exited, and no one
// can have started waiting on it under its new parent before this runs.
func (t *Table) reparentChildren(pid defs.Pid_t) {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := defs.MIN_PID; i < defs.MAX_PID; i++ {
		c := t.pcbs[i]
		if c == nil {
			continue
		}
		c.mu.Lock()
		if c.parentPid == pid {
			c.parentPid = defs.INIT_PID
		}
		c.mu.Unlock()
	}
}

// Waitpid implements spec.md §4.4's waitpid: validate pid names a real
// child of caller, sleep until it has exited, then reap its PCB (free
// the table slot and forget its thread) and return its exit code. The
// source bug spec.md §9 flags — dereferencing the child's PCB pointer
// before checking it is non-nil — is fixed by validating existence and
// parentage first and only then loading and inspecting the PCB. A pid
// that names no process, or one that is not the caller's child, is the
// validation-violation case spec.md §4.4 and §7 both assign EINVAL.
func (t *Table) Waitpid(callerPid, childPid defs.Pid_t) (int, defs.Err_t) {
	child, ok := t.get(childPid)
	if !ok {
		return 0, -defs.EINVAL
	}
	child.mu.Lock()
	isChild := child.parentPid == callerPid
	child.mu.Unlock()
	if !isChild {
		return 0, -defs.EINVAL
	}

	for {
		spl := critsec.Splhigh()
		child.mu.Lock()
		if child.exited {
			code := child.exitCode
			child.mu.Unlock()
			critsec.Splx(spl)
			t.reap(childPid)
			return code, 0
		}
		child.mu.Unlock()
		// Held continuously from the exited check above through
		// registration inside Sleep, so this can never miss a
		// concurrent Exit's WakeAll (also spl-guarded end to end).
		spl = sleepq.Sleep(child, spl)
		critsec.Splx(spl)
	}
}

// WaitpidSyscall is the syscall-facing wrapper spec.md §4.4 and §6
// describe: it calls Waitpid to reap childPid's exit code, copies that
// code out to the caller's statusUva (a bad pointer yields EFAULT rather
// than failing the wait itself — the child is already reaped by the time
// the copy-out is attempted, matching the conventional waitpid(2)
// contract of "the wait already happened"), and returns childPid itself,
// since spec.md §6's syscall table returns the pid, not the status.
// A nil statusUva (0) skips the copy-out, mirroring a NULL status
// argument.
func (t *Table) WaitpidSyscall(callerPid, childPid defs.Pid_t, statusUva uint) (defs.Pid_t, defs.Err_t) {
	code, err := t.Waitpid(callerPid, childPid)
	if err != 0 {
		return 0, err
	}
	if statusUva != 0 {
		as := t.AddressSpace(callerPid)
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], uint64(int64(code)))
		ub := vm.NewUserbuf(as, statusUva, len(raw))
		if n, werr := ub.Uiowrite(raw[:]); werr != 0 || n != len(raw) {
			return 0, -defs.EFAULT
		}
	}
	return childPid, 0
}

// reap removes childPid's slot from the table and drops its thread from
// the scheduler, called once its exit status has been collected exactly
// once by its parent.
func (t *Table) reap(childPid defs.Pid_t) {
	child := t.mustGet(childPid)
	t.sched.Forget(child.thread)
	t.mu.Lock()
	t.pcbs[childPid] = nil
	t.mu.Unlock()
}
