package proc

import "github.com/ilovaca/ece344/biscuit/src/defs"

// Fork implements spec.md §4.4's fork: copy the caller's address space
// (coremap.CopyPage-backed, see vm.AddressSpace.Copy), duplicate its cwd,
// allocate a PID and install the child PCB in the same critical section
// (the bugfix spec.md §9 calls out), then make the child's thread ready.
// Fork itself only returns the PID; the syscall layer installs it into
// the parent's return register. Nothing installs 0 into a child return
// register: parentTf is accepted but not read or copied, and this port
// has no per-process resume path for the child (see DESIGN.md). Failure after the address space copy rolls the copy back,
// per spec.md §4.4's "free the copied trapframe, destroy the new AS,
// release the PID."
func (t *Table) Fork(parentPid defs.Pid_t, parentTf *defs.Trapframe) (defs.Pid_t, defs.Err_t) {
	parent := t.mustGet(parentPid)

	parent.mu.Lock()
	childAs, err := parent.as.Copy()
	childCwd := parent.cwd.Clone()
	parent.mu.Unlock()
	if err != 0 {
		return 0, err
	}

	child := &Pcb_t{
		parentPid: parentPid,
		as:        childAs,
		cwd:       childCwd,
	}
	child.startNs = child.Accnt.Now()

	pid, err := t.allocAndInstall(child)
	if err != 0 {
		childAs.Destroy()
		return 0, err
	}
	child.thread = t.sched.Spawn(pid)
	t.sched.MarkReady(child.thread)
	return pid, 0
}
