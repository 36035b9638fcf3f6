// Package syscall implements table-driven dispatch from a trapframe to
// the kernel entry points of spec.md §4.4 and §6, following the
// (v0, a3) return-value/error-flag convention: on return, a non-zero
// kernel error lands in v0 with the error flag set, a success value
// lands in v0 with the flag clear, and the program counter advances by
// one instruction length. Grounded on
// original_source/.../arch/mips/mips/syscall.c's register convention
// and the kernel-entries-return-Err_t discipline spec.md §7 states and
// vm/as.go already follows throughout this port.
package syscall

import (
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/diag"
	"github.com/ilovaca/ece344/biscuit/src/proc"
)

// Callno names the nine syscalls spec.md §6 tabulates. The numbering
// (0, 2..9, no 1) matches that table exactly, including its gap.
const (
	SYS_REBOOT  = 0
	SYS_FORK    = 2
	SYS_READ    = 3
	SYS_WRITE   = 4
	SYS_EXIT    = 5
	SYS_EXECV   = 6
	SYS_WAITPID = 7
	SYS_GETPID  = 8
	SYS_SBRK    = 9
)

// instrLen is the fixed program-counter advance after a syscall trap
// (spec.md §4.8). The real value is architecture-specific and out of
// scope (spec.md §1's md_usermode); 4 stands in for "one instruction".
const instrLen = 4

// Rebooter is the external collaborator invoked by the reboot syscall;
// its actual mechanism (halting the CPU) is out of scope (spec.md §1).
type Rebooter interface {
	Reboot(mode uint64)
}

// Dispatch routes tf's call number to the matching proc.Table entry
// point on behalf of pid, installs the (v0, a3) pair, and advances the
// program counter. Unknown callno yields ENOSYS, per spec.md §4.8.
// SYS_EXECV is a third early-return case alongside SYS_REBOOT/SYS_EXIT:
// on success it does not return to the instruction after the trap at
// all, it resumes straight into the loaded program, so it installs
// Epc/Sp itself instead of going through the generic v0/Epc+=instrLen
// epilogue below.
func Dispatch(t *proc.Table, rb Rebooter, pid defs.Pid_t, tf *defs.Trapframe) {
	t.Counters().Inc(diag.Syscalls)

	var v0 uint64
	var err defs.Err_t

	switch tf.Callno {
	case SYS_REBOOT:
		rb.Reboot(tf.A0)
		return
	case SYS_FORK:
		var child defs.Pid_t
		child, err = t.Fork(pid, tf)
		v0 = uint64(child)
	case SYS_READ:
		var n int
		n, err = t.Read(pid, uint(tf.A1), int(tf.A2))
		v0 = uint64(n)
	case SYS_WRITE:
		var n int
		n, err = t.Write(pid, uint(tf.A1), int(tf.A2))
		v0 = uint64(n)
	case SYS_EXIT:
		t.Exit(pid, int(tf.A0))
		return
	case SYS_EXECV:
		sp, entry, eerr := t.Exec(pid, uint(tf.A0), uint(tf.A1))
		if eerr != 0 {
			tf.V0 = uint64(eerr.Rawint())
			tf.Err = true
			tf.Epc += instrLen
			return
		}
		tf.Sp = uint64(sp)
		tf.Epc = uint64(entry)
		tf.Err = false
		return
	case SYS_WAITPID:
		var reaped defs.Pid_t
		reaped, err = t.WaitpidSyscall(pid, defs.Pid_t(tf.A0), uint(tf.A1))
		v0 = uint64(reaped)
	case SYS_GETPID:
		v0 = uint64(t.Getpid(pid))
	case SYS_SBRK:
		var brk uint
		brk, err = t.Sbrk(pid, int(tf.A0))
		v0 = uint64(brk)
	default:
		err = -defs.ENOSYS
	}

	if err != 0 {
		tf.V0 = uint64(err.Rawint())
		tf.Err = true
	} else {
		tf.V0 = v0
		tf.Err = false
	}
	tf.Epc += instrLen
}
