package proc

import (
	"encoding/binary"

	"github.com/ilovaca/ece344/biscuit/src/bounds"
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/vm"
)

// Handle names an opened, not-yet-loaded executable image: the VFS-open
// step (spec.md §4.4 exec step 2) happens before the caller's address
// space is torn down, and the ELF-load step (step 5) happens after the
// new one is created, so the two are split into Loader.Open and
// Loader.Load rather than a single call, matching that exact ordering.
type Handle interface{}

// Loader is the external-collaborator boundary (spec.md §1) for opening
// and loading an executable image, standing in for the VFS lookup plus
// biscuit's own ELF loader. Open resolves path (relative to cwd) to a
// Handle without touching any address space; Load maps the image's
// segments into as (already past PrepareLoad) and reports the entry
// point.
type Loader interface {
	Open(path string, cwd *string) (Handle, defs.Err_t)
	Load(as *vm.AddressSpace, h Handle) (entry uint, err defs.Err_t)
}

// Exec implements spec.md §4.4's exec: copy in path and argv (bounded,
// EFAULT on a bad user pointer), open the image before touching the
// caller's address space, build a fresh address space and load the
// image into it, push argv onto the new stack, discard the old address
// space, install the new one, and return the new stack pointer and
// entry point the dispatcher installs directly into the trapframe that
// resumes into the loaded program (spec.md §4.4 exec step 8: "enter
// user mode with argc, argv-on-stack, stack pointer, entry point").
// The caller's old address space is destroyed only after Load and the
// argv push have both succeeded, so a failure in either destroys the new
// address space, returns the error, and leaves the caller's address
// space in place.
func (t *Table) Exec(pid defs.Pid_t, pathUva, argvUva uint) (sp uint, entry uint, err defs.Err_t) {
	p := t.mustGet(pid)

	p.mu.Lock()
	oldAs := p.as
	cwdPath := p.cwd.Path
	p.mu.Unlock()

	path, err := oldAs.CopyInString(bounds.B_EXECV_PATH, pathUva, defs.MAX_PATH_LEN)
	if err != 0 {
		return 0, 0, err
	}
	argv, err := oldAs.CopyInArgv(argvUva, defs.MAX_ARGC, defs.MAX_ARG_LEN)
	if err != 0 {
		return 0, 0, err
	}

	h, err := t.loader.Open(path, &cwdPath)
	if err != 0 {
		return 0, 0, err
	}

	newAs := vm.New(t.cm, t.tlb)
	newAs.PrepareLoad()
	entry, err = t.loader.Load(newAs, h)
	if err != 0 {
		newAs.Destroy()
		return 0, 0, err
	}
	newAs.CompleteLoad()

	sp = newAs.DefineStack()
	sp, err = pushArgs(newAs, sp, argv)
	if err != 0 {
		newAs.Destroy()
		return 0, 0, err
	}

	oldAs.Destroy()

	p.mu.Lock()
	p.as = newAs
	p.mu.Unlock()
	newAs.Activate()

	return sp, entry, 0
}

// pushArgs writes argv's strings and their pointer array onto the new
// user stack below sp, matching runprogram.c's "copy arguments to the
// top of the stack" layout: the bytes of every string packed downward
// first, then an 8-byte-aligned NUL-terminated array of pointers to
// them, so the user entry point finds (argc, argv) at the final sp the
// ABI expects.
func pushArgs(as *vm.AddressSpace, sp uint, argv []string) (uint, defs.Err_t) {
	ptrs := make([]uint, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		n := len(s) + 1
		sp -= uint(n)
		buf := make([]byte, n)
		copy(buf, s)
		if err := writeUserBytes(as, sp, buf); err != 0 {
			return 0, err
		}
		ptrs[i] = sp
	}
	sp &^= 7

	sp -= uint(len(ptrs)+1) * 8
	sp &^= 7
	for i, p := range ptrs {
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], uint64(p))
		if err := writeUserBytes(as, sp+uint(i*8), raw[:]); err != 0 {
			return 0, err
		}
	}
	var zero [8]byte
	if err := writeUserBytes(as, sp+uint(len(ptrs)*8), zero[:]); err != 0 {
		return 0, err
	}
	return sp, 0
}

func writeUserBytes(as *vm.AddressSpace, uva uint, b []byte) defs.Err_t {
	ub := vm.NewUserbuf(as, uva, len(b))
	n, err := ub.Uiowrite(b)
	if err != 0 || n != len(b) {
		return -defs.EFAULT
	}
	return 0
}
