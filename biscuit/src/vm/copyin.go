package vm

import (
	"encoding/binary"

	"github.com/ilovaca/ece344/biscuit/src/bounds"
	"github.com/ilovaca/ece344/biscuit/src/defs"
)

// CopyInString and CopyInArgv give proc.Exec the bounded user->kernel
// copies spec.md §4.4 exec step 1 describes ("copy the path and
// arguments into kernel memory, failing with EFAULT on bad user
// pointers"). Grounded on the teacher's vm/as.go K2user_inner/
// User2k_inner bounded-copy idiom (bounds.Bounds(...) checked before
// each transfer), built atop this file's own Userbuf rather than that
// four-level-pagetable routine.

/// CopyInString copies a NUL-terminated string starting at uva out of
/// user memory, refusing anything longer than maxlen (the bound named by
/// b, checked via bounds.Check). A missing backing page or a string that
/// runs past maxlen without a terminator is EFAULT, matching "bad user
/// pointer".
func (as *AddressSpace) CopyInString(b bounds.Bound_t, uva uint, maxlen int) (string, defs.Err_t) {
	out := make([]byte, 0, 64)
	var one [1]byte
	for i := 0; i < maxlen; i++ {
		ub := NewUserbuf(as, uva+uint(i), 1)
		n, err := ub.Uioread(one[:])
		if err != 0 || n != 1 {
			return "", -defs.EFAULT
		}
		if one[0] == 0 {
			if !bounds.Check(b, len(out), maxlen) {
				return "", -defs.EFAULT
			}
			return string(out), 0
		}
		out = append(out, one[0])
	}
	return "", -defs.EFAULT
}

/// CopyInArgv copies a NUL-pointer-terminated array of string pointers
/// (each 8 bytes) starting at uva, bounded by maxArgc entries and
/// maxArgLen bytes per string (spec.md §4.4 exec inputs).
func (as *AddressSpace) CopyInArgv(uva uint, maxArgc, maxArgLen int) ([]string, defs.Err_t) {
	var argv []string
	for i := 0; i < maxArgc; i++ {
		var raw [8]byte
		ub := NewUserbuf(as, uva+uint(i*8), 8)
		n, err := ub.Uioread(raw[:])
		if err != 0 || n != 8 {
			return nil, -defs.EFAULT
		}
		ptr := binary.LittleEndian.Uint64(raw[:])
		if ptr == 0 {
			return argv, 0
		}
		s, err := as.CopyInString(bounds.B_EXECV_ARG, uint(ptr), maxArgLen)
		if err != 0 {
			return nil, err
		}
		argv = append(argv, s)
	}
	return nil, -defs.EFAULT
}
