package proc

import (
	"github.com/ilovaca/ece344/biscuit/src/defs"
	"github.com/ilovaca/ece344/biscuit/src/vm"
)

/// Getpid returns pid unchanged; it exists as a Table method purely so
/// the syscall dispatcher has a uniform shape for every entry point
/// (spec.md §4.8), even this trivial one.
func (t *Table) Getpid(pid defs.Pid_t) defs.Pid_t {
	t.mustGet(pid)
	return pid
}

/// Read reads n bytes from the console, one character at a time (spec.md
/// §6), and copies them out to the user buffer at uva, returning the
/// number of bytes actually transferred.
func (t *Table) Read(pid defs.Pid_t, uva uint, n int) (int, defs.Err_t) {
	p := t.mustGet(pid)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = t.console.Getch()
	}
	p.mu.Lock()
	as := p.as
	p.mu.Unlock()
	ub := vm.NewUserbuf(as, uva, n)
	got, err := ub.Uiowrite(buf)
	if err != 0 {
		return 0, err
	}
	return got, 0
}

/// Write copies n bytes in from the user buffer at uva and writes them to
/// the console one character at a time, returning the number of bytes
/// actually transferred.
func (t *Table) Write(pid defs.Pid_t, uva uint, n int) (int, defs.Err_t) {
	p := t.mustGet(pid)
	p.mu.Lock()
	as := p.as
	p.mu.Unlock()
	buf := make([]byte, n)
	ub := vm.NewUserbuf(as, uva, n)
	got, err := ub.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	for _, b := range buf[:got] {
		t.console.Putch(b)
	}
	return got, 0
}

/// Sbrk adjusts pid's heap by incr bytes (may be negative), returning the
/// heap break prior to the adjustment, matching the conventional sbrk
/// contract spec.md §4.4 names.
func (t *Table) Sbrk(pid defs.Pid_t, incr int) (uint, defs.Err_t) {
	p := t.mustGet(pid)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.as.Sbrk(incr)
}
