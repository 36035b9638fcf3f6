// Package critsec models the single per-CPU "interrupt priority" of a
// uniprocessor kernel (splhigh/splx/curspl) as one global critical
// section. Design note (per the single-CPU model, spec.md §9 option
// (a)): representing "interrupts raised" as a guard brackets exactly the
// same sections splhigh/splx would, since there is only one CPU to
// serialize — and, like the real primitive, nested Splhigh calls from
// the thread that already raised priority are harmless (a no-op at the
// hardware level); only a different thread actually blocks. This package
// tracks which goroutine currently holds the section and its nesting
// depth so the same goroutine can re-enter (e.g. a page-fault handler
// that triggers a coremap eviction whose write-back calls back into the
// same address space's PTE-writing method) without deadlocking itself.
package critsec

import (
	"runtime"
	"strconv"
	"sync"
)

var (
	mu    sync.Mutex
	cond  = sync.NewCond(&mu)
	held  bool
	owner uint64
	depth int
)

// goroutineID extracts the numeric id from runtime.Stack's leading
// "goroutine N [...]:" line. Used only to recognize re-entry by the
// same logical thread; never exposed outside this package.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if len(b) <= len(prefix) {
		return 0
	}
	b = b[len(prefix):]
	i := 0
	for i < len(b) && b[i] != ' ' {
		i++
	}
	id, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return id
}

/// Spl_t is the opaque token Splx needs to restore the priority that was
/// in effect before the matching Splhigh.
type Spl_t struct {
	wasOutermost bool
}

/// Splhigh raises interrupt priority, blocking until any other holder
/// (a different goroutine) has restored it. A goroutine that already
/// holds the section may call Splhigh again without blocking.
func Splhigh() Spl_t {
	g := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	for held && owner != g {
		cond.Wait()
	}
	outermost := !held
	held = true
	owner = g
	depth++
	return Spl_t{wasOutermost: outermost}
}

/// Splx restores the priority captured by the matching Splhigh. Calling
/// Splx without a matching Splhigh, or from a different goroutine than
/// the one holding the section, is a kernel bug (panic).
func Splx(s Spl_t) {
	mu.Lock()
	defer mu.Unlock()
	if !held || owner != goroutineID() {
		panic("critsec: splx without matching splhigh")
	}
	depth--
	if depth == 0 {
		held = false
		owner = 0
		cond.Broadcast()
	}
}

/// Curspl reports whether interrupt priority is currently raised.
/// Intended for assertions ("this must run inside a critical section"),
/// not for control flow.
func Curspl() bool {
	mu.Lock()
	defer mu.Unlock()
	return held
}
