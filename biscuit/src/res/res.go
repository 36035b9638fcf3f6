// Package res is a small resource-budget checker: a named kernel
// resource (kernel heap bytes, in-flight copyins) has a finite remaining
// capacity, consumed by Noblock and given back by Return. Grounded on
// the teacher's vm/as.go, whose K2user_inner/User2k_inner call
// res.Resadd_noblock(...) before each bounded copy so a runaway copyin
// cannot exhaust the kernel heap; that package, like bounds, was
// referenced but not present in the retrieval, so this is the minimal
// surface its call sites imply.
package res

import "sync"

/// Res_t names a finite kernel resource.
type Res_t int

const (
	/// Kmalloc is kernel-heap bytes consumed by a bounded copyin buffer.
	Kmalloc Res_t = iota
)

/// Budget tracks remaining capacity per named resource.
type Budget struct {
	mu        sync.Mutex
	remaining map[Res_t]int
}

/// NewBudget constructs a Budget with the given starting capacities.
func NewBudget(limits map[Res_t]int) *Budget {
	b := &Budget{remaining: make(map[Res_t]int, len(limits))}
	for r, n := range limits {
		b.remaining[r] = n
	}
	return b
}

/// Noblock attempts to deduct n units of r without blocking, reporting
/// whether enough remained. Mirrors the teacher's "_noblock" naming: a
/// kernel entry point that cannot block must fail immediately rather
/// than wait for capacity to free up.
func (b *Budget) Noblock(r Res_t, n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining[r] < n {
		return false
	}
	b.remaining[r] -= n
	return true
}

/// Return gives back n units of r, e.g. once a copyin buffer is freed.
func (b *Budget) Return(r Res_t, n int) {
	b.mu.Lock()
	b.remaining[r] += n
	b.mu.Unlock()
}

/// Remaining reports the current capacity of r, for diagnostics.
func (b *Budget) Remaining(r Res_t) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining[r]
}
