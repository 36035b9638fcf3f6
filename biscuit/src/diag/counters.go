// Package diag exposes kernel-internal counters and two exporters for
// them: a human-scaled text report and a point-in-time pprof-format
// profile of coremap frame ownership. Grounded on stats/stats.go's
// Counter_t (a plain atomically-incremented int64), generalized from
// that file's reflect-over-struct-fields walk to an explicit named-
// counter map, since this port's counters are not all housed on one
// struct the way the teacher's per-subsystem stat blocks were.
package diag

import "sync/atomic"

// Name enumerates the counters this kernel tracks.
type Name int

const (
	PageFaults Name = iota
	Evictions
	SwapIns
	SwapOuts
	Syscalls
	AccountedUserNs
	AccountedSysNs
	numCounters
)

var names = [numCounters]string{
	PageFaults:      "page_faults",
	Evictions:       "evictions",
	SwapIns:         "swap_ins",
	SwapOuts:        "swap_outs",
	Syscalls:        "syscalls",
	AccountedUserNs: "accounted_user_ns",
	AccountedSysNs:  "accounted_sys_ns",
}

func (n Name) String() string { return names[n] }

/// Counters holds one atomic int64 per Name. The zero value is ready to
/// use; one instance is shared kernel-wide, matching stats.go's own
/// package-level counter fields.
type Counters struct {
	vals [numCounters]int64
}

/// Inc atomically increments the named counter by one.
func (c *Counters) Inc(n Name) {
	atomic.AddInt64(&c.vals[n], 1)
}

/// Add atomically increments the named counter by delta.
func (c *Counters) Add(n Name, delta int64) {
	atomic.AddInt64(&c.vals[n], delta)
}

/// Get reads the named counter's current value.
func (c *Counters) Get(n Name) int64 {
	return atomic.LoadInt64(&c.vals[n])
}

/// Snapshot returns every counter's current value keyed by name, for the
/// exporters below.
func (c *Counters) Snapshot() map[Name]int64 {
	m := make(map[Name]int64, numCounters)
	for n := Name(0); n < numCounters; n++ {
		m[n] = c.Get(n)
	}
	return m
}
