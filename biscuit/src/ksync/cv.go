package ksync

import (
	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/sleepq"
)

/// Cv_t is a condition variable bound to a caller-supplied mutex at each
/// call site, not at construction, matching the original's cv_wait(cv, m)
/// signature. Spurious wakeups are permitted; callers must re-test their
/// predicate in a loop.
type Cv_t struct{}

/// MkCv constructs a condition variable.
func MkCv() *Cv_t {
	return &Cv_t{}
}

/// Wait releases m, blocks until signalled, and re-acquires m before
/// returning. The release/sleep/reacquire sequence is interrupt-atomic
/// with respect to Signal/Broadcast.
func (cv *Cv_t) Wait(self any, m *Mutex_t) {
	spl := critsec.Splhigh()
	m.Release(self)
	spl = sleepq.Sleep(cv, spl)
	critsec.Splx(spl)
	m.Acquire(self)
}

/// Signal wakes one sleeper. The caller must hold m (checked against the
/// usual ksync fatal-failure model: signalling without holding the mutex
/// is a kernel bug).
func (cv *Cv_t) Signal(self any, m *Mutex_t) {
	if !m.Holds(self) {
		panic("ksync: cv signal without holding bound mutex")
	}
	sleepq.WakeOne(cv)
}

/// Broadcast wakes every sleeper. Same holding requirement as Signal.
func (cv *Cv_t) Broadcast(self any, m *Mutex_t) {
	if !m.Holds(self) {
		panic("ksync: cv broadcast without holding bound mutex")
	}
	sleepq.WakeAll(cv)
}
