package ksync

import (
	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/sleepq"
)

/// Mutex_t is a blocking mutex with owner tracking. The owner is an
/// arbitrary comparable identity (typically a *sched.Thread) supplied by
/// the caller at every entry point, rather than read from a hidden
/// curthread global, per the "plumb curthread explicitly" design note.
type Mutex_t struct {
	held   bool
	holder any
}

/// MkMutex constructs an unheld mutex.
func MkMutex() *Mutex_t {
	return &Mutex_t{}
}

/// Acquire blocks while the mutex is held by someone else, then takes it.
func (m *Mutex_t) Acquire(self any) {
	spl := critsec.Splhigh()
	for m.held {
		spl = sleepq.Sleep(m, spl)
	}
	m.held = true
	m.holder = self
	critsec.Splx(spl)
}

/// TryAcquire takes the mutex without blocking, reporting whether it
/// succeeded.
func (m *Mutex_t) TryAcquire(self any) bool {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	if m.held {
		return false
	}
	m.held = true
	m.holder = self
	return true
}

/// Release gives up the mutex. Releasing a mutex one does not hold is a
/// kernel bug (panic), matching the fatal-failure model.
func (m *Mutex_t) Release(self any) {
	spl := critsec.Splhigh()
	if !m.held || m.holder != self {
		critsec.Splx(spl)
		panic("ksync: release of unheld or not-owned mutex")
	}
	m.holder = nil
	m.held = false
	sleepq.WakeAll(m)
	critsec.Splx(spl)
}

/// Holds reports whether self currently holds the mutex.
func (m *Mutex_t) Holds(self any) bool {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	return m.held && m.holder == self
}

/// AcquireAll takes every lock in locks as a single all-or-none unit: it
/// tries each in turn, and if one is unavailable, releases everything it
/// had already taken and blocks until the unavailable one becomes free
/// before retrying the whole sequence from scratch. This is the
/// acquire_multiple deadlock-avoidance idiom (no thread ever holds a
/// strict subset of locks[i:] while waiting on locks[i]).
func AcquireAll(self any, locks ...*Mutex_t) {
retry:
	held := make([]*Mutex_t, 0, len(locks))
	for _, l := range locks {
		if l.TryAcquire(self) {
			held = append(held, l)
			continue
		}
		for _, h := range held {
			h.Release(self)
		}
		l.Acquire(self)
		l.Release(self)
		goto retry
	}
}

/// Acquire2 acquires two locks atomically (all-or-none).
func Acquire2(self any, a, b *Mutex_t) {
	AcquireAll(self, a, b)
}

/// Acquire3 acquires three locks atomically (all-or-none).
func Acquire3(self any, a, b, c *Mutex_t) {
	AcquireAll(self, a, b, c)
}
