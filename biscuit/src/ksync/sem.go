// Package ksync implements the kernel's blocking synchronization
// primitives — counting semaphores, owner-tracking mutexes, and condition
// variables — atop sleepq and critsec, mirroring the P/V, lock_acquire/
// lock_release, and cv_wait/cv_signal/cv_broadcast routines of the
// original thread layer. The fatal-failure model (double release, signal
// without holding the mutex, destroying a semaphore with sleepers) is
// preserved as a panic, matching the original's own assert()-or-die
// convention for kernel bugs.
package ksync

import (
	"sync"

	"github.com/ilovaca/ece344/biscuit/src/critsec"
	"github.com/ilovaca/ece344/biscuit/src/sleepq"
)

/// Sem_t is a counting semaphore. P blocks while the count is zero; V
/// increments it and wakes every sleeper (spurious wakeups among them are
/// fine, since they simply re-check the count and sleep again).
type Sem_t struct {
	mu      sync.Mutex
	count   int
	waiters int
}

/// MkSem constructs a semaphore with the given initial count.
func MkSem(count int) *Sem_t {
	return &Sem_t{count: count}
}

/// P decrements the count, blocking while it is zero. Must not be called
/// from interrupt-like (non-blockable) context.
func (s *Sem_t) P() {
	spl := critsec.Splhigh()
	for s.count == 0 {
		s.waiters++
		spl = sleepq.Sleep(s, spl)
		s.waiters--
	}
	s.count--
	critsec.Splx(spl)
}

/// V increments the count and wakes every sleeper on this semaphore.
func (s *Sem_t) V() {
	spl := critsec.Splhigh()
	s.count++
	sleepq.WakeAll(s)
	critsec.Splx(spl)
}

/// Count returns the current count, for diagnostics only.
func (s *Sem_t) Count() int {
	spl := critsec.Splhigh()
	c := s.count
	critsec.Splx(spl)
	return c
}

/// Destroy panics if sleepers remain, matching the fatal-failure model:
/// destroying a semaphore with sleepers is a kernel bug, not a user error.
func (s *Sem_t) Destroy() {
	spl := critsec.Splhigh()
	defer critsec.Splx(spl)
	if s.waiters != 0 {
		panic("ksync: semaphore destroyed with sleepers")
	}
}
