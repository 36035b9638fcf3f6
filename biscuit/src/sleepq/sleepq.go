// Package sleepq implements the kernel's sleep/wake queue: block the
// calling goroutine on an opaque key, and let another thread move it back
// to the ready set by waking that key. This is the mechanism every
// blocking primitive in ksync (semaphore, mutex, condition variable) is
// built from, mirroring the original's thread_sleep/thread_wakeup pair
// (keyed by an arbitrary address) rather than a runtime-level wait
// mechanism this port does not have access to.
package sleepq

import (
	"sync"

	"github.com/ilovaca/ece344/biscuit/src/critsec"
)

type waiter struct {
	wake chan struct{}
}

var (
	qmu sync.Mutex
	q   = make(map[any][]*waiter)
)

/// Sleep blocks the calling goroutine until a matching WakeOne or WakeAll
/// targets key. The caller must already hold the critical section (spl,
/// as returned by critsec.Splhigh); Sleep releases it for the duration of
/// the block and returns a freshly-raised token, so the caller is "returned
/// with priority still raised" exactly as the contract requires.
func Sleep(key any, spl critsec.Spl_t) critsec.Spl_t {
	w := &waiter{wake: make(chan struct{})}
	qmu.Lock()
	q[key] = append(q[key], w)
	qmu.Unlock()

	critsec.Splx(spl)
	<-w.wake
	return critsec.Splhigh()
}

/// WakeOne moves at most one sleeper on key to the ready set. A wake with
/// no sleepers is a no-op.
func WakeOne(key any) {
	qmu.Lock()
	ws := q[key]
	if len(ws) == 0 {
		qmu.Unlock()
		return
	}
	w := ws[0]
	rest := ws[1:]
	if len(rest) == 0 {
		delete(q, key)
	} else {
		q[key] = rest
	}
	qmu.Unlock()
	close(w.wake)
}

/// WakeAll moves every sleeper on key to the ready set.
func WakeAll(key any) {
	qmu.Lock()
	ws := q[key]
	delete(q, key)
	qmu.Unlock()
	for _, w := range ws {
		close(w.wake)
	}
}
