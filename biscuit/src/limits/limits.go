package limits

import "sync/atomic"
import "unsafe"

/// Sysatomic_t is a saturating resource counter: Taken fails rather than
/// going negative, Given restores capacity, all without a separate lock.
/// No other package in this module uses it.
type Sysatomic_t int64

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the remaining count by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(s._aptr(), int64(n))
}

/// Taken decrements the remaining count by n, refusing (returning false)
/// if that would make it negative.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64(s._aptr(), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), int64(n))
	return false
}

/// Take is Taken(1).
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give is Given(1).
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

/// Cur reads the current remaining count.
func (s *Sysatomic_t) Cur() int64 {
	return atomic.LoadInt64(s._aptr())
}
