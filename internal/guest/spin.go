package guest

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a busy waiting lock. The guest has no scheduler to park on so
// it's only correct with a single in flight call per VM.
type SpinLock struct {
	state atomic.Uint32
}

// TryLock acquires the lock if it's free.
func (s *SpinLock) TryLock() bool {
	return s.state.CompareAndSwap(0, 1)
}

// Lock spins until the lock is acquired.
func (s *SpinLock) Lock() {
	for !s.TryLock() {
		runtime.Gosched()
	}
}

// Unlock releases the lock.
func (s *SpinLock) Unlock() {
	if !s.state.CompareAndSwap(1, 0) {
		panic("guest: unlock of unlocked spin lock")
	}
}
