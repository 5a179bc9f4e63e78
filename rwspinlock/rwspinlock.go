// Package rwspinlock implements the reader/writer spinlock the
// concurrent table uses for per-group and table-wide locking: a single
// 32-bit atomic word (bit 31 exclusive, bit 30 writer-pending, bits
// 29..0 shared-reader count), spin-then-sleep backoff.
//
// Ported from original_source's detail/foa/rw_spinlock.hpp. Per the
// spec's REDESIGN FLAG (section 9), the writer-pending bit is used
// consistently as bit 30 (0x4000_0000) everywhere — the source has a
// 26-bit/30-bit typo in one branch of lock() that this port does not
// reproduce.
package rwspinlock

import (
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

const (
	exclusiveBit    uint32 = 0x8000_0000
	writerPending   uint32 = 0x4000_0000
	readerCountMask uint32 = 0x3FFF_FFFF

	spinCount = 24576
)

// RWSpinlock is a reader/writer spinlock. The zero value is unlocked.
type RWSpinlock struct {
	state uint32
	_     cpu.CacheLinePad // avoid false sharing between adjacent group locks
}

// TryLockShared attempts to acquire the lock in shared mode without
// blocking.
func (l *RWSpinlock) TryLockShared() bool {
	st := atomic.LoadUint32(&l.state)
	if st >= 0x3FFF_FFFF {
		// exclusive held, writer pending, or reader count saturated.
		return false
	}
	return atomic.CompareAndSwapUint32(&l.state, st, st+1)
}

// LockShared blocks until the lock is acquired in shared mode.
func (l *RWSpinlock) LockShared() {
	for {
		for k := 0; k < spinCount; k++ {
			st := atomic.LoadUint32(&l.state)
			if st < 0x3FFF_FFFF {
				if atomic.CompareAndSwapUint32(&l.state, st, st+1) {
					return
				}
			}
			pause()
		}
		sleep()
	}
}

// UnlockShared releases one shared hold.
func (l *RWSpinlock) UnlockShared() {
	atomic.AddUint32(&l.state, ^uint32(0)) // -1, pre: locked shared
}

// TryLock attempts to acquire the lock exclusively without blocking.
func (l *RWSpinlock) TryLock() bool {
	st := atomic.LoadUint32(&l.state)
	if st&exclusiveBit != 0 {
		return false
	}
	if st&readerCountMask != 0 {
		return false
	}
	return atomic.CompareAndSwapUint32(&l.state, st, exclusiveBit)
}

// Lock blocks until the lock is acquired exclusively.
func (l *RWSpinlock) Lock() {
	for {
		for k := 0; k < spinCount; k++ {
			st := atomic.LoadUint32(&l.state)
			switch {
			case st&exclusiveBit != 0:
				// locked exclusive, spin.
			case st&readerCountMask == 0:
				if atomic.CompareAndSwapUint32(&l.state, st, exclusiveBit) {
					return
				}
			case st&writerPending != 0:
				// writer pending bit already set, nothing to do.
			default:
				atomic.CompareAndSwapUint32(&l.state, st, st|writerPending)
			}
			pause()
		}

		// Clear the writer-pending bit before sleeping, to avoid
		// livelock: a sleeping writer holding the bit would forever
		// block new readers without making progress itself.
		for {
			st := atomic.LoadUint32(&l.state)
			if st&exclusiveBit != 0 {
				break
			}
			if st&readerCountMask == 0 {
				if atomic.CompareAndSwapUint32(&l.state, st, exclusiveBit) {
					return
				}
				continue
			}
			if st&writerPending == 0 {
				break
			}
			if atomic.CompareAndSwapUint32(&l.state, st, st&^writerPending) {
				break
			}
		}

		sleep()
	}
}

// Unlock releases the exclusive lock.
func (l *RWSpinlock) Unlock() {
	atomic.StoreUint32(&l.state, 0) // pre: locked exclusive, not locked shared
}

func pause() {
	runtime.Gosched()
}

func sleep() {
	time.Sleep(time.Microsecond)
}
