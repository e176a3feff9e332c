// Package spinlock implements a recursive spinlock with owner-goroutine
// tracking.
//
// Unlike sync.Mutex, Recursive may be locked more than once by the
// goroutine that already holds it (X->X recursion); it is not fair and not
// intended for long critical sections — it busy-spins, yielding to the Go
// scheduler periodically, rather than parking the goroutine.
package spinlock

import (
	"runtime"
	"sync/atomic"

	"github.com/dijkstracula/safeptr/internal/gid"
)

// yieldEvery controls how often a spinning goroutine calls runtime.Gosched
// while waiting for the lock to become available.
const yieldEvery = 100000

// Recursive is a spinlock that may be re-entered by its owning goroutine.
// The zero value is an unlocked spinlock ready for use.
type Recursive struct {
	flag  atomic.Bool
	owner atomic.Int64
	depth int64 // owner-private: only ever touched while flag is held by owner
}

// TryLock attempts to acquire the lock without blocking. It succeeds
// immediately if the lock is free, or if the calling goroutine already
// holds it (in which case the recursion depth is incremented).
func (r *Recursive) TryLock() bool {
	self := gid.Get()
	if r.flag.CompareAndSwap(false, true) {
		r.owner.Store(self)
		r.depth = 1
		return true
	}
	if r.owner.Load() == self {
		r.depth++
		return true
	}
	return false
}

// Lock blocks until the calling goroutine holds the lock, spinning and
// periodically yielding to the scheduler.
func (r *Recursive) Lock() {
	for i := 0; !r.TryLock(); i++ {
		if i%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Unlock releases one level of recursion held by the calling goroutine.
// It panics if the calling goroutine does not currently hold the lock, the
// same contract sync.Mutex.Unlock enforces on an unlocked mutex.
func (r *Recursive) Unlock() {
	if r.owner.Load() != gid.Get() || r.depth <= 0 {
		panic("spinlock: Unlock of Recursive not locked by calling goroutine")
	}
	r.depth--
	if r.depth == 0 {
		r.owner.Store(gid.None)
		r.flag.Store(false)
	}
}
