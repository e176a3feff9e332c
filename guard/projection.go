package guard

// Handle is satisfied by any guarded wrapper (Guarded, GuardedObj, and
// their Hidden variants) that XLock/SLock can acquire a lock on and read
// a value pointer out of.
type Handle[T any] interface {
	lockerFor() RWLocker
	valueFor() *T
}

// Exclusive is an already-locked exclusive view onto a Handle's value,
// returned by XLock. Release must be called exactly once (typically via
// defer) to release the lock; Go has no destructors to do this
// automatically the way the original's xlocked_safe_ptr does.
type Exclusive[T any] struct {
	locker RWLocker
	val    *T
}

// Get returns the guarded value without taking any further lock: the
// caller already holds the exclusive lock for the lifetime of this view.
func (e *Exclusive[T]) Get() *T { return e.val }

// Release releases the exclusive lock acquired by XLock.
func (e *Exclusive[T]) Release() { e.locker.Unlock() }

// XLock acquires h's mutex in exclusive mode and returns a view exposing
// the inner value without re-locking -- spec.md §4.E's xlock.
func XLock[T any](h Handle[T]) *Exclusive[T] {
	l := h.lockerFor()
	l.Lock()
	return &Exclusive[T]{locker: l, val: h.valueFor()}
}

// Shared is an already-locked shared view onto a Handle's value, returned
// by SLock.
type Shared[T any] struct {
	locker RWLocker
	val    *T
}

// Get returns the guarded value without taking any further lock.
func (s *Shared[T]) Get() *T { return s.val }

// Release releases the shared lock acquired by SLock.
func (s *Shared[T]) Release() { s.locker.RUnlock() }

// SLock acquires h's mutex in shared mode and returns a view exposing the
// inner value without re-locking -- spec.md §4.E's slock.
//
// Composition pattern: a caller holding SLock(container) can, while still
// holding it, call XLock on an element found inside to mutate just that
// element -- an upper-level shared lock plus a lower-level exclusive lock,
// held in that defined order.
func SLock[T any](h Handle[T]) *Shared[T] {
	l := h.lockerFor()
	l.RLock()
	return &Shared[T]{locker: l, val: h.valueFor()}
}
