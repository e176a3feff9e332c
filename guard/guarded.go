package guard

import "sync"

// Guarded bundles a value of type T with a mutex. Copies of a Guarded
// share the same (value, mutex) pair -- "two handles, one lock" -- so
// copying a handle is cheap and does not grant an independent lock; the
// pair is only reclaimed once every copy is unreachable, which for a Go
// pointer type falls naturally out of the garbage collector rather than
// needing the original's shared_ptr refcounting.
type Guarded[T any] struct {
	ptr *T
	mtx RWLocker
}

// Option configures a Guarded[T] at construction time, standing in for
// the original's compile-time mutex/lock-guard template parameters.
type Option[T any] func(*Guarded[T])

// WithMutex selects the mutex implementation backing a Guarded[T].
// Recognized mutex types per spec.md §6 include *sync.RWMutex (the
// default), *cfsm.Mutex, *condlock.RWMutex, or any user type satisfying
// RWLocker; a type with only sync.Locker (such as *spinlock.Recursive) is
// passed wrapped in AsRWLocker, which gives it no real shared mode.
func WithMutex[T any](m RWLocker) Option[T] {
	return func(g *Guarded[T]) { g.mtx = m }
}

// NewGuarded constructs a Guarded[T] from a constructor closure, Go's
// answer to "construction from arbitrary constructor arguments of T."
func NewGuarded[T any](ctor func() T, opts ...Option[T]) *Guarded[T] {
	v := ctor()
	return AdoptGuarded(v, opts...)
}

// AdoptGuarded wraps an already-built value, the alternate constructor of
// spec.md §4.C.
func AdoptGuarded[T any](v T, opts ...Option[T]) *Guarded[T] {
	g := &Guarded[T]{ptr: &v, mtx: &sync.RWMutex{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// X takes the exclusive lock, runs fn against the guarded value, and
// releases the lock when fn returns (including on panic).
func (g *Guarded[T]) X(fn func(*T)) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	fn(g.ptr)
}

// S takes the shared lock and runs fn against the guarded value. Callers
// must not mutate *T from within fn: Go's type system, unlike C++'s
// const-qualified member access, cannot enforce this, so it is a caller
// contract rather than a compiler-checked one.
func (g *Guarded[T]) S(fn func(*T)) {
	g.mtx.RLock()
	defer g.mtx.RUnlock()
	fn(g.ptr)
}

func (g *Guarded[T]) lockerFor() RWLocker { return g.mtx }
func (g *Guarded[T]) valueFor() *T { return g.ptr }
func (g *Guarded[T]) setLocker(m RWLocker) { g.mtx = m }

// HiddenGuarded has the same contract as Guarded, but privately holds it
// so ordinary member access (g.X, g.S) is syntactically impossible. The
// only way to reach the inner value is through XLock/SLock, matching
// spec.md §4.D's "hidden" variants.
type HiddenGuarded[T any] struct {
	inner Guarded[T]
}

// NewHiddenGuarded constructs a HiddenGuarded[T] from a constructor
// closure.
func NewHiddenGuarded[T any](ctor func() T, opts ...Option[T]) *HiddenGuarded[T] {
	return &HiddenGuarded[T]{inner: *NewGuarded(ctor, opts...)}
}

func (h *HiddenGuarded[T]) lockerFor() RWLocker { return h.inner.lockerFor() }
func (h *HiddenGuarded[T]) valueFor() *T { return h.inner.valueFor() }
func (h *HiddenGuarded[T]) setLocker(m RWLocker) { h.inner.setLocker(m) }
