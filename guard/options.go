package guard

import (
	"sync"

	"github.com/dijkstracula/safeptr/cfsm"
	"github.com/dijkstracula/safeptr/internal/condlock"
	"github.com/dijkstracula/safeptr/spinlock"
)

// Recognized mutex-type shortcuts (spec.md §6): the guarded handle's
// mutex type is configurable, and these cover the built-in choices --
// the stdlib recursive-less RWMutex, this module's own recursive
// spinlock, its contention-free shared mutex, and its condvar-based
// (non-recursive) RWMutex -- alongside any user-supplied sync.Locker via
// WithMutex(AsRWLocker(...)) directly.

// WithRWMutex selects a plain *sync.RWMutex backend (the default if no
// option is given).
func WithRWMutex[T any]() Option[T] {
	return WithMutex[T](&sync.RWMutex{})
}

// WithSpinlock selects the recursive spinlock backend. It has no real
// shared mode, so S() and X() both take the same exclusive spin.
func WithSpinlock[T any]() Option[T] {
	return WithMutex[T](AsRWLocker(&spinlock.Recursive{}))
}

// WithCFSM selects the contention-free shared mutex backend, with n
// reader slots (or cfsm.DefaultSlots if n is omitted).
func WithCFSM[T any](n ...int) Option[T] {
	return WithMutex[T](cfsm.New(n...))
}

// WithCondRWMutex selects the condvar-based RWMutex backend, which parks
// contended callers instead of spinning.
func WithCondRWMutex[T any]() Option[T] {
	return WithMutex[T](condlock.NewRWMutex())
}

// The same shortcuts for GuardedObj[T]:

func WithObjRWMutex[T any]() ObjOption[T] {
	return WithObjMutex[T](&sync.RWMutex{})
}

func WithObjSpinlock[T any]() ObjOption[T] {
	return WithObjMutex[T](AsRWLocker(&spinlock.Recursive{}))
}

func WithObjCFSM[T any](n ...int) ObjOption[T] {
	return WithObjMutex[T](cfsm.New(n...))
}

func WithObjCondRWMutex[T any]() ObjOption[T] {
	return WithObjMutex[T](condlock.NewRWMutex())
}
