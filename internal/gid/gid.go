// Package gid gives every goroutine a stable, comparable identity.
//
// The lock types in this module need to tell "the goroutine that already
// holds this lock" apart from "a different goroutine," the same problem
// every recursive-mutex and deadlock-detector implementation in Go runs
// into since the language exposes no goroutine-local storage and no public
// goroutine-id API. We take the same way out that sasha-s/go-deadlock does:
// runtime.Stack parsing via petermattis/goid.
package gid

import "github.com/petermattis/goid"

// None is the zero value of a goroutine id and never returned by Get.
const None int64 = 0

// Get returns the calling goroutine's id.
func Get() int64 {
	return goid.Get()
}
