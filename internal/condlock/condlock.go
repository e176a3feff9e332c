// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package condlock implements a plain shared/exclusive mutex on top of a
// condition variable, packing both counters into a single atomically
// addressed word the way ilock.Mutex packs its four intention-lock states.
//
// This is a flattening of that four-state (S, X, IS, IX) hierarchical
// intention lock down to the two states this module's handle types need:
// there is no tree to intend-lock down into here, just shared and
// exclusive access to a single guarded value. Where ilock.Mutex blocks a
// request incompatible with the currently-held states by waiting on a
// sync.Cond, RWMutex does exactly the same thing with half the state
// space.
package condlock

import (
	"sync"
	"sync/atomic"
)

// RWMutex is a blocking (condvar-based, not spinning) shared/exclusive
// mutex suitable for use as a guard.Option mutex backend when a caller
// prefers to park instead of spin while contended.
//
//	|63                      32|31                       0|
//	 \          X count       / \        S count          /
type RWMutex struct {
	mtx   sync.Mutex
	c     *sync.Cond
	state uint64
}

const sOffset uint64 = 0
const sMask uint64 = (1 << 32) - 1
const xOffset uint64 = 32
const xMask uint64 = 0xffffffff00000000

func extractS(state uint64) uint64 { return (state & sMask) >> sOffset }
func setS(state, val uint64) uint64 {
	return (state & ^sMask) | (val << sOffset)
}
func extractX(state uint64) uint64 { return (state & xMask) >> xOffset }
func setX(state, val uint64) uint64 {
	return (state & ^xMask) | (val << xOffset)
}

func compatibleWithS(state uint64) bool { return extractX(state) == 0 }
func compatibleWithX(state uint64) bool { return state == 0 }

// NewRWMutex returns a ready-to-use RWMutex.
func NewRWMutex() *RWMutex {
	m := &RWMutex{}
	m.c = sync.NewCond(&m.mtx)
	return m
}

func (m *RWMutex) registerS() bool {
	for {
		state := atomic.LoadUint64(&m.state)
		newState := setS(state, extractS(state)+1)
		if atomic.CompareAndSwapUint64(&m.state, state, newState) {
			return compatibleWithS(state)
		}
	}
}

func (m *RWMutex) registerX() bool {
	for {
		state := atomic.LoadUint64(&m.state)
		newState := setX(state, extractX(state)+1)
		if atomic.CompareAndSwapUint64(&m.state, state, newState) {
			return compatibleWithX(state)
		}
	}
}

// RLock takes the mutex for shared read access, blocking while it is held
// exclusively.
func (m *RWMutex) RLock() {
	m.mtx.Lock()
	for !compatibleWithS(atomic.LoadUint64(&m.state)) {
		m.c.Wait()
	}
	m.registerS()
	m.mtx.Unlock()
}

// RUnlock releases one shared holder and wakes any blocked waiters if that
// was the last one.
func (m *RWMutex) RUnlock() {
	var val uint64
	for {
		state := atomic.LoadUint64(&m.state)
		val = extractS(state) - 1
		newState := setS(state, val)
		if atomic.CompareAndSwapUint64(&m.state, state, newState) {
			break
		}
	}
	if val == 0 {
		m.mtx.Lock()
		m.c.Broadcast()
		m.mtx.Unlock()
	}
}

// Lock takes the mutex for exclusive access, blocking while it is held in
// any state.
func (m *RWMutex) Lock() {
	m.mtx.Lock()
	for !compatibleWithX(atomic.LoadUint64(&m.state)) {
		m.c.Wait()
	}
	m.registerX()
	m.mtx.Unlock()
}

// Unlock releases exclusive access and wakes any blocked waiters.
func (m *RWMutex) Unlock() {
	var val uint64
	for {
		state := atomic.LoadUint64(&m.state)
		val = extractX(state) - 1
		newState := setX(state, val)
		if atomic.CompareAndSwapUint64(&m.state, state, newState) {
			break
		}
	}
	if val == 0 {
		m.mtx.Lock()
		m.c.Broadcast()
		m.mtx.Unlock()
	}
}
