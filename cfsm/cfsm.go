// Package cfsm implements a contention-free shared mutex: a reader/writer
// lock whose shared (reader) path touches only a per-goroutine cache line,
// never a shared atomic counter.
//
// Each goroutine that uses a given Mutex registers, at most once, a private
// slot in a fixed-size array. A registered reader's RLock/RUnlock
// pair touches only its own slot and the writer-intent flag; it never
// contends with another reader's slot. A writer must inspect every slot,
// which is the intended and documented tradeoff: writers are the expensive,
// starvable side of this lock, and reads are the cheap, scalable side.
//
// Goroutines beyond the slot count silently fall back to treating the
// mutex as exclusive for their shared-lock calls; this is not an error,
// merely reduced read concurrency once every slot of the Mutex is taken.
package cfsm

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dijkstracula/safeptr/internal/gid"
)

// DefaultSlots is the number of per-goroutine reader slots a Mutex built
// with New() reserves, matching the contention_free_shared_mutex default
// in the original C++ (AlexeyAB/object_threadsafe).
const DefaultSlots = 36

const (
	slotTombstone  int32 = -1 // mutex has been Close()d
	slotFree       int32 = 0  // unregistered
	slotRegistered int32 = 1  // registered, not currently shared-locked
)

const (
	sharedYieldEvery    = 100000
	exclusiveYieldEvery = 1000000
)

// cacheLine is padding to keep hot fields from false-sharing a cache line
// with their neighbors.
type cacheLine = [64]byte

// slot is one goroutine's reader counter. A value >= 2 means its owning
// goroutine currently holds the shared lock (value - 1 times, recursively).
type slot struct {
	value atomic.Int32
	_     [60]byte // pad the 4-byte atomic out to a 64-byte cache line
}

// Mutex is a contention-free shared (reader/writer) mutex. The zero value
// is not usable; construct one with New.
//
// Same-lock-type recursion is permitted: X->X, X->S, and S->S on the same
// goroutine all succeed. S->X upgrade by the same goroutine is forbidden
// and, for a goroutine holding a reader slot, panics, exactly as spec'd: "S→X upgrade by the same thread is
// undefined behavior" in the original becomes a checked panic here, since
// Go gives us no cheaper way to make it UB and a checked panic is strictly
// safer.
type Mutex struct {
	_      cacheLine
	wantX  atomic.Bool
	_      cacheLine
	owner  atomic.Int64
	xdepth int64 // owner-private: touched only while owner holds exclusive-ish access
	_      cacheLine
	slots  []slot
}

// New constructs a Mutex with n reader slots, or DefaultSlots if n is
// omitted or non-positive.
func New(n ...int) *Mutex {
	count := DefaultSlots
	if len(n) > 0 && n[0] > 0 {
		count = n[0]
	}
	return &Mutex{slots: make([]slot, count)}
}

// Close tombstones the mutex: every slot is marked destroyed so that any
// goroutine whose per-goroutine registry still references this instance
// notices and self-purges on next touch. Go has no deterministic
// destructors, so callers that rely on slot reclamation across many
// short-lived Mutex instances should call Close explicitly when a Mutex is
// retired.
func (m *Mutex) Close() {
	for i := range m.slots {
		m.slots[i].value.Store(slotTombstone)
	}
}

// goroutineRegistry records which slot index a goroutine has claimed on
// each Mutex it has used. -1 means the goroutine tried once and permanently fell
// back to the exclusive path for this Mutex (spec: "Registration is
// attempted at most once per thread per CFSM").
type goroutineRegistry struct {
	entries map[*Mutex]int
}

// perGoroutine simulates Go's missing goroutine-local storage: each
// goroutine only ever reads and writes its own entry (keyed by goroutine
// id), so there is no contention between goroutines despite the shared
// map, the same access pattern sync.Map's own documentation recommends it
// for.
var perGoroutine sync.Map // map[int64]*goroutineRegistry

func currentRegistry() *goroutineRegistry {
	id := gid.Get()
	if v, ok := perGoroutine.Load(id); ok {
		return v.(*goroutineRegistry)
	}
	v, _ := perGoroutine.LoadOrStore(id, &goroutineRegistry{entries: make(map[*Mutex]int)})
	return v.(*goroutineRegistry)
}

// prune drops entries for mutexes that have been tombstoned since this
// goroutine last registered with them.
func (reg *goroutineRegistry) prune() {
	for mtx, idx := range reg.entries {
		if idx >= 0 && mtx.slots[idx].value.Load() == slotTombstone {
			delete(reg.entries, mtx)
		}
	}
}

// index returns the calling goroutine's slot index for m, making the
// one-time registration attempt first if this goroutine has not made it
// yet, or -1 if the goroutine has permanently fallen back to the
// exclusive path.
func (m *Mutex) index() int {
	reg := currentRegistry()
	if idx, ok := reg.entries[m]; ok {
		return idx
	}
	return m.register(reg)
}

// peekIndex returns the calling goroutine's cached slot index for m
// without attempting to register one, or -1 if none is cached. A writer
// that never reads must not consume a reader slot merely by calling
// Lock -- mirroring the original's get-only get_or_set_index() call from
// lock() (safe_ptr.h:521).
func (m *Mutex) peekIndex() int {
	reg := currentRegistry()
	if idx, ok := reg.entries[m]; ok {
		return idx
	}
	return -1
}

// register makes a single attempt to claim a free slot, caching whatever
// the outcome is (a slot index, or permanent fallback) in reg.
func (m *Mutex) register(reg *goroutineRegistry) int {
	idx := -1
	for i := range m.slots {
		if m.slots[i].value.CompareAndSwap(slotFree, slotRegistered) {
			idx = i
			break
		}
	}
	reg.entries[m] = idx
	reg.prune()
	return idx
}

// UnregisterCurrentGoroutine releases the calling goroutine's slot back to
// the free pool, if it holds one and is not currently shared-locked. It
// reports whether a slot was released.
func (m *Mutex) UnregisterCurrentGoroutine() bool {
	reg := currentRegistry()
	idx, ok := reg.entries[m]
	if !ok || idx < 0 {
		return false
	}
	if m.slots[idx].value.Load() != slotRegistered {
		return false
	}
	m.slots[idx].value.Store(slotFree)
	delete(reg.entries, m)
	return true
}

func yieldingSpin(i int, every int) {
	if i%every == 0 {
		runtime.Gosched()
	}
}

// RLock acquires the mutex in shared mode. Registered goroutines touch
// only their own slot and the writer-intent flag. Unregistered goroutines
// (past the slot count) degrade to the exclusive path, which is mutually
// exclusive with both readers and writers.
func (m *Mutex) RLock() {
	if m.owner.Load() == gid.Get() && m.xdepth > 0 {
		// Already hold this Mutex exclusively: X->S must succeed without
		// deadlocking on our own pending wantX, so fold it into the
		// exclusive recursion instead of taking the slot path.
		m.lockExclusiveSide()
		return
	}

	idx := m.index()
	if idx < 0 {
		m.lockExclusiveSide()
		return
	}

	depth := m.slots[idx].value.Load()
	if depth < 1 {
		panic("cfsm: corrupted slot state on RLock")
	}
	if depth > 1 {
		// Recursive shared acquisition: a writer may already have set
		// wantX, but it cannot proceed while our slot is at depth >= 2, so
		// there is no need to back off.
		m.slots[idx].value.Store(depth + 1)
		return
	}

	m.slots[idx].value.Store(depth + 1)
	for i := 0; m.wantX.Load(); i++ {
		m.slots[idx].value.Store(depth)
		for j := 0; m.wantX.Load(); j++ {
			yieldingSpin(j, sharedYieldEvery)
		}
		m.slots[idx].value.Store(depth + 1)
	}
}

// RUnlock releases one level of shared-mode recursion.
func (m *Mutex) RUnlock() {
	if m.owner.Load() == gid.Get() && m.xdepth > 0 {
		// Mirrors the RLock diversion above: an X->S acquisition folded
		// into the exclusive recursion must be undone the same way.
		m.unlockExclusiveSide()
		return
	}

	idx := m.index()
	if idx < 0 {
		m.unlockExclusiveSide()
		return
	}
	depth := m.slots[idx].value.Load()
	if depth <= 1 {
		panic("cfsm: RUnlock of Mutex not shared-locked by calling goroutine")
	}
	m.slots[idx].value.Store(depth - 1)
}

// Lock acquires the mutex in exclusive mode. It is undefined (and
// detected with a panic rather than silently corrupting state) to call
// Lock on a goroutine that already holds this Mutex in shared mode: there
// is no S->X upgrade. The panic covers goroutines holding a reader slot; a
// goroutine past the slot count already holds its shared lock through the
// exclusive path, so its Lock call is an exclusive recursion and does not
// panic.
func (m *Mutex) Lock() {
	if idx := m.peekIndex(); idx >= 0 {
		if m.slots[idx].value.Load() != slotRegistered {
			panic("cfsm: S->X upgrade is not supported")
		}
	}
	m.lockExclusiveSide()
}

func (m *Mutex) lockExclusiveSide() {
	self := gid.Get()
	if m.owner.Load() != self {
		for i := 0; !m.wantX.CompareAndSwap(false, true); i++ {
			yieldingSpin(i, exclusiveYieldEvery)
		}
		m.owner.Store(self)

		for i := range m.slots {
			for j := 0; m.slots[i].value.Load() > slotRegistered; j++ {
				yieldingSpin(j, sharedYieldEvery)
			}
		}
	}
	m.xdepth++
}

// Unlock releases one level of exclusive-mode recursion.
func (m *Mutex) Unlock() {
	m.unlockExclusiveSide()
}

func (m *Mutex) unlockExclusiveSide() {
	if m.xdepth <= 0 {
		panic("cfsm: Unlock of Mutex not locked by calling goroutine")
	}
	m.xdepth--
	if m.xdepth == 0 {
		m.owner.Store(gid.None)
		m.wantX.Store(false)
	}
}
