// Package partmap implements a range-partitioned ordered map: a top-level
// ordered index from partition boundary to a guarded ordered sub-map (a
// shard). Partition boundaries are fixed at construction, so operations
// touching a single key lock only that key's shard -- the sub-containers'
// locks are independent, matching spec.md §3's partitioned-map invariant.
package partmap

import (
	"cmp"
	"sort"

	"github.com/dijkstracula/safeptr/guard"
)

// Entry is a key/value pair, the result_vector_t element type of
// spec.md §6.
type Entry[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// Shard is one partition's ordered sub-map: a maintained-sorted slice of
// keys with a parallel slice of values, searched with sort.Search. Its
// methods assume the caller already holds the appropriate lock on the
// Guarded[Shard[K,V]] that owns it -- they are deliberately not
// self-locking, so Map's own methods (which lock) and external callers
// composing guard.XLock/guard.SLock directly (per spec.md §4.E) share the
// same unlocked primitives.
type Shard[K cmp.Ordered, V any] struct {
	keys []K
	vals []V
}

func (s *Shard[K, V]) lowerBound(k K) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= k })
}

func (s *Shard[K, V]) upperBound(k K) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] > k })
}

// Emplace inserts or overwrites the value at k.
func (s *Shard[K, V]) Emplace(k K, v V) {
	i := s.lowerBound(k)
	if i < len(s.keys) && s.keys[i] == k {
		s.vals[i] = v
		return
	}
	s.keys = append(s.keys, k)
	copy(s.keys[i+1:], s.keys[i:len(s.keys)-1])
	s.keys[i] = k

	s.vals = append(s.vals, v)
	copy(s.vals[i+1:], s.vals[i:len(s.vals)-1])
	s.vals[i] = v
}

// Erase removes k, reporting how many entries were removed (0 or 1).
func (s *Shard[K, V]) Erase(k K) int {
	i := s.lowerBound(k)
	if i < len(s.keys) && s.keys[i] == k {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
		s.vals = append(s.vals[:i], s.vals[i+1:]...)
		return 1
	}
	return 0
}

// RangeEqual returns entries with key exactly k (0 or 1 of them, since
// keys are unique, kept as a slice to match the vector-valued contract of
// spec.md §4.H's get_range_equal).
func (s *Shard[K, V]) RangeEqual(k K) []Entry[K, V] {
	lo, hi := s.lowerBound(k), s.upperBound(k)
	return s.slice(lo, hi)
}

// RangeLowerUpper returns entries with key in [low, up].
func (s *Shard[K, V]) RangeLowerUpper(low, up K) []Entry[K, V] {
	lo, hi := s.lowerBound(low), s.upperBound(up)
	return s.slice(lo, hi)
}

// EraseLowerUpper removes entries with key in [low, up].
func (s *Shard[K, V]) EraseLowerUpper(low, up K) {
	lo, hi := s.lowerBound(low), s.upperBound(up)
	if lo >= hi {
		return
	}
	s.keys = append(s.keys[:lo], s.keys[hi:]...)
	s.vals = append(s.vals[:lo], s.vals[hi:]...)
}

// Size returns the number of entries in the shard.
func (s *Shard[K, V]) Size() int { return len(s.keys) }

// Clear removes every entry in the shard.
func (s *Shard[K, V]) Clear() {
	s.keys = nil
	s.vals = nil
}

func (s *Shard[K, V]) slice(lo, hi int) []Entry[K, V] {
	if lo >= hi {
		return nil
	}
	out := make([]Entry[K, V], 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, Entry[K, V]{Key: s.keys[i], Value: s.vals[i]})
	}
	return out
}

type boundedShard[K cmp.Ordered, V any] struct {
	boundary K
	shard    *guard.Guarded[Shard[K, V]]
}

// Map is a range-partitioned ordered map from K to V. Partition boundaries
// are fixed at construction by New or NewRange.
type Map[K cmp.Ordered, V any] struct {
	partitions []boundedShard[K, V]
}

func newShard[K cmp.Ordered, V any]() *guard.Guarded[Shard[K, V]] {
	return guard.NewGuarded(func() Shard[K, V] { return Shard[K, V]{} })
}

// New constructs a Map partitioned at the given boundary keys (spec.md
// §3's "initializer list of keys"). With no boundaries, the map has a
// single partition keyed by K's zero value.
func New[K cmp.Ordered, V any](boundaries ...K) *Map[K, V] {
	sorted := append([]K(nil), boundaries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	m := &Map[K, V]{}
	if len(sorted) == 0 {
		var zero K
		sorted = []K{zero}
	}
	for _, b := range sorted {
		m.partitions = append(m.partitions, boundedShard[K, V]{boundary: b, shard: newShard[K, V]()})
	}
	return m
}

// NewRange constructs a Map partitioned over [start, end] stepping by
// step (spec.md §3's numeric "[start, end, step]" range form).
func NewRange[K cmp.Ordered, V any](start, end, step K) *Map[K, V] {
	var bounds []K
	for k := start; k <= end; k += step {
		bounds = append(bounds, k)
	}
	return New[K, V](bounds...)
}

// partIndex returns the index of the partition whose boundary is the
// greatest key not greater than k, falling back to the last partition if
// no such boundary exists (spec.md §4.H; this fallback-on-underflow
// behavior is the Open Question spec.md §9 flags as "surprising but is
// the observed behavior" -- kept deliberately, not redesigned).
func (m *Map[K, V]) partIndex(k K) int {
	i := sort.Search(len(m.partitions), func(i int) bool { return m.partitions[i].boundary > k })
	idx := i - 1
	if idx < 0 {
		return len(m.partitions) - 1
	}
	return idx
}

// Part returns the guarded shard whose partition boundary is floor(k).
func (m *Map[K, V]) Part(k K) *guard.Guarded[Shard[K, V]] {
	return m.partitions[m.partIndex(k)].shard
}

// PartIt returns the index into the map's partition list that Part(k)
// would resolve to, the position equivalent of spec.md §6's part_it.
func (m *Map[K, V]) PartIt(k K) int {
	return m.partIndex(k)
}

// Emplace inserts or overwrites key/value, exclusive-locking only the
// owning shard.
func (m *Map[K, V]) Emplace(k K, v V) {
	m.Part(k).X(func(s *Shard[K, V]) { s.Emplace(k, v) })
}

// Erase removes k from its owning shard, exclusive-locking only that
// shard.
func (m *Map[K, V]) Erase(k K) int {
	var n int
	m.Part(k).X(func(s *Shard[K, V]) { n = s.Erase(k) })
	return n
}

// GetRangeEqual locks the one relevant shard in shared mode and returns
// matching pairs.
func (m *Map[K, V]) GetRangeEqual(k K) []Entry[K, V] {
	var out []Entry[K, V]
	m.Part(k).S(func(s *Shard[K, V]) { out = s.RangeEqual(k) })
	return out
}

// GetRangeLowerUpper walks partitions from Part(low) through the one
// immediately past Part(up), shared-locking each in turn and collecting
// entries in [low, up]. Iteration across partitions is not atomic: the
// result is a view of each shard at the time it was locked, exactly as
// spec.md §4.H describes.
func (m *Map[K, V]) GetRangeLowerUpper(low, up K) []Entry[K, V] {
	loIdx, hiIdx := m.spanIndices(low, up)
	var out []Entry[K, V]
	for i := loIdx; i <= hiIdx; i++ {
		m.partitions[i].shard.S(func(s *Shard[K, V]) {
			out = append(out, s.RangeLowerUpper(low, up)...)
		})
	}
	return out
}

// EraseLowerUpper is GetRangeLowerUpper's exclusive-locking counterpart:
// it removes entries in [low, up] across every touched shard.
func (m *Map[K, V]) EraseLowerUpper(low, up K) {
	loIdx, hiIdx := m.spanIndices(low, up)
	for i := loIdx; i <= hiIdx; i++ {
		m.partitions[i].shard.X(func(s *Shard[K, V]) { s.EraseLowerUpper(low, up) })
	}
}

func (m *Map[K, V]) spanIndices(low, up K) (int, int) {
	loIdx := m.partIndex(low)
	hiIdx := m.partIndex(up) + 1
	if hiIdx > len(m.partitions)-1 {
		hiIdx = len(m.partitions) - 1
	}
	if hiIdx < loIdx {
		hiIdx = loIdx
	}
	return loIdx, hiIdx
}

// Size iterates every shard, shared-locking each in turn, and sums their
// sizes. It is an approximation if concurrent writers are active, exactly
// as spec.md §4.H documents.
func (m *Map[K, V]) Size() int {
	total := 0
	for _, p := range m.partitions {
		p.shard.S(func(s *Shard[K, V]) { total += s.Size() })
	}
	return total
}

// Clear empties every shard, exclusive-locking each in turn.
func (m *Map[K, V]) Clear() {
	for _, p := range m.partitions {
		p.shard.X(func(s *Shard[K, V]) { s.Clear() })
	}
}
