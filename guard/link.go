package guard

// linkable is satisfied by any guarded wrapper whose mutex identity Link
// can reseat.
type linkable interface {
	lockerFor() RWLocker
	setLocker(RWLocker)
}

// Link atomically replaces the mutexes of rest with first's mutex, so
// that afterward all of them share one critical section: a lock on any
// one of them excludes access via any of the others.
//
// Link locks first, then every handle in rest in the declared order,
// reseats each of rest's mutex pointer to first's, and releases --
// preserving the old mutex values until after release so that release
// happens on the object that was actually locked, not the one it has just
// been replaced by. This is a constructor-time setup primitive (spec.md
// §4.F, Design Notes §9): call it while building a group of handles that
// should act as one, not on handles already visible to other goroutines.
func Link(first linkable, rest ...linkable) {
	first.lockerFor().Lock()
	defer first.lockerFor().Unlock()

	oldLockers := make([]RWLocker, len(rest))
	for i, h := range rest {
		oldLockers[i] = h.lockerFor()
		oldLockers[i].Lock()
	}

	shared := first.lockerFor()
	for _, h := range rest {
		h.setLocker(shared)
	}

	for i := len(oldLockers) - 1; i >= 0; i-- {
		oldLockers[i].Unlock()
	}
}
