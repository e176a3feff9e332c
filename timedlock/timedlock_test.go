package timedlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireOnceSucceedsWhenFree(t *testing.T) {
	var a, b sync.Mutex
	lk := Any(Once, DefaultDeadline, DefaultSpinIterations, &a, &b)
	require.True(t, lk.Ok())
	lk.Release()

	require.True(t, a.TryLock())
	a.Unlock()
	require.True(t, b.TryLock())
	b.Unlock()
}

func TestAcquireOnceFailsHoldsNothing(t *testing.T) {
	var a, b sync.Mutex
	b.Lock()

	lk := Any(Once, 2*time.Millisecond, 10, &a, &b)
	assert.False(t, lk.Ok())

	require.True(t, a.TryLock(), "partial acquisition of a must have been released")
	a.Unlock()
}

// TestTimedMultiLockOppositeOrders covers S5: two goroutines attempt
// Any over handles {X, Y} in opposite orders in Infinite mode, and both
// eventually complete their critical section. Only Infinite mode is
// exercised here; a failed Once sweep holding nothing is checked by
// TestAcquireOnceFailsHoldsNothing.
func TestTimedMultiLockOppositeOrders(t *testing.T) {
	var x, y sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	var counter int
	const iterations = 50

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			lk := Any(Infinite, 500*time.Microsecond, 50, &x, &y)
			require.True(t, lk.Ok())
			counter++
			lk.Release()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			lk := Any(Infinite, 500*time.Microsecond, 50, &y, &x)
			require.True(t, lk.Ok())
			counter++
			lk.Release()
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Infinite mode sweeps in opposite orders should not livelock")
	}
	assert.Equal(t, 2*iterations, counter)
}

func TestAcquireFallsBackForLockerWithoutTryLock(t *testing.T) {
	l := &blockingOnlyLocker{}
	lk := Any(Once, DefaultDeadline, DefaultSpinIterations, l)
	require.True(t, lk.Ok())
	lk.Release()
}

type blockingOnlyLocker struct {
	mu sync.Mutex
}

func (b *blockingOnlyLocker) Lock() { b.mu.Lock() }
func (b *blockingOnlyLocker) Unlock() { b.mu.Unlock() }
