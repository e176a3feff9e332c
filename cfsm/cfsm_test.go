package cfsm

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicExclusive(t *testing.T) {
	m := New()
	m.Lock()
	m.Unlock()
}

func TestRecursiveExclusive(t *testing.T) {
	m := New()
	m.Lock()
	m.Lock() // X -> X
	m.RLock() // X -> S, permitted
	m.RUnlock()
	m.Unlock()
	m.Unlock()
}

// TestRecursiveShared covers S2: a goroutine takes the shared lock twice
// and reads a consistent snapshot both times; an external writer blocks
// until both shared acquisitions are released.
func TestRecursiveShared(t *testing.T) {
	m := New()
	var value atomic.Int64
	value.Store(42)

	m.RLock()
	snap1 := value.Load()
	m.RLock() // S -> S, recursive
	snap2 := value.Load()
	require.Equal(t, snap1, snap2)

	writerDone := make(chan struct{})
	writerStarted := make(chan struct{})
	go func() {
		close(writerStarted)
		m.Lock()
		value.Store(43)
		m.Unlock()
		close(writerDone)
	}()
	<-writerStarted
	time.Sleep(20 * time.Millisecond)

	select {
	case <-writerDone:
		t.Fatal("writer must not proceed while reader holds the lock")
	default:
	}

	m.RUnlock()
	select {
	case <-writerDone:
		t.Fatal("writer must not proceed while reader still holds one level")
	default:
	}
	m.RUnlock()

	<-writerDone
	assert.Equal(t, int64(43), value.Load())
}

func TestSharedSharedNoBlock(t *testing.T) {
	m := New()
	m.RLock()
	done := make(chan struct{})
	go func() {
		m.RLock()
		m.RUnlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader should not block on first reader")
	}
	m.RUnlock()
}

func TestSameThreadUpgradePanics(t *testing.T) {
	m := New()
	m.RLock()
	defer m.RUnlock()
	assert.Panics(t, func() { m.Lock() }, "S->X upgrade must be rejected")
}

// TestWriterWithReadersMonotonic covers S3: many readers spin over a
// counter while one writer increments it repeatedly; every reader must
// observe a monotonic non-decreasing sequence of values.
func TestWriterWithReadersMonotonic(t *testing.T) {
	m := New()
	var counter int64
	const readers = 16
	const writes = 1000

	stop := make(chan struct{})
	var wg sync.WaitGroup
	violations := make([]int32, readers)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			last := int64(-1)
			for {
				select {
				case <-stop:
					return
				default:
				}
				m.RLock()
				cur := atomic.LoadInt64(&counter)
				m.RUnlock()
				if cur < last {
					atomic.StoreInt32(&violations[idx], 1)
				}
				last = cur
			}
		}(r)
	}

	for i := 0; i < writes; i++ {
		m.Lock()
		counter++
		m.Unlock()
	}
	close(stop)
	wg.Wait()

	for i, v := range violations {
		assert.Zero(t, v, "reader %d observed a non-monotonic value", i)
	}
	assert.Equal(t, int64(writes), counter)
}

// TestSlotExhaustionFallback covers S6: N = slot-count + 1 concurrent
// readers all complete correctly, with the overflowing goroutine
// serialized against writers via the exclusive fallback path.
func TestSlotExhaustionFallback(t *testing.T) {
	const slots = 4
	m := New(slots)

	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < slots+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RLock()
			atomic.AddInt64(&successes, 1)
			m.RUnlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(slots+1), successes)

	m.Lock()
	m.Unlock()
}

func TestCloseTombstonesSlots(t *testing.T) {
	m := New(2)
	m.RLock()
	m.RUnlock()
	m.Close()
	for i := range m.slots {
		assert.Equal(t, slotTombstone, m.slots[i].value.Load())
	}
}
