package internal

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClockGetAndIncrement(t *testing.T) {
	c := NewSequenceClock()
	prev := c.GetAndIncrement()
	require.Equal(t, uint64(0), prev)
	for i := 0; i < 100; i++ {
		next := c.GetAndIncrement()
		require.Greater(t, next, prev)
		prev = next
	}
	require.Equal(t, uint64(101), c.Get())
}

func TestClockUpdateAndGet(t *testing.T) {
	c := NewSequenceClock()
	c.Update(8)
	require.Equal(t, uint64(10), c.UpdateAndGet(5))
	require.Equal(t, uint64(21), c.UpdateAndGet(20))
	require.Equal(t, uint64(22), c.UpdateAndGet(0))
	require.Equal(t, uint64(22), c.Get())
}

func TestClockUpdate(t *testing.T) {
	c := NewSequenceClock()
	c.Update(15)
	require.Equal(t, uint64(16), c.Get())
	c.Update(3)
	require.Equal(t, uint64(16), c.Get())
	c.Update(16)
	require.Equal(t, uint64(17), c.Get())
	require.Equal(t, uint64(17), c.GetAndIncrement())
	require.Equal(t, uint64(18), c.Get())
}

func TestClockConcurrentMonotonic(t *testing.T) {
	c := NewSequenceClock()
	const workers = 8
	const rounds = 1000
	results := make([][]uint64, workers)
	var notDominating atomic.Uint64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			out := make([]uint64, 0, rounds)
			for i := 0; i < rounds; i++ {
				received := uint64(i * w)
				v := c.UpdateAndGet(received)
				if v <= received {
					notDominating.Add(1)
				}
				out = append(out, v)
				c.Update(uint64(i))
			}
			results[w] = out
		}(w)
	}
	wg.Wait()
	require.Zero(t, notDominating.Load(), "proposals not above the received value")
	seen := make(map[uint64]bool)
	for _, out := range results {
		for i := 1; i < len(out); i++ {
			require.Greater(t, out[i], out[i-1])
		}
		for _, v := range out {
			require.False(t, seen[v], "value %d issued twice", v)
			seen[v] = true
		}
	}
}
