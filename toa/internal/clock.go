package internal

import (
	"sync/atomic"

	"github.com/tuannh982/toa/utils/math"
)

// SequenceClock is a Lamport-style logical clock. Its value never decreases.
// Update leaves the clock one above the observed number rather than at it, so
// a number issued after applying a final sequence number is always larger.
type SequenceClock struct {
	value atomic.Uint64
}

func NewSequenceClock() *SequenceClock {
	return &SequenceClock{}
}

func (c *SequenceClock) Get() uint64 {
	return c.value.Load()
}

// GetAndIncrement returns the current value and advances the clock by one.
func (c *SequenceClock) GetAndIncrement() uint64 {
	return c.value.Add(1) - 1
}

// UpdateAndGet sets the clock to max(value, received)+1 and returns it.
func (c *SequenceClock) UpdateAndGet(received uint64) uint64 {
	for {
		current := c.value.Load()
		next := math.Max(current, received) + 1
		if c.value.CompareAndSwap(current, next) {
			return next
		}
	}
}

// Update merges an observed sequence number without issuing a new one. The
// clock is left strictly above received, so a number handed out afterwards
// cannot tie with a final sequence number this node already applied.
func (c *SequenceClock) Update(received uint64) {
	for {
		current := c.value.Load()
		if received < current {
			return
		}
		if c.value.CompareAndSwap(current, received+1) {
			return
		}
	}
}
