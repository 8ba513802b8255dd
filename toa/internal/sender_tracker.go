package internal

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/utils/collections"
	"github.com/tuannh982/toa/utils/math"
	"golang.org/x/exp/slices"
)

// SenderTracker keeps, for every multicast originated locally, the proposals
// still missing and the highest proposal seen so far.
type SenderTracker interface {
	// Begin registers a multicast. If selfIncluded, the origin's own proposal
	// (initialSeq) is recorded immediately.
	Begin(id commons.MessageID, destinations []commons.Address, initialSeq uint64, selfIncluded bool) error
	// AddProposal returns ok=true for exactly one caller: the one whose proposal
	// completes the set.
	AddProposal(id commons.MessageID, from commons.Address, seq uint64) (final uint64, ok bool, err error)
	// Finalize removes the entry and returns the destinations other than the origin.
	Finalize(id commons.MessageID) (destinations []commons.Address, selfIsDestination bool, err error)
	Pending() []commons.MessageID
	Size() int
}

type outstandingSend struct {
	mu                sync.Mutex
	destinations      []commons.Address
	highestProposal   uint64
	pending           *bitset.BitSet
	finalSent         bool
	selfIsDestination bool
}

func (s *outstandingSend) indexOf(a commons.Address) (uint, bool) {
	i, found := slices.BinarySearch(s.destinations, a)
	return uint(i), found
}

type senderTracker struct {
	entries collections.Map[commons.MessageID, *outstandingSend]
}

func NewSenderTracker() SenderTracker {
	return &senderTracker{
		entries: collections.NewConcurrentMap[commons.MessageID, *outstandingSend](),
	}
}

func (t *senderTracker) Begin(id commons.MessageID, destinations []commons.Address, initialSeq uint64, selfIncluded bool) error {
	sorted := slices.Clone(destinations)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	entry := &outstandingSend{
		destinations:      sorted,
		pending:           bitset.New(uint(len(sorted))),
		selfIsDestination: selfIncluded,
	}
	for i := range sorted {
		entry.pending.Set(uint(i))
	}
	if selfIncluded {
		if i, found := entry.indexOf(id.Origin); found {
			entry.pending.Clear(i)
		}
		entry.highestProposal = initialSeq
	}
	if err := t.entries.Put(id, entry, false); err != nil {
		return fmt.Errorf("begin %s: %w", id, ErrDuplicateMessage)
	}
	return nil
}

func (t *senderTracker) AddProposal(id commons.MessageID, from commons.Address, seq uint64) (uint64, bool, error) {
	entry, err := t.entries.Get(id)
	if err != nil {
		return 0, false, fmt.Errorf("proposal for %s from %s: %w", id, from, ErrUnknownMessage)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	i, found := entry.indexOf(from)
	if !found {
		return 0, false, fmt.Errorf("proposal for %s from %s: %w", id, from, ErrUnknownDestination)
	}
	entry.highestProposal = math.Max(entry.highestProposal, seq)
	entry.pending.Clear(i)
	if entry.pending.None() && !entry.finalSent {
		entry.finalSent = true
		return entry.highestProposal, true, nil
	}
	return 0, false, nil
}

func (t *senderTracker) Finalize(id commons.MessageID) ([]commons.Address, bool, error) {
	entry, err := t.entries.Take(id)
	if err != nil {
		return nil, false, fmt.Errorf("finalize %s: %w", id, ErrUnknownMessage)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	destinations := make([]commons.Address, 0, len(entry.destinations))
	for _, a := range entry.destinations {
		if a != id.Origin {
			destinations = append(destinations, a)
		}
	}
	return destinations, entry.selfIsDestination, nil
}

func (t *senderTracker) Pending() []commons.MessageID {
	ids := t.entries.Keys()
	slices.SortFunc(ids, func(a, b commons.MessageID) bool {
		return a.Less(b)
	})
	return ids
}

func (t *senderTracker) Size() int {
	return t.entries.Size()
}
