package internal

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/tuannh982/toa/toa/commons"
	"github.com/tuannh982/toa/utils/collections"
)

// DeliverQueue holds messages until their total order position is known.
// Entries are ordered by (sequence, MessageID); the ready prefix is released to
// a single consumer.
type DeliverQueue interface {
	// Stage inserts a private copy of message, not ready, at tentativeSeq.
	Stage(id commons.MessageID, message *commons.Message, tentativeSeq uint64) error
	// StageNext is Stage with the tentative sequence number produced by next
	// while the queue is locked, so no delivery can interleave between the
	// allocation and the insertion. next is not called for a duplicate id.
	StageNext(id commons.MessageID, message *commons.Message, next func() uint64) (uint64, error)
	// Finalize moves the entry to finalSeq and marks it ready.
	Finalize(id commons.MessageID, finalSeq uint64) error
	// DeliverSingle inserts a private copy of message already ready at seq.
	DeliverSingle(id commons.MessageID, message *commons.Message, seq uint64) error
	// Remove drops an entry that has not been delivered yet.
	Remove(id commons.MessageID) error
	// DrainReadyPrefix blocks until the head is ready, then removes and returns
	// the longest ready prefix.
	DrainReadyPrefix() ([]*commons.Message, error)
	Pending() []PendingInfo
	Size() int
	// Close wakes up the consumer, which then gets ErrQueueClosed.
	Close()
}

type PendingInfo struct {
	ID       commons.MessageID
	Sequence uint64
	Ready    bool
}

type pendingDeliverable struct {
	id       commons.MessageID
	message  *commons.Message
	sequence uint64
	ready    bool
}

func lessPending(a, b *pendingDeliverable) bool {
	if a.sequence != b.sequence {
		return a.sequence < b.sequence
	}
	return a.id.Less(b.id)
}

type deliverQueue struct {
	mu       sync.Mutex
	headCond *sync.Cond
	ordered  *btree.BTreeG[*pendingDeliverable]
	lookup   collections.Map[commons.MessageID, *pendingDeliverable]
	closed   bool
}

func NewDeliverQueue() DeliverQueue {
	q := &deliverQueue{
		ordered: btree.NewG(32, lessPending),
		lookup:  collections.NewHashMap[commons.MessageID, *pendingDeliverable](),
	}
	q.headCond = sync.NewCond(&q.mu)
	return q
}

func (q *deliverQueue) Stage(id commons.MessageID, message *commons.Message, tentativeSeq uint64) error {
	_, err := q.insert(id, message, func() uint64 { return tentativeSeq }, false)
	return err
}

func (q *deliverQueue) StageNext(id commons.MessageID, message *commons.Message, next func() uint64) (uint64, error) {
	return q.insert(id, message, next, false)
}

func (q *deliverQueue) DeliverSingle(id commons.MessageID, message *commons.Message, seq uint64) error {
	_, err := q.insert(id, message, func() uint64 { return seq }, true)
	return err
}

func (q *deliverQueue) insert(id commons.MessageID, message *commons.Message, next func() uint64, ready bool) (uint64, error) {
	entry := &pendingDeliverable{
		id:      id,
		message: message.Copy(),
		ready:   ready,
	}
	entry.message.Src = id.Origin
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lookup.Contains(id) {
		return 0, fmt.Errorf("stage %s: %w", id, ErrDuplicateMessage)
	}
	entry.sequence = next()
	_ = q.lookup.Put(id, entry, true)
	q.ordered.ReplaceOrInsert(entry)
	if ready {
		q.notifyIfNeeded()
	}
	return entry.sequence, nil
}

func (q *deliverQueue) Finalize(id commons.MessageID, finalSeq uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, err := q.lookup.Get(id)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", id, ErrUnknownMessage)
	}
	if entry.ready {
		return fmt.Errorf("finalize %s: %w", id, ErrAlreadyFinal)
	}
	if entry.sequence != finalSeq {
		q.ordered.Delete(entry)
		entry.sequence = finalSeq
		entry.ready = true
		q.ordered.ReplaceOrInsert(entry)
	} else {
		entry.ready = true
	}
	if entry.message.Header != nil {
		entry.message.Header.Sequence = finalSeq
	}
	q.notifyIfNeeded()
	return nil
}

func (q *deliverQueue) Remove(id commons.MessageID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, err := q.lookup.Take(id)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownMessage)
	}
	q.ordered.Delete(entry)
	q.notifyIfNeeded()
	return nil
}

// notifyIfNeeded wakes the consumer only when it can make progress.
func (q *deliverQueue) notifyIfNeeded() {
	if head, ok := q.ordered.Min(); ok && head.ready {
		q.headCond.Signal()
	}
}

func (q *deliverQueue) headReady() bool {
	head, ok := q.ordered.Min()
	return ok && head.ready
}

func (q *deliverQueue) DrainReadyPrefix() ([]*commons.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && !q.headReady() {
		q.headCond.Wait()
	}
	if q.closed {
		return nil, ErrQueueClosed
	}
	batch := make([]*commons.Message, 0)
	for q.headReady() {
		head, _ := q.ordered.DeleteMin()
		_ = q.lookup.Delete(head.id)
		batch = append(batch, head.message)
	}
	return batch, nil
}

func (q *deliverQueue) Pending() []PendingInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	infos := make([]PendingInfo, 0, q.ordered.Len())
	q.ordered.Ascend(func(entry *pendingDeliverable) bool {
		infos = append(infos, PendingInfo{
			ID:       entry.id,
			Sequence: entry.sequence,
			Ready:    entry.ready,
		})
		return true
	})
	return infos
}

func (q *deliverQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ordered.Len()
}

func (q *deliverQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.headCond.Broadcast()
}
