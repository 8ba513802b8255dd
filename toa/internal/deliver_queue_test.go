package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tuannh982/toa/toa/commons"
)

func newDataMessage(id commons.MessageID, payload string) *commons.Message {
	m := commons.NewMessage(commons.NewGroupAddress("A", "B"), []byte(payload))
	m.Src = "relay"
	m.Header = &commons.Header{
		Type: commons.DataMessage,
		ID:   id,
	}
	return m
}

func drainAsync(q DeliverQueue) <-chan []*commons.Message {
	ch := make(chan []*commons.Message, 1)
	go func() {
		batch, err := q.DrainReadyPrefix()
		if err != nil {
			close(ch)
			return
		}
		ch <- batch
	}()
	return ch
}

func payloads(batch []*commons.Message) []string {
	out := make([]string, 0, len(batch))
	for _, m := range batch {
		out = append(out, string(m.Payload))
	}
	return out
}

func TestDeliverQueueBlocksUntilHeadReady(t *testing.T) {
	q := NewDeliverQueue()
	m1 := commons.MessageID{Origin: "A", Counter: 1}
	m2 := commons.MessageID{Origin: "B", Counter: 1}
	require.Nil(t, q.Stage(m1, newDataMessage(m1, "m1"), 3))
	require.Nil(t, q.Stage(m2, newDataMessage(m2, "m2"), 4))

	ch := drainAsync(q)
	require.Nil(t, q.Finalize(m2, 5))
	select {
	case <-ch:
		t.Fatal("delivered while head not ready")
	case <-time.After(50 * time.Millisecond):
	}
	require.Nil(t, q.Finalize(m1, 4))
	select {
	case batch := <-ch:
		require.Equal(t, []string{"m1", "m2"}, payloads(batch))
		require.Equal(t, uint64(4), batch[0].Header.Sequence)
		require.Equal(t, uint64(5), batch[1].Header.Sequence)
	case <-time.After(time.Second):
		t.Fatal("ready prefix not delivered")
	}
	require.Equal(t, 0, q.Size())
}

func TestDeliverQueueRepositionOnFinalize(t *testing.T) {
	// M1 converges to 10, M2 to 8: M2 must come first.
	q := NewDeliverQueue()
	m1 := commons.MessageID{Origin: "A", Counter: 1}
	m2 := commons.MessageID{Origin: "B", Counter: 1}
	require.Nil(t, q.Stage(m1, newDataMessage(m1, "m1"), 2))
	require.Nil(t, q.Stage(m2, newDataMessage(m2, "m2"), 3))
	require.Nil(t, q.Finalize(m1, 10))
	require.Equal(t, []PendingInfo{
		{ID: m2, Sequence: 3, Ready: false},
		{ID: m1, Sequence: 10, Ready: true},
	}, q.Pending())
	require.Nil(t, q.Finalize(m2, 8))
	batch, err := q.DrainReadyPrefix()
	require.Nil(t, err)
	require.Equal(t, []string{"m2", "m1"}, payloads(batch))
}

func TestDeliverQueueStopsAtFirstNotReady(t *testing.T) {
	q := NewDeliverQueue()
	ids := []commons.MessageID{
		{Origin: "A", Counter: 1},
		{Origin: "A", Counter: 2},
		{Origin: "A", Counter: 3},
	}
	for i, id := range ids {
		require.Nil(t, q.Stage(id, newDataMessage(id, id.String()), uint64(i+1)))
	}
	require.Nil(t, q.Finalize(ids[0], 1))
	require.Nil(t, q.Finalize(ids[2], 3))
	batch, err := q.DrainReadyPrefix()
	require.Nil(t, err)
	require.Equal(t, []string{"A:1"}, payloads(batch))
	require.Equal(t, 2, q.Size())
}

func TestDeliverQueueTieBreakByID(t *testing.T) {
	q := NewDeliverQueue()
	a := commons.MessageID{Origin: "A", Counter: 9}
	b := commons.MessageID{Origin: "B", Counter: 1}
	require.Nil(t, q.Stage(b, newDataMessage(b, "b"), 7))
	require.Nil(t, q.Stage(a, newDataMessage(a, "a"), 7))
	require.Nil(t, q.Finalize(b, 7))
	require.Nil(t, q.Finalize(a, 7))
	batch, err := q.DrainReadyPrefix()
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b"}, payloads(batch))
}

func TestDeliverQueueDefensiveCopy(t *testing.T) {
	q := NewDeliverQueue()
	id := commons.MessageID{Origin: "A", Counter: 1}
	original := newDataMessage(id, "payload")
	require.Nil(t, q.Stage(id, original, 1))
	copy(original.Payload, "XXXXXXX")
	original.Header.Sequence = 99
	require.Nil(t, q.Finalize(id, 2))
	batch, err := q.DrainReadyPrefix()
	require.Nil(t, err)
	require.Equal(t, "payload", string(batch[0].Payload))
	require.Equal(t, uint64(2), batch[0].Header.Sequence)
	require.Equal(t, commons.Address("A"), batch[0].Src)
	require.Equal(t, commons.Address("relay"), original.Src)
	require.True(t, batch[0].Dest.(*commons.GroupAddress).Equals(commons.NewGroupAddress("A", "B")))
}

func TestDeliverQueueAnomalies(t *testing.T) {
	q := NewDeliverQueue()
	id := commons.MessageID{Origin: "A", Counter: 1}
	require.ErrorIs(t, q.Finalize(id, 1), ErrUnknownMessage)
	require.Nil(t, q.Stage(id, newDataMessage(id, "x"), 1))
	require.ErrorIs(t, q.Stage(id, newDataMessage(id, "x"), 1), ErrDuplicateMessage)
	require.Nil(t, q.Finalize(id, 1))
	require.ErrorIs(t, q.Finalize(id, 1), ErrAlreadyFinal)
	_, err := q.DrainReadyPrefix()
	require.Nil(t, err)
	require.ErrorIs(t, q.Finalize(id, 1), ErrUnknownMessage)
}

func TestDeliverQueueDeliverSingle(t *testing.T) {
	q := NewDeliverQueue()
	pending := commons.MessageID{Origin: "A", Counter: 1}
	single := commons.MessageID{Origin: "B", Counter: 1}
	require.Nil(t, q.Stage(pending, newDataMessage(pending, "pending"), 1))
	require.Nil(t, q.DeliverSingle(single, newDataMessage(single, "single"), 2))
	ch := drainAsync(q)
	select {
	case <-ch:
		t.Fatal("single destination message overtook a pending one")
	case <-time.After(50 * time.Millisecond):
	}
	require.Nil(t, q.Finalize(pending, 1))
	batch := <-ch
	require.Equal(t, []string{"pending", "single"}, payloads(batch))
}

func TestDeliverQueueClose(t *testing.T) {
	q := NewDeliverQueue()
	done := make(chan error, 1)
	go func() {
		_, err := q.DrainReadyPrefix()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer not woken up by Close")
	}
}

func TestDeliverQueueStageNext(t *testing.T) {
	q := NewDeliverQueue()
	clock := NewSequenceClock()
	clock.Update(3)
	id := commons.MessageID{Origin: "B", Counter: 1}
	seq, err := q.StageNext(id, newDataMessage(id, "x"), func() uint64 {
		return clock.UpdateAndGet(2)
	})
	require.Nil(t, err)
	require.Equal(t, uint64(5), seq)
	_, err = q.StageNext(id, newDataMessage(id, "x"), func() uint64 {
		return clock.UpdateAndGet(2)
	})
	require.ErrorIs(t, err, ErrDuplicateMessage)
	require.Equal(t, uint64(5), clock.Get())
	require.Equal(t, []PendingInfo{{ID: id, Sequence: 5}}, q.Pending())
}

func TestDeliverQueueRemoveUnblocksHead(t *testing.T) {
	q := NewDeliverQueue()
	stuck := commons.MessageID{Origin: "A", Counter: 1}
	next := commons.MessageID{Origin: "B", Counter: 1}
	require.Nil(t, q.Stage(stuck, newDataMessage(stuck, "stuck"), 1))
	require.Nil(t, q.Stage(next, newDataMessage(next, "next"), 2))
	require.Nil(t, q.Finalize(next, 2))

	ch := drainAsync(q)
	require.Nil(t, q.Remove(stuck))
	select {
	case batch := <-ch:
		require.Equal(t, []string{"next"}, payloads(batch))
	case <-time.After(time.Second):
		t.Fatal("head not released after remove")
	}
	require.ErrorIs(t, q.Remove(stuck), ErrUnknownMessage)
	require.ErrorIs(t, q.Finalize(stuck, 3), ErrUnknownMessage)
}
