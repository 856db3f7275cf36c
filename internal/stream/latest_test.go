package stream

import (
	"sync"
	"testing"
)

func packetWithWidth(w int) *FramePacket {
	return &FramePacket{Width: w, Height: 1, RGB: []byte{1}, Depth: []byte{0, 0}}
}

func TestLatestWins(t *testing.T) {
	var q LatestQueue

	q.Push(packetWithWidth(1))
	q.Push(packetWithWidth(2))
	q.Push(packetWithWidth(3))

	p := q.TryPop()
	if p == nil || p.Width != 3 {
		t.Fatalf("TryPop = %+v, want the last pushed packet (width 3)", p)
	}
	if p := q.TryPop(); p != nil {
		t.Fatalf("second TryPop = %+v, want nil", p)
	}

	pushed, coalesced := q.Counters()
	if pushed != 3 || coalesced != 2 {
		t.Errorf("Counters = (%d, %d), want (3, 2)", pushed, coalesced)
	}
}

func TestLatestQueueEmptyPop(t *testing.T) {
	var q LatestQueue
	if p := q.TryPop(); p != nil {
		t.Fatalf("TryPop on empty queue = %+v, want nil", p)
	}
	if q.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", q.Depth())
	}
}

func TestLatestQueueRejectsInvalid(t *testing.T) {
	var q LatestQueue
	q.Push(&FramePacket{Width: 0, Height: 1, RGB: []byte{1}, Depth: []byte{1}})
	q.Push(nil)
	if q.Depth() != 0 {
		t.Error("invalid packet was enqueued")
	}
}

// One producer, one consumer: the consumer must never observe a packet
// older than one it already consumed.
func TestLatestQueueOrderingUnderConcurrency(t *testing.T) {
	var q LatestQueue
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			q.Push(packetWithWidth(i))
		}
	}()

	last := 0
	for last < n {
		if p := q.TryPop(); p != nil {
			if p.Width <= last {
				t.Errorf("observed width %d after %d: ordering violated", p.Width, last)
				break
			}
			last = p.Width
		}
	}
	wg.Wait()
}
