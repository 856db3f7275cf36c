package stream

import "sync/atomic"

// LatestQueue is a single-slot hand-off buffer holding at most the newest
// unconsumed packet. Pushes between two pops are coalesced: only the most
// recently pushed packet is observable by the next pop, intermediate
// packets are discarded unseen. This is deliberately not a ring buffer;
// the consumer must never fall behind by more than one frame.
//
// The zero value is ready to use. It is safe for one producer goroutine
// and one consumer goroutine without external locking.
type LatestQueue struct {
	slot atomic.Pointer[FramePacket]

	// pushed and coalesced are monotonic producer-side counters,
	// exposed for diagnostics only.
	pushed    atomic.Int64
	coalesced atomic.Int64
}

// Push makes p the packet the next TryPop will observe, replacing any
// packet that was pending. Invalid packets are dropped at the boundary.
func (q *LatestQueue) Push(p *FramePacket) {
	if !p.Valid() {
		return
	}
	q.pushed.Add(1)
	if prev := q.slot.Swap(p); prev != nil {
		q.coalesced.Add(1)
	}
}

// TryPop removes and returns the pending packet, or nil when no new
// packet arrived since the last pop. It never blocks.
func (q *LatestQueue) TryPop() *FramePacket {
	return q.slot.Swap(nil)
}

// Depth reports whether a packet is currently pending (0 or 1).
func (q *LatestQueue) Depth() int {
	if q.slot.Load() != nil {
		return 1
	}
	return 0
}

// Counters returns the total packets pushed and the number that were
// coalesced away before any consumer observed them.
func (q *LatestQueue) Counters() (pushed, coalesced int64) {
	return q.pushed.Load(), q.coalesced.Load()
}
