package engine

import (
	"sync"

	"github.com/novaplay-gaming/crash-server/broker"
)

// TickEventBuffer batches events produced during one tick so the hot path
// never allocates per event. Two slots alternate: pushes fill the live slot,
// Swap hands the filled slot to the caller and rotates to the pre-cleared
// alternate.
//
// Hand-off contract: the slice returned by Swap is owned by the caller only
// until the next Swap, which recycles its backing array. A consumer that
// holds the slice across a suspension point must copy it first.
type TickEventBuffer struct {
	mu    sync.Mutex
	slots [2][]broker.Envelope
	live  int
}

func NewTickEventBuffer(capacity int) *TickEventBuffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &TickEventBuffer{
		slots: [2][]broker.Envelope{
			make([]broker.Envelope, 0, capacity),
			make([]broker.Envelope, 0, capacity),
		},
	}
}

func (b *TickEventBuffer) Push(env broker.Envelope) {
	b.mu.Lock()
	b.slots[b.live] = append(b.slots[b.live], env)
	b.mu.Unlock()
}

// Swap returns the just-filled slot and rotates to the cleared alternate.
func (b *TickEventBuffer) Swap() []broker.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	filled := b.slots[b.live]
	b.live = 1 - b.live
	b.slots[b.live] = b.slots[b.live][:0]
	return filled
}
