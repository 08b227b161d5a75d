// Package eventbus decouples the scheduler's run loop from observers
// (currently the run-history recorder) with a small in-memory fanout.
//
// Contract:
//   - Publish never blocks; slow subscribers drop events.
//   - Subscribers receive a bounded buffered channel.
package eventbus

import (
	"sync"
	"time"
)

// RunEvent describes one completed task invocation.
type RunEvent struct {
	ID        string // unique per invocation
	Task      string
	Started   time.Time
	Duration  time.Duration
	Succeeded bool
	// Detail carries the error detail for failed runs, empty otherwise.
	Detail string
}

type Bus interface {
	Publish(e RunEvent)
	// Subscribe returns a receive channel and an unsubscribe func that
	// closes it. Unsubscribe is idempotent.
	Subscribe(buffer int) (<-chan RunEvent, func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan RunEvent{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan RunEvent
	seq  uint64
}

func (b *memBus) Publish(e RunEvent) {
	// Sends happen under the read lock; Unsubscribe closes channels under
	// the write lock, so a send can never race a close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber is behind; drop
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan RunEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan RunEvent, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
