package location

import (
	"sync"
	"sync/atomic"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
)

// Broadcaster fans coordinate updates out to subscribers, typically map
// views reloading their nearby items when the user moves.
type Broadcaster struct {
	subscribers map[uint64]chan geo.Coordinate
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan geo.Coordinate),
	}
}

func (b *Broadcaster) Subscribe() (uint64, <-chan geo.Coordinate) {
	id := b.nextID.Add(1)
	ch := make(chan geo.Coordinate, 8)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(c geo.Coordinate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- c:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
