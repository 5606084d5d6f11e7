// Package events fans committed changes out to in-process subscribers and to
// NATS.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"socialcore/pkg/domain"
)

// Bus delivers changes to subscriber channels without blocking the publisher.
// A subscriber whose channel is full misses the change.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan<- domain.Change]struct{}
	dropped     atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan<- domain.Change]struct{})}
}

// Subscribe registers ch and returns a function that removes it again.
func (b *Bus) Subscribe(ch chan<- domain.Change) (unsubscribe func()) {
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
	}
}

// Publish implements core.EventPublisher. It never fails.
func (b *Bus) Publish(_ context.Context, change domain.Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- change:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers reports the number of registered channels.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
