// Package progress implements the shared publish/subscribe channel for
// ingestion progress snapshots. Delivery is best effort: events are UI
// feedback, not authoritative job state.
package progress

import (
	"log/slog"
	"sync"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// DefaultBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events.
const DefaultBuffer = 16

// Bus broadcasts progress events to all current subscribers on one shared,
// unscoped channel. Consumers infer relevance from event payloads.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan models.ProgressEvent]struct{}
	buffer int
	closed bool
}

// NewBus creates a Bus with the default subscriber buffer.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[chan models.ProgressEvent]struct{}),
		buffer: DefaultBuffer,
	}
}

// Publish fans the event out to every subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber only.
func (b *Bus) Publish(event models.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			slog.Debug("dropping progress event for slow subscriber", "connection_id", event.ConnectionID)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// releases the subscription and closes the channel; it is idempotent.
func (b *Bus) Subscribe() (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			_, live := b.subs[ch]
			delete(b.subs, ch)
			b.mu.Unlock()
			// Close shuts the channel when it removes the subscription;
			// avoid the double close here.
			if live {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
