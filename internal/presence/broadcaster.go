// ABOUTME: In-memory fan-out broadcaster for online-user snapshots
// ABOUTME: Publishes the full presence set to every subscribed session

package presence

import (
	"log/slog"
	"sync"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// Sized so a briefly slow client does not stall presence delivery.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub for presence snapshots.
// Each subscriber (one per active connection) receives the complete
// online-user set on every registry mutation. Sends are non-blocking:
// snapshots are dropped for subscribers whose channels are full, so one
// unresponsive connection can never stall delivery to the others. A dropped
// intermediate snapshot is harmless because every event is a full snapshot,
// not a delta.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan []string // sessionID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan []string),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for presence snapshots under the given
// session ID and returns the channel snapshots are delivered on. The caller
// must Unsubscribe with the same ID when the connection closes.
func (b *Broadcaster) Subscribe(sessionID string) <-chan []string {
	ch := make(chan []string, subscriberBufferSize)

	b.mu.Lock()
	// A resumed session reuses its ID; drop any stale channel first.
	if old, ok := b.subscribers[sessionID]; ok {
		close(old)
	}
	b.subscribers[sessionID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID)
	return ch
}

// Publish sends a presence snapshot to every subscriber.
// Each call corresponds to exactly one registry mutation; there is no
// batching or debouncing. The caller is responsible for passing a snapshot
// taken after the mutation it announces.
func (b *Broadcaster) Publish(users []string) {
	// The read lock is held through the sends so Unsubscribe cannot close
	// a channel mid-publish. Sends never block, so the lock is brief.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- users:
			// Sent
		default:
			// Subscriber channel full — drop snapshot for this subscriber
			b.logger.Debug("dropped presence snapshot for slow subscriber",
				"session_id", id)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[sessionID]
	if !ok {
		return
	}

	delete(b.subscribers, sessionID)
	close(ch)

	b.logger.Debug("subscriber removed", "session_id", sessionID)
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("broadcaster closed")
}
