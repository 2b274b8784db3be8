// Package events fans engine notifications out to in-process subscribers.
package events

import (
	"sync"
	"time"

	"github.com/goclaw/recall/pkg/monitor"
)

// Event types.
const (
	TypeAlert   = "alert"
	TypeBreaker = "breaker"
	TypeConfig  = "config"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Sends happen under the read lock so Close and Unsubscribe cannot
	// close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// BroadcastAlert emits a performance alert.
func (b *Broadcaster) BroadcastAlert(alert monitor.Alert) {
	b.Broadcast(Event{
		Type:      TypeAlert,
		Timestamp: alert.Timestamp,
		Payload:   alert,
	})
}

// BroadcastBreakerChanged emits a manual breaker transition.
func (b *Broadcaster) BroadcastBreakerChanged(strategy, state string) {
	b.Broadcast(Event{
		Type: TypeBreaker,
		Payload: map[string]any{
			"strategy": strategy,
			"state":    state,
		},
	})
}

// BroadcastConfigChanged emits a strategy configuration change.
func (b *Broadcaster) BroadcastConfigChanged(strategy, action string) {
	b.Broadcast(Event{
		Type: TypeConfig,
		Payload: map[string]any{
			"strategy": strategy,
			"action":   action,
		},
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
