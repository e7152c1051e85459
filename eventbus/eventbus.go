// Package eventbus provides in-process fan-out of run events to live
// subscribers, typically SSE streams.
package eventbus

import (
	"sync"

	"github.com/guidepost-ai/guidepost/model"
)

// Bus fans out run events to any number of subscribers per run.
type Bus interface {
	// Subscribe creates a channel that receives events for a run.
	Subscribe(runID string) chan *model.Event

	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(runID string, ch chan *model.Event)

	// Publish delivers an event to all subscribers of a run. It never
	// blocks; slow subscribers lose events.
	Publish(runID string, event *model.Event)
}

// InMemoryBus implements Bus with per-run subscriber lists.
type InMemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan *model.Event
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string][]chan *model.Event),
	}
}

// Subscribe creates a channel that receives events for a run.
func (b *InMemoryBus) Subscribe(runID string) chan *model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.Event, 64)
	b.subs[runID] = append(b.subs[runID], ch)
	return ch
}

// Unsubscribe removes a channel from the run's subscribers.
func (b *InMemoryBus) Unsubscribe(runID string, ch chan *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[runID]
	for i, s := range subs {
		if s == ch {
			b.subs[runID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to all subscribers for a run.
func (b *InMemoryBus) Publish(runID string, event *model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[runID] {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is too slow.
		}
	}
}
