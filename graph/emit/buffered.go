package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, keyed by
// thread ID.
//
// Intended for tests and debugging: run a conversation, then assert on the
// exact event sequence. All events are held in memory, so long-running
// production threads should prefer LogEmitter or OTelEmitter.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // threadID -> events
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ThreadID] = append(b.events[event.ThreadID], event)
}

// History returns a copy of all events for a thread, in emission order.
func (b *BufferedEmitter) History(threadID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[threadID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// NodeSequence returns the NodeID of every node-level event for a thread,
// in order. Useful for asserting visit order in tests.
func (b *BufferedEmitter) NodeSequence(threadID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for _, ev := range b.events[threadID] {
		if ev.NodeID != "" {
			out = append(out, ev.NodeID)
		}
	}
	return out
}

// Clear drops all events for a thread.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, threadID)
}
