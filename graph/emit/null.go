package emit

// NullEmitter implements Emitter by discarding all events.
//
// Useful for deployments where event output is unwanted, or in tests that
// don't inspect events.
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
