package emit

// NullEmitter discards all events. It is the default when no emitter is
// configured.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that drops everything.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
