package emit

import "sync"

// MemoryEmitter records every emitted event in order. Intended for tests
// and short-lived diagnostics; memory grows unbounded with the run count.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEmitter returns an empty capture emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit appends the event to the capture buffer.
func (m *MemoryEmitter) Emit(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of everything captured so far, in emission order.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByMsg returns captured events whose Msg matches exactly.
func (m *MemoryEmitter) ByMsg(msg string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything captured so far.
func (m *MemoryEmitter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
