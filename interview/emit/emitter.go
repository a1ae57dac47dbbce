package emit

// Emitter receives observability events from interview graph runs.
//
// Implementations must be safe for concurrent use: distinct interviews run
// on distinct goroutines and share one Emitter. Emit must not panic and
// should not block the run; slow backends should buffer or drop.
type Emitter interface {
	Emit(event Event)
}
