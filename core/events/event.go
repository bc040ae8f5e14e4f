package events

import (
	"sync"

	"nhbmarket/core/types"
)

// Event represents a structured state change emitted by a module.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render their canonical attribute
// payload.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds emitted events until the surrounding operation either commits
// (Flush) or fails (Discard).
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Flush forwards buffered events to dst in emission order and returns them.
func (b *Buffer) Flush(dst Emitter) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	out := b.pending
	b.pending = nil
	b.mu.Unlock()
	if dst != nil {
		for _, evt := range out {
			dst.Emit(evt)
		}
	}
	return out
}

// Marker is implemented by emitters that can drop events emitted after a
// checkpoint, mirroring a storage snapshot.
type Marker interface {
	Mark() int
	Truncate(mark int)
}

// Mark returns a checkpoint for Truncate.
func (b *Buffer) Mark() int { return b.Len() }

// Truncate drops every event emitted after mark.
func (b *Buffer) Truncate(mark int) {
	if b == nil {
		return
	}
	if mark < 0 {
		mark = 0
	}
	b.mu.Lock()
	if mark < len(b.pending) {
		b.pending = b.pending[:mark]
	}
	b.mu.Unlock()
}

// Discard drops buffered events.
func (b *Buffer) Discard() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Len reports how many events are buffered.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Fanout emits every event to each configured emitter.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every event it receives. Tests use it to assert emission.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	r.Events = append(r.Events, evt)
	r.mu.Unlock()
}

// Types returns the emitted event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, evt := range r.Events {
		out = append(out, evt.EventType())
	}
	return out
}

// Payload renders evt to its attribute form when it supports it.
func Payload(evt Event) *types.Event {
	if typed, ok := evt.(Typed); ok {
		return typed.Event()
	}
	if evt == nil {
		return nil
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
