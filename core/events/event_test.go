package events

import (
	"testing"

	"nhbmarket/core/types"
)

type testEvent struct{ name string }

func (e testEvent) EventType() string { return e.name }

func (e testEvent) Event() *types.Event {
	return &types.Event{Type: e.name, Attributes: map[string]string{"k": "v"}}
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"a"})
	buf.Emit(testEvent{"b"})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	rec := &Recorder{}
	other := &Recorder{}
	out := buf.Flush(Fanout{rec, nil, other})
	if len(out) != 2 || buf.Len() != 0 {
		t.Fatalf("unexpected flush result %d/%d", len(out), buf.Len())
	}
	got := rec.Types()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected order %v", got)
	}
	if len(other.Types()) != 2 {
		t.Fatalf("fanout did not reach every emitter")
	}
}

func TestBufferDiscard(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"a"})
	buf.Discard()
	rec := &Recorder{}
	buf.Flush(rec)
	if len(rec.Events) != 0 {
		t.Fatalf("expected discarded events to be dropped")
	}
}

func TestPayload(t *testing.T) {
	if p := Payload(testEvent{"x"}); p.Attributes["k"] != "v" {
		t.Fatalf("expected typed payload, got %+v", p)
	}
	if Payload(nil) != nil {
		t.Fatalf("expected nil payload for nil event")
	}
}

func TestBufferTruncateToMark(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"keep"})
	mark := buf.Mark()
	buf.Emit(testEvent{"drop-1"})
	buf.Emit(testEvent{"drop-2"})
	buf.Truncate(mark)
	buf.Truncate(10)
	got := (&buf).Flush(nil)
	if len(got) != 1 || got[0].EventType() != "keep" {
		t.Fatalf("unexpected events after truncate: %v", got)
	}
	var _ Marker = &buf
}
