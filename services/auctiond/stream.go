package auctiond

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 32
)

// StreamHub fans committed events out to websocket subscribers and keeps a
// bounded history so reconnecting clients can resume from a cursor.
type StreamHub struct {
	mu      sync.Mutex
	limit   int
	history []EventRecord
	subs    map[uint64]chan EventRecord
	nextID  uint64
}

// NewStreamHub keeps at most limit records for replay.
func NewStreamHub(limit int) *StreamHub {
	if limit <= 0 {
		limit = 256
	}
	return &StreamHub{limit: limit, subs: make(map[uint64]chan EventRecord)}
}

// Publish records rec and delivers it to every subscriber. Slow subscribers
// drop updates rather than block the writer.
func (h *StreamHub) Publish(rec EventRecord) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.history = append(h.history, rec)
	if len(h.history) > h.limit {
		excess := len(h.history) - h.limit
		trimmed := make([]EventRecord, h.limit)
		copy(trimmed, h.history[excess:])
		h.history = trimmed
	}
	subscribers := make([]chan EventRecord, 0, len(h.subs))
	for _, ch := range h.subs {
		subscribers = append(subscribers, ch)
	}
	h.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Subscribe registers a subscriber for records after the supplied sequence.
// The returned backlog holds retained history newer than after.
func (h *StreamHub) Subscribe(ctx context.Context, after uint64) (<-chan EventRecord, func(), []EventRecord) {
	updates := make(chan EventRecord, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]EventRecord, 0, len(h.history))
	for _, rec := range h.history {
		if rec.Sequence > after {
			backlog = append(backlog, rec)
		}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

// Subscribers reports the number of live subscriptions.
func (h *StreamHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errBadRequest("invalid cursor"))
			return
		}
		after = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, s.market.Stream(), after); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, hub *StreamHub, after uint64) error {
	updates, cancel, backlog := hub.Subscribe(ctx, after)
	defer cancel()

	last := after
	for _, rec := range backlog {
		if err := writeEventRecord(ctx, conn, rec); err != nil {
			return err
		}
		last = rec.Sequence
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if rec.Sequence <= last {
				continue
			}
			if err := writeEventRecord(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Sequence
		}
	}
}

func writeEventRecord(ctx context.Context, conn *websocket.Conn, rec EventRecord) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, rec)
}
