package auctiond

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"nhbmarket/core/types"
)

const maxEventPage = 500

// EventRecord is a committed domain event together with its position in the
// log.
type EventRecord struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"timestamp"`
}

// EventLog persists committed events for indexers and stream replay.
type EventLog struct {
	db *sql.DB
}

// OpenEventLog opens (or creates) the sqlite database at path.
func OpenEventLog(path string) (*EventLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and serialises
	// writers.
	db.SetMaxOpenConns(1)
	log := &EventLog{db: db}
	if err := log.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

func (l *EventLog) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_type_idx ON events(type);`,
	}
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("init event log: %w", err)
		}
	}
	return nil
}

// Append stores evt and returns the record with its assigned sequence.
func (l *EventLog) Append(ctx context.Context, evt *types.Event, at time.Time) (EventRecord, error) {
	if evt == nil {
		return EventRecord{}, errors.New("event log: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return EventRecord{}, err
	}
	at = at.UTC().Truncate(time.Second)
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO events (type, payload, created_at) VALUES (?, ?, ?)`,
		evt.Type, string(payload), at.Unix())
	if err != nil {
		return EventRecord{}, fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{Sequence: uint64(seq), Type: evt.Type, Attributes: attrs, Timestamp: at}, nil
}

// List returns up to limit records with a sequence strictly greater than
// after, oldest first.
func (l *EventLog) List(ctx context.Context, after uint64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT sequence, type, payload, created_at FROM events WHERE sequence > ? ORDER BY sequence ASC LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	out := make([]EventRecord, 0, limit)
	for rows.Next() {
		var (
			rec     EventRecord
			payload string
			created int64
		)
		if err := rows.Scan(&rec.Sequence, &rec.Type, &payload, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", rec.Sequence, err)
		}
		rec.Timestamp = time.Unix(created, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (l *EventLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
