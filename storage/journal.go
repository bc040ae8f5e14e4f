package storage

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

type dirtyValue struct {
	value   []byte
	deleted bool
}

type undoEntry struct {
	key     string
	prev    *dirtyValue
	present bool
}

// Journal buffers writes on top of a Database and records an undo log so that
// a caller can take nested snapshots and roll back to any of them. Nothing
// reaches the backend until Commit. A Journal is not safe for concurrent use.
type Journal struct {
	backend Database
	dirty   map[string]*dirtyValue
	undo    []undoEntry
}

// NewJournal wraps the supplied backend.
func NewJournal(backend Database) *Journal {
	if backend == nil {
		backend = NewMemDB()
	}
	return &Journal{
		backend: backend,
		dirty:   make(map[string]*dirtyValue),
	}
}

// Get returns the current value of key including uncommitted writes.
func (j *Journal) Get(key []byte) ([]byte, error) {
	if entry, ok := j.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return j.backend.Get(key)
}

// Put records a write.
func (j *Journal) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("journal: key must not be empty")
	}
	j.record(string(key))
	j.dirty[string(key)] = &dirtyValue{value: append([]byte(nil), value...)}
	return nil
}

// Delete records a removal.
func (j *Journal) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("journal: key must not be empty")
	}
	j.record(string(key))
	j.dirty[string(key)] = &dirtyValue{deleted: true}
	return nil
}

func (j *Journal) record(key string) {
	prev, ok := j.dirty[key]
	j.undo = append(j.undo, undoEntry{key: key, prev: prev, present: ok})
}

// Snapshot returns an identifier for the current journal position.
func (j *Journal) Snapshot() int { return len(j.undo) }

// RevertToSnapshot undoes every write recorded after the snapshot was taken.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(j.undo) - 1; i >= id; i-- {
		entry := j.undo[i]
		if entry.present {
			j.dirty[entry.key] = entry.prev
		} else {
			delete(j.dirty, entry.key)
		}
	}
	if id < len(j.undo) {
		j.undo = j.undo[:id]
	}
}

// Commit flushes buffered writes to the backend in one atomic batch and
// clears the undo log. On failure nothing reaches the backend and the
// buffered writes are kept so the caller can decide to Discard them.
func (j *Journal) Commit() error {
	if len(j.dirty) == 0 {
		j.undo = nil
		return nil
	}
	keys := make([]string, 0, len(j.dirty))
	for key := range j.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var (
		puts    []KeyValue
		deletes [][]byte
	)
	for _, key := range keys {
		entry := j.dirty[key]
		if entry.deleted {
			deletes = append(deletes, []byte(key))
			continue
		}
		puts = append(puts, KeyValue{Key: []byte(key), Value: entry.value})
	}
	if err := j.backend.WriteBatch(puts, deletes); err != nil {
		return fmt.Errorf("journal: commit %d keys: %w", len(keys), err)
	}
	j.Discard()
	return nil
}

// Discard drops every uncommitted write.
func (j *Journal) Discard() {
	j.dirty = make(map[string]*dirtyValue)
	j.undo = nil
}

// Pending reports the number of keys with uncommitted writes.
func (j *Journal) Pending() int { return len(j.dirty) }

// PutRLP encodes value with RLP and stores it under key.
func (j *Journal) PutRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return j.Put(key, encoded)
}

// GetRLP decodes the value stored under key into out. The boolean reports
// whether the key was present.
func (j *Journal) GetRLP(key []byte, out interface{}) (bool, error) {
	data, err := j.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return false, fmt.Errorf("journal: destination must be a non-nil pointer")
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
