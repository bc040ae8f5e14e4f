package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// PebbleDB is a persistent key-value store backed by Pebble. Single-key writes
// are left to Pebble's background sync; batches are synced on commit so that a
// committed journal survives a crash.
type PebbleDB struct {
	db *pebble.DB
}

// NewPebbleDB opens (or creates) a Pebble database at path.
func NewPebbleDB(path string) (*PebbleDB, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(16 << 20),
		MemTableSize: 8 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Put(key []byte, value []byte) error {
	return p.db.Set(key, value, pebble.NoSync)
}

func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	// The slice is only valid until closer.Close().
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.NoSync)
}

// WriteBatch atomically applies puts and deletes.
func (p *PebbleDB) WriteBatch(puts []KeyValue, deletes [][]byte) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, kv := range puts {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}
	for _, key := range deletes {
		if err := batch.Delete(key, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleDB) Close() {
	_ = p.db.Close()
}
