package common

import (
	"errors"
	"strings"

	"nhbmarket/storage"
)

var ErrModulePaused = errors.New("module paused")

var pausePrefix = []byte("pause/module/")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused in p.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseRegistry persists per-module pause flags in the journal so that a
// toggle is rolled back together with the operation that issued it.
type PauseRegistry struct {
	store *storage.Journal
}

// NewPauseRegistry binds a registry to the journal.
func NewPauseRegistry(store *storage.Journal) *PauseRegistry {
	return &PauseRegistry{store: store}
}

func pauseKey(module string) []byte {
	normalized := strings.ToLower(strings.TrimSpace(module))
	return append(append([]byte(nil), pausePrefix...), normalized...)
}

// IsPaused implements PauseView. Read failures are reported as not paused.
func (r *PauseRegistry) IsPaused(module string) bool {
	if r == nil || r.store == nil || strings.TrimSpace(module) == "" {
		return false
	}
	var paused bool
	ok, err := r.store.GetRLP(pauseKey(module), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused stores the pause flag for module.
func (r *PauseRegistry) SetPaused(module string, paused bool) error {
	if r == nil || r.store == nil {
		return errors.New("pause registry: store not configured")
	}
	if strings.TrimSpace(module) == "" {
		return errors.New("pause registry: module required")
	}
	return r.store.PutRLP(pauseKey(module), paused)
}
