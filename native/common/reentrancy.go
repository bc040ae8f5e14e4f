package common

import (
	"errors"
	"sync/atomic"
)

// ErrReentrantCall is returned when a guarded entry point is invoked while
// another guarded call on the same guard is still in progress.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is a non-blocking call-depth lock. Unlike a mutex it never
// waits: a nested Enter fails immediately so a callback running inside an
// outbound transfer cannot observe half-applied state.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter marks the guard as held or fails with ErrReentrantCall.
func (g *ReentrancyGuard) Enter() error {
	if !g.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the guard.
func (g *ReentrancyGuard) Exit() { g.entered.Store(false) }

// Held reports whether a guarded call is in progress.
func (g *ReentrancyGuard) Held() bool { return g.entered.Load() }
