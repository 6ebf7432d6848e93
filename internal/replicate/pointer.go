package replicate

import (
	"sync"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Offscreen is the coordinate published on every axis when the controller
// leaves the pointer tool, so remote cursors move out of view.
const Offscreen = -99999

// Pointer is the last remote pointer position.
type Pointer struct {
	Viewport string
	X, Y, Z  float64
}

// Hidden reports whether the position is the off-canvas sentinel.
func (p Pointer) Hidden() bool {
	return p.X == Offscreen && p.Y == Offscreen && p.Z == Offscreen
}

// PointerStore holds the remote pointer for the UI to draw. Reads may come
// from any goroutine.
type PointerStore struct {
	mu  sync.RWMutex
	pos *Pointer
}

// Set records a pointer-changed message.
func (s *PointerStore) Set(ev model.PointerChanged) {
	s.mu.Lock()
	s.pos = &Pointer{Viewport: ev.Viewport, X: ev.X, Y: ev.Y, Z: ev.Z}
	s.mu.Unlock()
}

// Get returns the stored position, if any.
func (s *PointerStore) Get() (Pointer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pos == nil {
		return Pointer{}, false
	}
	return *s.pos, true
}

// Visible returns the position to draw. Nothing is drawn while the local
// user is the controller or after the sentinel arrived.
func (s *PointerStore) Visible(localIsController bool) (Pointer, bool) {
	if localIsController {
		return Pointer{}, false
	}
	p, ok := s.Get()
	if !ok || p.Hidden() {
		return Pointer{}, false
	}
	return p, true
}

// Clear forgets the stored position.
func (s *PointerStore) Clear() {
	s.mu.Lock()
	s.pos = nil
	s.mu.Unlock()
}
