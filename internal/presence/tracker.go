// Package presence tracks live membership of a session channel.
//
// Every connection announces itself with periodic heartbeats on the
// session's presence subject and a leave beat when it untracks. The Tracker
// keeps the last-seen time per connection; a sweep drops connections that
// stay silent past the dead threshold. Any change in membership produces a
// full snapshot ("sync"), which is what the roster is rebuilt from.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Tracker maintains the in-memory membership of one presence channel.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]*connState
	now   func() time.Time
}

type connState struct {
	userID    string
	email     string
	name      string
	firstSeen time.Time
	lastSeen  time.Time
	beats     int64
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		conns: make(map[string]*connState),
		now:   time.Now,
	}
}

// Record applies a heartbeat or leave beat and reports whether membership
// (or a member's metadata) changed.
func (t *Tracker) Record(beat model.PresenceBeat) bool {
	if beat.ConnID == "" || beat.UserID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if beat.Type == model.BeatLeave {
		if _, ok := t.conns[beat.ConnID]; !ok {
			return false
		}
		delete(t.conns, beat.ConnID)
		return true
	}
	if beat.Type != model.BeatHeartbeat {
		return false
	}

	now := t.now()
	state, ok := t.conns[beat.ConnID]
	if !ok {
		t.conns[beat.ConnID] = &connState{
			userID:    beat.UserID,
			email:     beat.Email,
			name:      beat.Name,
			firstSeen: now,
			lastSeen:  now,
			beats:     1,
		}
		return true
	}

	changed := state.userID != beat.UserID || state.email != beat.Email || state.name != beat.Name
	state.userID = beat.UserID
	state.email = beat.Email
	state.name = beat.Name
	state.lastSeen = now
	state.beats++
	return changed
}

// Snapshot returns the current membership keyed by user id. Metas are sorted
// by connection id so equal memberships produce equal snapshots.
func (t *Tracker) Snapshot() model.PresenceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(model.PresenceSnapshot)
	for connID, state := range t.conns {
		snap[state.userID] = append(snap[state.userID], model.PresenceMeta{
			Email:  state.email,
			Name:   state.name,
			ConnID: connID,
		})
	}
	for _, metas := range snap {
		sort.Slice(metas, func(i, j int) bool { return metas[i].ConnID < metas[j].ConnID })
	}
	return snap
}

// Has reports whether connID is currently tracked.
func (t *Tracker) Has(connID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[connID]
	return ok
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Sweep drops connections idle longer than deadThreshold, except keep, and
// returns the dropped connection ids.
func (t *Tracker) Sweep(deadThreshold time.Duration, keep string) []string {
	now := t.now()

	t.mu.Lock()
	var dropped []string
	for connID, state := range t.conns {
		if connID == keep {
			continue
		}
		if now.Sub(state.lastSeen) > deadThreshold {
			delete(t.conns, connID)
			dropped = append(dropped, connID)
		}
	}
	t.mu.Unlock()

	sort.Strings(dropped)
	for _, connID := range dropped {
		slog.Info("presence: dropped silent connection",
			"conn_id", connID,
			"threshold", deadThreshold)
	}
	return dropped
}
