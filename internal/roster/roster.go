// Package roster derives the live participant list of a session from
// presence snapshots, annotated with who currently holds control.
package roster

import (
	"sort"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Tracker holds the latest roster. It is not safe for concurrent use; the
// session coordinator's loop is its only caller.
type Tracker struct {
	entries []model.RosterEntry
	sharing string
}

// New returns an empty roster.
func New() *Tracker {
	return &Tracker{}
}

// Sync rebuilds the roster from a presence snapshot, stamping IsSharing from
// the current controller.
func (t *Tracker) Sync(snap model.PresenceSnapshot) {
	entries := make([]model.RosterEntry, 0, len(snap))
	for userID, metas := range snap {
		e := model.RosterEntry{
			UserID:      userID,
			DisplayName: userID,
			Connections: len(metas),
		}
		// Prefer the first connection that carries a name or email.
		for _, m := range metas {
			if e.Email == "" && m.Email != "" {
				e.Email = m.Email
			}
			if e.DisplayName == userID && m.Name != "" {
				e.DisplayName = m.Name
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].UserID < entries[j].UserID
	})
	t.entries = entries
	t.stamp()
}

// SetController restamps the existing roster for a new controller without
// waiting for the next presence sync.
func (t *Tracker) SetController(userID string) {
	t.sharing = userID
	t.stamp()
}

func (t *Tracker) stamp() {
	for i := range t.entries {
		t.entries[i].IsSharing = t.sharing != "" && t.entries[i].UserID == t.sharing
	}
}

// Entries returns a copy of the roster.
func (t *Tracker) Entries() []model.RosterEntry {
	return append([]model.RosterEntry(nil), t.entries...)
}

// DisplayName resolves a user id to its roster name, falling back to the id.
func (t *Tracker) DisplayName(userID string) string {
	for _, e := range t.entries {
		if e.UserID == userID {
			return e.DisplayName
		}
	}
	return userID
}

// Reset discards the roster and controller.
func (t *Tracker) Reset() {
	t.entries = nil
	t.sharing = ""
}
