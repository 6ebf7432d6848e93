package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by registry lookups that match no session row.
var ErrNotFound = errors.New("session not found")

// Mode controls who may receive a session's interaction stream.
type Mode string

const (
	// ModeSolo replicates interaction state only among the owner's own connections.
	ModeSolo Mode = "SOLO"
	// ModeTeam replicates interaction state to every participant.
	ModeTeam Mode = "TEAM"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// IsValid checks whether the mode is a known value.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSolo, ModeTeam:
		return true
	}
	return false
}

// Visibility controls whether a session can be discovered without its id.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	return string(v)
}

// IsValid checks whether the visibility is a known value.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate:
		return true
	}
	return false
}

// Session is one persisted session row. There is at most one row per owner;
// a transfer of ownership deletes the old row and inserts a new one that
// keeps the same session id.
type Session struct {
	ID          string     `json:"sessionId"`
	OwnerUserID string     `json:"ownerUserId"`
	Mode        Mode       `json:"mode"`
	ViewState   string     `json:"urlEncodedViewState"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   time.Time  `json:"createdAt,omitzero"`
	UpdatedAt   time.Time  `json:"updatedAt,omitzero"`
}

// IsOwner reports whether userID owns the session.
func (s *Session) IsOwner(userID string) bool {
	return s != nil && userID != "" && s.OwnerUserID == userID
}

// RowEventType names the kind of change carried by a RowChange.
type RowEventType string

const (
	RowInsert RowEventType = "INSERT"
	RowUpdate RowEventType = "UPDATE"
	RowDelete RowEventType = "DELETE"
)

// RowChange is a change notification for a session row. Old is nil for
// inserts and New is nil for deletes.
type RowChange struct {
	EventType RowEventType `json:"eventType"`
	Old       *Session     `json:"old"`
	New       *Session     `json:"new"`
}

// SessionID returns the session id the change applies to.
func (c RowChange) SessionID() string {
	if c.New != nil {
		return c.New.ID
	}
	if c.Old != nil {
		return c.Old.ID
	}
	return ""
}

// SessionFilter narrows a session listing.
type SessionFilter struct {
	OwnerUserID string
	Visibility  Visibility
	Limit       int
}
