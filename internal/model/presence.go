package model

// PresenceMeta describes one tracked connection of a user.
type PresenceMeta struct {
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	ConnID string `json:"connId,omitempty"`
}

// PresenceSnapshot is the full membership of a session channel keyed by user
// id, one meta per live connection.
type PresenceSnapshot map[string][]PresenceMeta

// PresenceBeat is a heartbeat or leave announcement on the presence subject.
type PresenceBeat struct {
	Type   string `json:"type"` // "heartbeat" or "leave"
	ConnID string `json:"connId"`
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

const (
	BeatHeartbeat = "heartbeat"
	BeatLeave     = "leave"
)

// RosterEntry is one participant as shown in the session roster. IsSharing is
// derived from the ControlState and never set by callers.
type RosterEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Connections int    `json:"connections"`
	IsSharing   bool   `json:"isSharing"`
}

// Identity is the local user as far as the client knows it. An empty UserID
// is an anonymous viewer.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Anonymous reports whether the identity has not been resolved yet.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}
