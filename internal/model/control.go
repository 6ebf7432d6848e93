package model

// Clock is the logical clock attached to a control change. Clocks are totally
// ordered by timestamp and then lexically by author.
type Clock struct {
	TS int64  `json:"ts"`
	By string `json:"by"`
}

// After reports whether c dominates other.
func (c Clock) After(other Clock) bool {
	if c.TS != other.TS {
		return c.TS > other.TS
	}
	return c.By > other.By
}

// ControlState is the resolved "who is controller" value. An empty
// SharingUserID means nobody holds control.
type ControlState struct {
	SharingUserID string `json:"sharingUserId"`
	Clock         Clock  `json:"clock"`
}

// IsController reports whether userID currently holds control.
func (s ControlState) IsController(userID string) bool {
	return userID != "" && s.SharingUserID == userID
}

// ShareChanged is the share-changed broadcast. A nil User releases control.
type ShareChanged struct {
	User *string `json:"user"`
	TS   int64   `json:"ts"`
	By   string  `json:"by"`
}

// Clock returns the message's logical clock.
func (m ShareChanged) Clock() Clock {
	return Clock{TS: m.TS, By: m.By}
}

// SharingUserID returns the user the message hands control to, or "".
func (m ShareChanged) SharingUserID() string {
	if m.User == nil {
		return ""
	}
	return *m.User
}
