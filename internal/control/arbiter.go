// Package control resolves the single distributed value "current controller".
//
// Every participant runs its own Arbiter. Control changes travel as
// share-changed broadcasts stamped with a logical clock (timestamp, author);
// each Arbiter keeps the message with the greatest clock it has ever seen.
// Because that is a pure max over the set of delivered messages, arbiters
// that observe the same messages agree regardless of delivery order or
// duplication.
package control

import (
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Hooks are the side effects of an accepted change. All fields are optional.
type Hooks struct {
	// Demoted runs first when the local user loses control, so capture stops
	// before anything else observes the new state.
	Demoted func()
	// Changed runs after every accepted message with the previous and new state.
	Changed func(prev, next model.ControlState)
}

// Arbiter holds one client's view of the ControlState. It is not safe for
// concurrent use; the session coordinator's loop is its only caller.
type Arbiter struct {
	state model.ControlState
	local string
	now   func() time.Time
	hooks Hooks
}

// New returns an arbiter for localUserID with nobody in control.
func New(localUserID string, hooks Hooks) *Arbiter {
	return &Arbiter{
		local: localUserID,
		now:   time.Now,
		hooks: hooks,
	}
}

// SetClock overrides the wall clock used to stamp requests.
func (a *Arbiter) SetClock(now func() time.Time) {
	a.now = now
}

// SetLocalUser updates who "the local user" is, e.g. after identity resolves.
func (a *Arbiter) SetLocalUser(userID string) {
	a.local = userID
}

// State returns the current ControlState.
func (a *Arbiter) State() model.ControlState {
	return a.state
}

// IsLocalController reports whether the local user holds control.
func (a *Arbiter) IsLocalController() bool {
	return a.state.IsController(a.local)
}

// RequestChange builds the message that toggles control for requester: take
// it when someone else (or nobody) holds it, release it otherwise. The caller
// publishes the message and applies it locally.
func (a *Arbiter) RequestChange(requester string) model.ShareChanged {
	msg := model.ShareChanged{TS: a.now().UnixMilli(), By: requester}
	if a.state.SharingUserID != requester {
		user := requester
		msg.User = &user
	}
	return msg
}

// Apply folds msg into the state. It reports whether the message was
// accepted; dominated and duplicate messages are discarded without effect.
func (a *Arbiter) Apply(msg model.ShareChanged) bool {
	clock := msg.Clock()
	if !clock.After(a.state.Clock) {
		return false
	}

	prev := a.state
	a.state = model.ControlState{SharingUserID: msg.SharingUserID(), Clock: clock}

	if prev.IsController(a.local) && !a.state.IsController(a.local) && a.hooks.Demoted != nil {
		a.hooks.Demoted()
	}
	if a.hooks.Changed != nil {
		a.hooks.Changed(prev, a.state)
	}
	return true
}

// Announcement rebuilds the message that produced the current state. Peers
// that already saw it discard the copy; a late joiner adopts it.
func (a *Arbiter) Announcement() model.ShareChanged {
	msg := model.ShareChanged{TS: a.state.Clock.TS, By: a.state.Clock.By}
	if a.state.SharingUserID != "" {
		user := a.state.SharingUserID
		msg.User = &user
	}
	return msg
}

// Reset forgets all observed messages.
func (a *Arbiter) Reset() {
	a.state = model.ControlState{}
}
