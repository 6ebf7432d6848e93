// Package session binds a participant to one shared viewing session.
//
// A Manager is the per-process coordinator: it owns the lifecycle state
// machine, the control arbiter, the roster and the interaction replicator,
// and it drives them from a single goroutine. Transport callbacks, renderer
// signals and registry results are posted onto that goroutine, so none of the
// session state needs locking.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/viewshare/internal/control"
	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/idgen"
	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/presence"
	"github.com/alfredjeanlab/viewshare/internal/replicate"
	"github.com/alfredjeanlab/viewshare/internal/roster"
	"github.com/alfredjeanlab/viewshare/internal/viewport"
)

var (
	ErrNotJoined    = errors.New("not joined to a session")
	ErrNotOwner     = errors.New("only the session owner can do that")
	ErrAnonymous    = errors.New("identity not resolved")
	ErrNotPermitted = errors.New("control is reserved for the owner in SOLO mode")
)

const registryTimeout = 10 * time.Second

// Options configure a Manager. Bus and Registry are required.
type Options struct {
	Bus      events.Bus
	Registry Registry
	Renderer viewport.Renderer
	View     ViewHost
	Identity model.Identity
	Notifier control.Notifier

	// OnStatus is called on the coordinator goroutine whenever Status changes.
	OnStatus func(Status)

	Presence  presence.Config
	Replicate replicate.Config

	// RequiredViewKeys decide when a local view is fully specified.
	// Default: model.DefaultRequiredViewKeys.
	RequiredViewKeys []string

	Now    func() time.Time
	Logger *slog.Logger
}

// Status is a point-in-time copy of the coordinator's state, safe to read
// from any goroutine.
type Status struct {
	State     State               `json:"state"`
	SessionID string              `json:"sessionId,omitempty"`
	Session   *model.Session      `json:"session,omitempty"`
	UserID    string              `json:"userId,omitempty"`
	Control   model.ControlState  `json:"control"`
	Roster    []model.RosterEntry `json:"roster"`
	Connected bool                `json:"connected"`
	Capturing bool                `json:"capturing"`
	Applying  bool                `json:"applying"`
}

func (s Status) equal(o Status) bool {
	if s.State != o.State || s.SessionID != o.SessionID || s.UserID != o.UserID ||
		s.Control != o.Control || s.Connected != o.Connected ||
		s.Capturing != o.Capturing || s.Applying != o.Applying {
		return false
	}
	if (s.Session == nil) != (o.Session == nil) {
		return false
	}
	if s.Session != nil && *s.Session != *o.Session {
		return false
	}
	return slices.Equal(s.Roster, o.Roster)
}

// Manager coordinates one participant's membership in a session.
type Manager struct {
	bus         events.Bus
	registry    Registry
	view        ViewHost
	notifier    control.Notifier
	onStatus    func(Status)
	presenceCfg presence.Config
	required    []string
	logger      *slog.Logger
	connID      string

	loop     *loop
	inflight atomic.Int64

	// Owned by the loop goroutine.
	state     State
	identity  model.Identity
	session   *model.Session
	gen       uint64
	subs      map[string]func()
	channel   *presence.Channel
	members   map[string]bool
	connected bool
	arbiter   *control.Arbiter
	roster    *roster.Tracker
	repl      *replicate.Replicator
	// drives is set on the connection whose own request made the local user
	// controller. Only that connection publishes snapshots; the user's other
	// connections capture without one.
	drives     bool
	requesting bool

	mu     sync.RWMutex
	status Status
}

// New creates a Manager in the Unbound state. Call Run to start it.
func New(opts Options) (*Manager, error) {
	if opts.Bus == nil {
		return nil, errors.New("session: bus is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = viewport.NewGrid()
	}
	view := opts.View
	if view == nil {
		view = NewMemoryView(nil, nil)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = control.LogNotifier{Logger: logger}
	}
	required := opts.RequiredViewKeys
	if len(required) == 0 {
		required = model.DefaultRequiredViewKeys
	}

	m := &Manager{
		bus:         opts.Bus,
		registry:    opts.Registry,
		view:        view,
		notifier:    notifier,
		onStatus:    opts.OnStatus,
		presenceCfg: opts.Presence,
		required:    required,
		logger:      logger,
		connID:      uuid.NewString(),
		loop:        newLoop(),
		state:       StateUnbound,
		identity:    opts.Identity,
		subs:        make(map[string]func()),
		connected:   true,
		roster:      roster.New(),
	}
	m.arbiter = control.New(opts.Identity.UserID, control.Hooks{
		Demoted: m.onDemoted,
		Changed: m.onControlChanged,
	})
	if opts.Now != nil {
		m.arbiter.SetClock(opts.Now)
	}
	m.repl = replicate.New(renderer, m.publishInteraction, nil, opts.Replicate, logger)
	m.repl.Dispatch = m.post

	m.bus.OnConnectionChange(func(up bool) {
		m.post(func() { m.onConnection(up) })
	})
	m.status = m.snapshot()
	return m, nil
}

// Run drives the coordinator until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	return m.loop.run(ctx)
}

// Flush waits until every posted event and in-flight registry call has been
// handled.
func (m *Manager) Flush(ctx context.Context) error {
	for {
		if err := m.loop.call(ctx, func() {}); err != nil {
			return err
		}
		if m.inflight.Load() == 0 && m.loop.pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Handled returns how many loop events have run.
func (m *Manager) Handled() int64 {
	return m.loop.handled.Load()
}

func (m *Manager) post(fn func()) {
	m.loop.post(func() {
		fn()
		m.refresh()
	})
}

func (m *Manager) call(ctx context.Context, fn func()) error {
	return m.loop.call(ctx, func() {
		fn()
		m.refresh()
	})
}

// async runs a registry call off the loop and posts its continuation back.
func (m *Manager) async(work func(ctx context.Context) func()) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Add(-1)
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		defer cancel()
		m.post(work(ctx))
	}()
}

// --- Operations ---

// Start joins sessionID if it is set. A session that does not exist leaves
// the Manager Unbound and is not an error.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if !idgen.Valid(sessionID) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	m.post(func() { m.beginJoin(sessionID) })

	m.inflight.Add(1)
	defer m.inflight.Add(-1)
	s, err := m.registry.Lookup(ctx, sessionID)
	m.post(func() { m.finishJoin(sessionID, s, err) })

	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("looking up session %s: %w", sessionID, err)
	}
	return nil
}

// IdentityResolved records who the local user is. A joined session gets its
// ownership re-checked and any channels that waited for an identity; an
// unbound participant rejoins the session it owns, if any.
func (m *Manager) IdentityResolved(ctx context.Context, who model.Identity) error {
	return m.call(ctx, func() { m.identify(who) })
}

// Share creates (or replaces) the local user's session with the current
// view state and joins it as owner.
func (m *Manager) Share(ctx context.Context, mode model.Mode, visibility model.Visibility) (*model.Session, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	if !visibility.IsValid() {
		return nil, fmt.Errorf("invalid visibility %q", visibility)
	}

	var req model.Session
	var err error
	if cerr := m.call(ctx, func() {
		if m.identity.Anonymous() {
			err = ErrAnonymous
			return
		}
		req = model.Session{
			OwnerUserID: m.identity.UserID,
			Mode:        mode,
			Visibility:  visibility,
			ViewState:   m.view.ViewState().Encode(),
		}
		if m.state == StateJoined && m.session.IsOwner(m.identity.UserID) {
			req.ID = m.session.ID
		}
	}); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}

	s, err := m.registry.Share(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("sharing session: %w", err)
	}
	if err := m.call(ctx, func() { m.adopt(s) }); err != nil {
		return nil, err
	}
	return s, nil
}

// SetMode changes the session mode. Owner only.
func (m *Manager) SetMode(ctx context.Context, mode model.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	return m.updateOwned(ctx, func(s *model.Session) {
		s.Mode = mode
	})
}

// PublishViewState writes the local view state to the session row so that
// joining participants start from it. Owner only.
func (m *Manager) PublishViewState(ctx context.Context) error {
	var vs string
	if err := m.call(ctx, func() { vs = m.view.ViewState().Encode() }); err != nil {
		return err
	}
	return m.updateOwned(ctx, func(s *model.Session) {
		s.ViewState = vs
	})
}

func (m *Manager) updateOwned(ctx context.Context, edit func(*model.Session)) error {
	var req model.Session
	var err error
	if cerr := m.call(ctx, func() {
		switch {
		case m.state != StateJoined:
			err = ErrNotJoined
		case !m.session.IsOwner(m.identity.UserID):
			err = ErrNotOwner
		default:
			req = *m.session
		}
	}); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	edit(&req)
	s, err := m.registry.Update(ctx, &req)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", req.ID, err)
	}
	return m.call(ctx, func() {
		if m.state == StateJoined && m.sessionID() == s.ID {
			m.setSession(s)
		}
	})
}

// RequestControl takes control, or releases it when the local user already
// holds it.
func (m *Manager) RequestControl(ctx context.Context) error {
	var err error
	if cerr := m.call(ctx, func() { err = m.requestControl() }); cerr != nil {
		return cerr
	}
	return err
}

// SelectTool records the locally selected tool.
func (m *Manager) SelectTool(tool string) {
	m.post(func() { m.repl.SelectTool(tool) })
}

// MovePointer reports local pointer motion over a viewport.
func (m *Manager) MovePointer(viewportRef string, x, y, z float64) {
	m.post(func() {
		if m.state == StateJoined {
			m.repl.CapturePointer(viewportRef, x, y, z)
		}
	})
}

// ClearSharing stops sharing. The owner deletes its row first; anyone else
// only leaves locally.
func (m *Manager) ClearSharing(ctx context.Context) error {
	var owner string
	var gen uint64
	var bound bool
	if err := m.call(ctx, func() {
		bound = m.state.Bound()
		gen = m.gen
		if m.session.IsOwner(m.identity.UserID) {
			owner = m.identity.UserID
		}
	}); err != nil {
		return err
	}
	if !bound {
		return nil
	}

	if owner != "" {
		if err := m.registry.Clear(ctx, owner); err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("clearing session: %w", err)
		}
	}
	return m.call(ctx, func() {
		if m.gen == gen {
			m.teardown("sharing cleared")
		}
	})
}

// Close tears down the session, as on unmount.
func (m *Manager) Close(ctx context.Context) error {
	return m.call(ctx, func() { m.teardown("closed") })
}

// --- Accessors ---

// Status returns the latest status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.status
	st.Roster = slices.Clone(st.Roster)
	return st
}

// State returns the lifecycle state.
func (m *Manager) State() State { return m.Status().State }

// Control returns the resolved ControlState.
func (m *Manager) Control() model.ControlState { return m.Status().Control }

// Roster returns the participant list.
func (m *Manager) Roster() []model.RosterEntry { return m.Status().Roster }

// Connected reports whether the transport is up.
func (m *Manager) Connected() bool { return m.Status().Connected }

// ConnID returns this participant's connection id.
func (m *Manager) ConnID() string { return m.connID }

// Pointer returns the remote pointer to draw, if any.
func (m *Manager) Pointer() (replicate.Pointer, bool) {
	st := m.Status()
	return m.repl.Pointer().Visible(st.Control.IsController(st.UserID))
}

func (m *Manager) snapshot() Status {
	st := Status{
		State:     m.state,
		SessionID: m.sessionID(),
		UserID:    m.identity.UserID,
		Control:   m.arbiter.State(),
		Roster:    m.roster.Entries(),
		Connected: m.connected,
		Capturing: m.repl.Capturing(),
		Applying:  m.repl.Applying(),
	}
	if m.session != nil {
		cp := *m.session
		st.Session = &cp
	}
	return st
}

func (m *Manager) refresh() {
	st := m.snapshot()
	m.mu.Lock()
	changed := !st.equal(m.status)
	m.status = st
	m.mu.Unlock()
	if changed && m.onStatus != nil {
		m.onStatus(st)
	}
}

// --- Lifecycle (loop goroutine only) ---

func (m *Manager) sessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

func (m *Manager) transition(to State) bool {
	if !CanTransition(m.state, to) {
		m.logger.Warn("session: invalid transition", "from", m.state, "to", to)
		return false
	}
	m.logger.Debug("session: transition", "from", m.state, "to", to)
	m.state = to
	return true
}

func (m *Manager) beginJoin(sessionID string) {
	if m.state.Bound() {
		if m.sessionID() == sessionID {
			return
		}
		m.teardown("switching session")
	}
	if m.transition(StateAwaitingJoin) {
		m.session = &model.Session{ID: sessionID}
	}
}

func (m *Manager) finishJoin(sessionID string, s *model.Session, err error) {
	if m.state != StateAwaitingJoin || m.sessionID() != sessionID {
		m.logger.Debug("session: dropping stale lookup", "session_id", sessionID)
		return
	}
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			m.logger.Info("session: not found, continuing unshared", "session_id", sessionID)
		} else {
			m.logger.Warn("session: lookup failed, continuing unshared",
				"session_id", sessionID,
				"error", err)
		}
		m.session = nil
		m.transition(StateUnbound)
		return
	}
	m.join(s)
}

// adopt joins s, or refreshes it when it is the session already joined.
func (m *Manager) adopt(s *model.Session) {
	if m.state == StateJoined && m.sessionID() == s.ID {
		m.setSession(s)
		return
	}
	if m.state.Bound() {
		m.teardown("switching session")
	}
	m.join(s)
}

func (m *Manager) join(s *model.Session) {
	if !m.transition(StateJoined) {
		return
	}
	m.gen++
	m.session = s
	m.adoptViewState(s)
	m.reconcile()
	m.logger.Info("session: joined",
		"session_id", s.ID,
		"owner", s.OwnerUserID,
		"mode", s.Mode,
		"conn_id", m.connID)
}

// adoptViewState replaces the local view with the session's, unless the
// local view is already fully specified.
func (m *Manager) adoptViewState(s *model.Session) {
	if m.view.ViewState().Complete(m.required) {
		m.logger.Debug("session: local view already complete", "session_id", s.ID)
		return
	}
	vs, err := model.ParseViewState(s.ViewState)
	if err != nil {
		m.logger.Warn("session: ignoring view state", "session_id", s.ID, "error", err)
		return
	}
	m.view.ReplaceViewState(vs)
}

// setSession swaps in a newer row for the joined session and re-evaluates
// everything that depends on ownership and mode.
func (m *Manager) setSession(s *model.Session) {
	prev := m.session
	m.session = s
	if prev != nil && prev.Mode != s.Mode {
		m.logger.Info("session: mode changed", "session_id", s.ID, "from", prev.Mode, "to", s.Mode)
	}
	if prev != nil && prev.OwnerUserID != s.OwnerUserID {
		m.logger.Info("session: owner changed", "session_id", s.ID, "from", prev.OwnerUserID, "to", s.OwnerUserID)
	}
	m.enforceMode()
	m.reconcile()
}

// reconcile establishes whatever channels the current identity, ownership
// and mode call for, and detaches the interaction channel where they forbid
// it.
func (m *Manager) reconcile() {
	if m.state != StateJoined {
		return
	}
	m.subscribe(events.KindRows, m.handleRows)
	if m.identity.Anonymous() {
		return
	}
	m.subscribe(events.KindControl, m.handleControl)
	if m.applyPermitted() {
		if m.subscribe(events.KindInteraction, m.handleInteraction) {
			m.repl.EnableApply()
		}
	} else {
		m.unsubscribe(events.KindInteraction)
		m.repl.DisableApply()
	}
	// Presence goes last: announcing ourselves prompts peers to resend
	// state, which must find the other channels in place.
	if m.channel == nil {
		m.joinPresence()
	}
}

// applyPermitted: in SOLO mode only the owner's own connections replicate.
func (m *Manager) applyPermitted() bool {
	if m.identity.Anonymous() || m.session == nil {
		return false
	}
	return m.session.Mode == model.ModeTeam || m.session.IsOwner(m.identity.UserID)
}

// enforceMode releases control held by a non-owner once the session is SOLO.
func (m *Manager) enforceMode() {
	if m.session == nil || m.session.Mode != model.ModeSolo {
		return
	}
	if !m.arbiter.IsLocalController() || m.session.IsOwner(m.identity.UserID) {
		return
	}
	msg := m.arbiter.RequestChange(m.identity.UserID)
	if err := m.broadcastControl(msg); err != nil {
		m.logger.Warn("session: releasing control", "error", err)
	}
	m.arbiter.Apply(msg)
}

func (m *Manager) subscribe(kind string, h func(events.Message)) bool {
	if _, ok := m.subs[kind]; ok {
		return true
	}
	gen := m.gen
	subject := events.Subject(m.sessionID(), kind)
	cancel, err := m.bus.Subscribe(subject, events.SubscribeOptions{Origin: m.connID}, func(msg events.Message) {
		m.post(func() {
			if gen != m.gen || m.state != StateJoined {
				return
			}
			h(msg)
		})
	})
	if err != nil {
		m.logger.Warn("session: subscribe failed", "subject", subject, "error", err)
		return false
	}
	m.subs[kind] = cancel
	return true
}

func (m *Manager) unsubscribe(kind string) {
	if cancel, ok := m.subs[kind]; ok {
		cancel()
		delete(m.subs, kind)
	}
}

func (m *Manager) joinPresence() {
	gen := m.gen
	ch, err := presence.Join(m.bus, m.sessionID(), m.connID, m.identity, m.presenceCfg, func(snap model.PresenceSnapshot) {
		m.post(func() {
			if gen == m.gen && m.state == StateJoined {
				m.handlePresence(snap)
			}
		})
	}, m.logger)
	if err != nil {
		m.logger.Warn("session: joining presence", "session_id", m.sessionID(), "error", err)
		return
	}
	m.channel = ch
}

// teardown is the single cleanup path. It is a no-op unless a session is
// bound.
func (m *Manager) teardown(reason string) {
	if !m.state.Bound() {
		return
	}
	id := m.sessionID()
	m.gen++
	for kind, cancel := range m.subs {
		cancel()
		delete(m.subs, kind)
	}
	if m.channel != nil {
		m.channel.Leave()
		m.channel = nil
	}
	m.members = nil
	m.drives = false
	m.repl.Reset()
	m.arbiter.Reset()
	m.roster.Reset()
	m.session = nil
	m.transition(StateTeardown)
	m.logger.Info("session: torn down", "session_id", id, "reason", reason)
}

func (m *Manager) identify(who model.Identity) {
	prev := m.identity
	m.identity = who
	if prev.UserID != "" && prev.UserID != who.UserID {
		// Control belongs to the previous user.
		m.drives = false
		m.repl.StopCapture()
	}
	m.arbiter.SetLocalUser(who.UserID)
	if who.Anonymous() {
		return
	}

	switch m.state {
	case StateJoined:
		if !prev.Anonymous() && prev != who && m.channel != nil {
			m.channel.Leave()
			m.channel = nil
		}
		m.reconcile()
		m.recheckOwnership()
	case StateUnbound, StateTeardown:
		m.reconnect(who.UserID)
	}
}

// recheckOwnership re-reads the joined row now that the identity is known.
func (m *Manager) recheckOwnership() {
	id, gen := m.sessionID(), m.gen
	m.async(func(ctx context.Context) func() {
		s, err := m.registry.Lookup(ctx, id)
		return func() {
			if gen != m.gen || m.state != StateJoined {
				return
			}
			if err != nil {
				m.logger.Warn("session: ownership re-check failed", "session_id", id, "error", err)
				return
			}
			if s.IsOwner(m.identity.UserID) {
				m.logger.Info("session: identified as owner", "session_id", id)
			}
			m.setSession(s)
		}
	})
}

// reconnect rejoins the session the user owns, if there is one.
func (m *Manager) reconnect(userID string) {
	m.async(func(ctx context.Context) func() {
		s, err := m.registry.FindByOwner(ctx, userID)
		return func() {
			if m.state.Bound() || m.identity.UserID != userID {
				return
			}
			if err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					m.logger.Warn("session: reconnect lookup failed", "user_id", userID, "error", err)
				}
				return
			}
			m.logger.Info("session: reconnecting to owned session", "session_id", s.ID)
			m.join(s)
		}
	})
}

// --- Handlers (loop goroutine only) ---

func (m *Manager) handleRows(msg events.Message) {
	var rc model.RowChange
	if err := json.Unmarshal(msg.Data, &rc); err != nil {
		m.logger.Debug("session: dropping malformed row change", "error", err)
		return
	}
	if rc.SessionID() != m.sessionID() {
		return
	}

	switch rc.EventType {
	case model.RowUpdate:
		if rc.New == nil {
			return
		}
		if !rc.New.IsOwner(m.identity.UserID) {
			m.replaceViewState(rc.New)
		}
		m.setSession(rc.New)
	case model.RowInsert:
		if rc.New != nil {
			m.setSession(rc.New)
		}
	case model.RowDelete:
		m.checkStillShared()
	default:
		m.logger.Debug("session: unknown row event", "event_type", rc.EventType)
	}
}

// replaceViewState applies a remote owner's view in place.
func (m *Manager) replaceViewState(s *model.Session) {
	vs, err := model.ParseViewState(s.ViewState)
	if err != nil {
		m.logger.Warn("session: ignoring view state", "session_id", s.ID, "error", err)
		return
	}
	if vs.Equal(m.view.ViewState()) {
		return
	}
	m.view.ReplaceViewState(vs)
}

// checkStillShared tears down once no row is left for the session. A row
// deleted as part of an ownership transfer leaves its successor behind.
func (m *Manager) checkStillShared() {
	id, gen := m.sessionID(), m.gen
	m.async(func(ctx context.Context) func() {
		ok, err := m.registry.Exists(ctx, id)
		return func() {
			if gen != m.gen || m.state != StateJoined {
				return
			}
			if err != nil {
				m.logger.Warn("session: existence check failed", "session_id", id, "error", err)
				return
			}
			if ok {
				m.logger.Debug("session: row deleted, session continues", "session_id", id)
				return
			}
			m.teardown("session deleted")
		}
	})
}

func (m *Manager) handleControl(msg events.Message) {
	sc, ok := model.DecodeShareChanged(msg.Data)
	if !ok {
		m.logger.Debug("session: dropping malformed control message")
		return
	}
	if !m.arbiter.Apply(sc) {
		m.logger.Debug("session: discarding stale control message", "ts", sc.TS, "by", sc.By)
	}
}

func (m *Manager) handleInteraction(msg events.Message) {
	ev, ok := model.DecodeInteraction(msg.Data)
	if !ok {
		m.logger.Debug("session: dropping unknown interaction")
		return
	}
	m.repl.Apply(ev)
}

func (m *Manager) handlePresence(snap model.PresenceSnapshot) {
	members := make(map[string]bool)
	fresh := false
	for _, metas := range snap {
		for _, meta := range metas {
			members[meta.ConnID] = true
			if meta.ConnID != m.connID && !m.members[meta.ConnID] {
				fresh = true
			}
		}
	}
	m.members = members
	m.roster.Sync(snap)
	if fresh {
		m.welcome()
	}
}

// welcome brings a newly arrived connection up to date: the control state is
// re-announced (peers that already hold it discard the copy) and the
// controller republishes its viewports.
func (m *Manager) welcome() {
	if m.arbiter.State().Clock != (model.Clock{}) {
		if err := m.broadcastControl(m.arbiter.Announcement()); err != nil {
			m.logger.Debug("session: re-announcing control", "error", err)
		}
	}
	if m.drives {
		m.repl.Snapshot()
	}
}

func (m *Manager) requestControl() error {
	switch {
	case m.state != StateJoined:
		return ErrNotJoined
	case m.identity.Anonymous():
		return ErrAnonymous
	case m.session.Mode == model.ModeSolo && !m.session.IsOwner(m.identity.UserID):
		return ErrNotPermitted
	}
	msg := m.arbiter.RequestChange(m.identity.UserID)
	if err := m.broadcastControl(msg); err != nil {
		return fmt.Errorf("requesting control: %w", err)
	}
	m.requesting = true
	m.arbiter.Apply(msg)
	m.requesting = false
	return nil
}

func (m *Manager) onDemoted() {
	m.drives = false
	m.repl.StopCapture()
}

func (m *Manager) onControlChanged(prev, next model.ControlState) {
	m.roster.SetController(next.SharingUserID)
	m.repl.Pointer().Clear()
	local := m.identity.UserID
	if next.IsController(local) && !prev.IsController(local) {
		if m.requesting {
			m.drives = true
			m.repl.StartCapture()
		} else {
			m.repl.AttachCapture()
		}
	}
	m.notifier.Notify(control.NoticeFor(next, m.roster.DisplayName))
}

func (m *Manager) onConnection(up bool) {
	if m.connected == up {
		return
	}
	m.connected = up
	if !up {
		m.logger.Warn("session: transport disconnected, control state frozen", "session_id", m.sessionID())
		return
	}
	m.logger.Info("session: transport restored", "session_id", m.sessionID())
	if m.state != StateJoined {
		return
	}
	m.reconcile()
	if m.arbiter.IsLocalController() {
		m.welcome()
	}
}

// --- Publishing ---

func (m *Manager) broadcastControl(msg model.ShareChanged) error {
	data, err := model.EncodeEnvelope(model.TypeShareChanged, msg)
	if err != nil {
		return err
	}
	return m.bus.Broadcast(context.Background(), events.Subject(m.sessionID(), events.KindControl), m.connID, data)
}

func (m *Manager) publishInteraction(ev model.Interaction) {
	id := m.sessionID()
	if id == "" {
		return
	}
	data, err := model.EncodeInteraction(ev)
	if err != nil {
		m.logger.Warn("session: encoding interaction", "type", ev.Type(), "error", err)
		return
	}
	if err := m.bus.Broadcast(context.Background(), events.Subject(id, events.KindInteraction), m.connID, data); err != nil {
		m.logger.Debug("session: interaction not sent", "type", ev.Type(), "error", err)
	}
}
