// Package gateway bridges browser participants onto the session bus over a
// websocket. Each socket is one connection: frames it sends are broadcast on
// the session's subjects tagged with its connection id, and every delivery on
// the session's subjects from other connections is written back to it.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/idgen"
	"github.com/alfredjeanlab/viewshare/internal/model"
)

const (
	// sendBufferSize is how many frames a slow socket may fall behind before
	// further deliveries are dropped.
	sendBufferSize = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// maxFrameSize bounds inbound frames.
	maxFrameSize = 64 << 10

	// KindHello is the first frame sent to a socket; it carries the
	// connection id.
	KindHello = "hello"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Kind   string          `json:"kind"`
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Config tunes the gateway.
type Config struct {
	// InboundRate caps frames per second accepted from one socket.
	// Default: 100.
	InboundRate float64
	// CheckOrigin overrides the upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
}

// Gateway serves GET /v1/sessions/{id}/ws.
type Gateway struct {
	bus      events.Bus
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]struct{}
}

// New returns a gateway publishing on bus.
func New(bus events.Bus, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = 100
	}
	return &Gateway{
		bus: bus,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: logger,
		conns:  make(map[string]struct{}),
	}
}

// Connections returns the number of open sockets.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// publishable reports whether a browser may send on kind. Row changes only
// come from the registry.
func publishable(kind string) bool {
	switch kind {
	case events.KindControl, events.KindInteraction, events.KindPresence:
		return true
	}
	return false
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !idgen.Valid(sessionID) {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	connID := r.URL.Query().Get("conn")
	if connID == "" {
		connID = uuid.NewString()
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("gateway: upgrade failed", "session_id", sessionID, "err", err)
		return
	}

	c := &conn{
		g:         g,
		ws:        ws,
		sessionID: sessionID,
		connID:    connID,
		send:      make(chan Frame, sendBufferSize),
		limiter:   rate.NewLimiter(rate.Limit(g.cfg.InboundRate), int(g.cfg.InboundRate)),
		logger:    g.logger.With("session_id", sessionID, "conn_id", connID),
	}
	c.run(r.Context())
}

// conn is one bridged socket.
type conn struct {
	g         *Gateway
	ws        *websocket.Conn
	sessionID string
	connID    string
	send      chan Frame
	limiter   *rate.Limiter
	logger    *slog.Logger

	// last presence beat seen from the socket, for the leave on close
	presence *model.PresenceBeat
}

func (c *conn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.g.mu.Lock()
	c.g.conns[c.connID] = struct{}{}
	c.g.mu.Unlock()
	defer func() {
		c.g.mu.Lock()
		delete(c.g.conns, c.connID)
		c.g.mu.Unlock()
	}()

	unsubscribe, err := c.g.bus.Subscribe(events.SessionWildcard(c.sessionID),
		events.SubscribeOptions{Origin: c.connID}, c.deliver)
	if err != nil {
		c.logger.Warn("gateway: subscribe failed", "err", err)
		c.ws.Close()
		return
	}

	hello, _ := json.Marshal(map[string]string{"connId": c.connID})
	c.send <- Frame{Kind: KindHello, Data: hello}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop(ctx)
	}()

	c.logger.Info("gateway: connection opened")
	c.readLoop(ctx)

	unsubscribe()
	c.leave(ctx)
	cancel()
	<-done
	c.ws.Close()
	c.logger.Info("gateway: connection closed")
}

// deliver runs on the bus; it never blocks.
func (c *conn) deliver(m events.Message) {
	_, kind, ok := events.SplitSubject(m.Subject)
	if !ok {
		return
	}
	select {
	case c.send <- Frame{Kind: kind, Origin: m.Origin, Data: m.Data}:
	default:
		c.logger.Warn("gateway: dropping frame for slow socket", "kind", kind)
	}
}

func (c *conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("gateway: read failed", "err", err)
			}
			return
		}
		if !publishable(f.Kind) {
			c.logger.Debug("gateway: ignoring frame", "kind", f.Kind)
			continue
		}
		if !c.limiter.Allow() {
			c.logger.Debug("gateway: inbound rate exceeded", "kind", f.Kind)
			continue
		}
		if f.Kind == events.KindPresence {
			c.notePresence(f.Data)
		}
		if err := c.g.bus.Broadcast(ctx, events.Subject(c.sessionID, f.Kind), c.connID, f.Data); err != nil {
			c.logger.Warn("gateway: broadcast failed", "kind", f.Kind, "err", err)
		}
	}
}

func (c *conn) notePresence(data []byte) {
	var beat model.PresenceBeat
	if json.Unmarshal(data, &beat) != nil || beat.ConnID == "" || beat.UserID == "" {
		return
	}
	if beat.Type == model.BeatLeave {
		c.presence = nil
		return
	}
	c.presence = &beat
}

// leave announces departure for a socket that dropped without one.
func (c *conn) leave(ctx context.Context) {
	if c.presence == nil {
		return
	}
	beat := model.PresenceBeat{Type: model.BeatLeave, ConnID: c.presence.ConnID, UserID: c.presence.UserID}
	data, _ := json.Marshal(beat)
	if err := c.g.bus.Broadcast(context.WithoutCancel(ctx), events.Subject(c.sessionID, events.KindPresence), c.connID, data); err != nil {
		c.logger.Warn("gateway: leave broadcast failed", "err", err)
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.logger.Warn("gateway: write failed", "err", err)
				c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}
