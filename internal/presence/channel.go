package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Config tunes heartbeat timing.
type Config struct {
	// HeartbeatInterval is how often this connection announces itself.
	// Default: 5 seconds.
	HeartbeatInterval time.Duration

	// DeadThreshold is how long a connection may stay silent before it is
	// dropped from the snapshot. Default: 3 heartbeat intervals.
	DeadThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.DeadThreshold <= 0 {
		c.DeadThreshold = 3 * c.HeartbeatInterval
	}
	return c
}

// Channel tracks this connection on a session's presence subject and reports
// membership snapshots to OnSync.
type Channel struct {
	bus     events.Bus
	subject string
	self    model.PresenceBeat
	cfg     Config
	tracker *Tracker
	onSync  func(model.PresenceSnapshot)
	logger  *slog.Logger

	cancelSub func()
	stop      chan struct{}
	done      chan struct{}
	leaveOnce sync.Once
}

// Join subscribes to the session's presence subject, records this connection
// and starts heartbeating. onSync is called, possibly from transport
// goroutines, with a full snapshot after every membership change.
func Join(bus events.Bus, sessionID, connID string, who model.Identity, cfg Config, onSync func(model.PresenceSnapshot), logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		bus:     bus,
		subject: events.Subject(sessionID, events.KindPresence),
		self: model.PresenceBeat{
			Type:   model.BeatHeartbeat,
			ConnID: connID,
			UserID: who.UserID,
			Email:  who.Email,
			Name:   who.Name,
		},
		cfg:     cfg.withDefaults(),
		tracker: New(),
		onSync:  onSync,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	cancel, err := bus.Subscribe(c.subject, events.SubscribeOptions{Origin: connID}, c.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribing to presence: %w", err)
	}
	c.cancelSub = cancel

	c.tracker.Record(c.self)
	c.emitSync()
	c.beat(c.self)

	go c.loop()
	return c, nil
}

// Snapshot returns the current membership.
func (c *Channel) Snapshot() model.PresenceSnapshot {
	return c.tracker.Snapshot()
}

// Leave announces departure, stops heartbeating and unsubscribes. Safe to
// call more than once.
func (c *Channel) Leave() {
	c.leaveOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.cancelSub()
		leave := c.self
		leave.Type = model.BeatLeave
		c.beat(leave)
	})
}

func (c *Channel) handle(msg events.Message) {
	var beat model.PresenceBeat
	if err := json.Unmarshal(msg.Data, &beat); err != nil {
		c.logger.Debug("presence: dropping malformed beat", "error", err)
		return
	}
	if beat.ConnID == c.self.ConnID {
		return
	}
	known := c.tracker.Has(beat.ConnID)
	if !c.tracker.Record(beat) {
		return
	}
	c.emitSync()
	// Answer a newcomer right away so it does not wait a full interval to see us.
	if beat.Type == model.BeatHeartbeat && !known {
		c.beat(c.self)
	}
}

func (c *Channel) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.beat(c.self)
			if dropped := c.tracker.Sweep(c.cfg.DeadThreshold, c.self.ConnID); len(dropped) > 0 {
				c.emitSync()
			}
		}
	}
}

func (c *Channel) beat(b model.PresenceBeat) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.bus.Broadcast(context.Background(), c.subject, c.self.ConnID, data); err != nil {
		c.logger.Debug("presence: heartbeat not sent", "type", b.Type, "error", err)
	}
}

func (c *Channel) emitSync() {
	if c.onSync != nil {
		c.onSync(c.tracker.Snapshot())
	}
}
