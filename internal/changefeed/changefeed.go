// Package changefeed relays session row changes onto the session bus.
//
// Postgres notifies row changes on a LISTEN channel through a trigger; the
// Relay decodes each notification and republishes it on the rows subject of
// the affected session. The in-memory store feeds the same Relay through
// Forward.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/model"
)

// pingInterval is how often an idle listener checks its connection.
const pingInterval = 90 * time.Second

// Relay republishes row changes on the bus.
type Relay struct {
	pub    events.Publisher
	logger *slog.Logger
}

// New returns a relay publishing to pub.
func New(pub events.Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{pub: pub, logger: logger}
}

// Forward publishes one row change to its session's rows subject.
func (r *Relay) Forward(ctx context.Context, rc model.RowChange) error {
	id := rc.SessionID()
	if id == "" {
		return fmt.Errorf("row change %s without session id", rc.EventType)
	}
	if err := r.pub.Publish(ctx, events.Subject(id, events.KindRows), rc); err != nil {
		return fmt.Errorf("publishing row change: %w", err)
	}
	return nil
}

// Handle decodes a notification payload and forwards it.
func (r *Relay) Handle(ctx context.Context, payload string) error {
	var rc model.RowChange
	if err := json.Unmarshal([]byte(payload), &rc); err != nil {
		return fmt.Errorf("decoding row change: %w", err)
	}
	switch rc.EventType {
	case model.RowInsert, model.RowUpdate, model.RowDelete:
	default:
		return fmt.Errorf("unknown row event type %q", rc.EventType)
	}
	return r.Forward(ctx, rc)
}

// Run forwards notifications until ctx is done or the channel closes. A nil
// notification marks a reconnect after which earlier changes may be missed;
// participants recover through their own registry queries.
func (r *Relay) Run(ctx context.Context, notifications <-chan *pq.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if n == nil {
				r.logger.Warn("changefeed: listener reconnected, notifications may have been lost")
				continue
			}
			if err := r.Handle(ctx, n.Extra); err != nil {
				r.logger.Warn("changefeed: dropping notification", "channel", n.Channel, "err", err)
			}
		}
	}
}

// Listen opens a dedicated LISTEN connection to databaseURL on channel and
// runs the relay until ctx is done.
func (r *Relay) Listen(ctx context.Context, databaseURL, channel string) error {
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			r.logger.Warn("changefeed: listener connect failed", "err", err)
		case pq.ListenerEventDisconnected:
			r.logger.Warn("changefeed: listener disconnected", "err", err)
		case pq.ListenerEventReconnected:
			r.logger.Info("changefeed: listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return fmt.Errorf("listening on %s: %w", channel, err)
	}
	r.logger.Info("changefeed: listening", "channel", channel)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					r.logger.Warn("changefeed: listener ping failed", "err", err)
				}
			}
		}
	}()

	return r.Run(ctx, listener.Notify)
}
