package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subscribeFlushTimeout bounds how long Subscribe waits for the server to
// acknowledge a new subscription. Subscribe never fails on it.
const subscribeFlushTimeout = time.Second

// NATSBus implements Bus over a single NATS connection. Reconnection and
// backoff are left to the NATS client.
type NATSBus struct {
	conn *nats.Conn

	mu        sync.Mutex
	listeners []func(connected bool)
}

// Compile-time check that NATSBus implements Bus.
var _ Bus = (*NATSBus)(nil)

// NewNATSBus connects to NATS with automatic reconnection support.
// Extra nats.Option values (e.g. a connection name) can be appended.
func NewNATSBus(url string, opts ...nats.Option) (*NATSBus, error) {
	b := &NATSBus{}
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("events: connection lost", "error", err)
			b.notify(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("events: connection restored", "url", nc.ConnectedUrl())
			b.notify(true)
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	b.conn = nc
	return b, nil
}

// Publish JSON-encodes event and publishes it without an origin.
func (b *NATSBus) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.Broadcast(ctx, subject, "", data)
}

// Broadcast publishes data with the origin header set.
func (b *NATSBus) Broadcast(_ context.Context, subject, origin string, data []byte) error {
	if b.conn.IsClosed() {
		return ErrDisconnected
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	if origin != "" {
		msg.Header.Set(OriginHeader, origin)
	}
	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers h for subject. Deliveries stop once cancel returns.
func (b *NATSBus) Subscribe(subject string, opts SubscribeOptions, h Handler) (func(), error) {
	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		origin := ""
		if msg.Header != nil {
			origin = msg.Header.Get(OriginHeader)
		}
		if !opts.accepts(origin) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		h(Message{Subject: msg.Subject, Origin: origin, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// While connected, wait briefly for the server to register the
	// subscription so publishes from other connections are routed to it.
	// While reconnecting, the client replays it once the link is back.
	if b.conn.IsConnected() {
		if err := b.conn.FlushTimeout(subscribeFlushTimeout); err != nil {
			slog.Debug("events: subscription not yet acknowledged", "subject", subject, "error", err)
		}
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
		})
	}
	return cancel, nil
}

// OnConnectionChange registers a connection listener.
func (b *NATSBus) OnConnectionChange(fn func(connected bool)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *NATSBus) notify(connected bool) {
	b.mu.Lock()
	listeners := append([]func(bool){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(connected)
	}
}

// Flush waits until the server has processed everything published so far.
func (b *NATSBus) Flush() error {
	return b.conn.Flush()
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
