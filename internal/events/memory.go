package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus. Deliveries happen synchronously on the
// publishing goroutine; order across subscribers is unspecified. It backs
// single-process runs and tests and can simulate a lost connection.
type MemoryBus struct {
	mu        sync.RWMutex
	subs      map[*memorySub]struct{}
	listeners []func(bool)
	down      bool
	closed    bool
}

type memorySub struct {
	pattern string
	opts    SubscribeOptions
	h       Handler
}

// Compile-time check that MemoryBus implements Bus.
var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus returns a connected in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.Broadcast(ctx, subject, "", data)
}

func (b *MemoryBus) Broadcast(_ context.Context, subject, origin string, data []byte) error {
	b.mu.RLock()
	if b.down || b.closed {
		b.mu.RUnlock()
		return ErrDisconnected
	}
	var targets []*memorySub
	for s := range b.subs {
		if MatchSubject(s.pattern, subject) && s.opts.accepts(origin) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	msg := Message{Subject: subject, Origin: origin, Data: append([]byte(nil), data...)}
	for _, s := range targets {
		b.mu.RLock()
		_, live := b.subs[s]
		b.mu.RUnlock()
		if live {
			s.h(msg)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, opts SubscribeOptions, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrDisconnected
	}
	s := &memorySub{pattern: subject, opts: opts, h: h}
	b.subs[s] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}, nil
}

func (b *MemoryBus) OnConnectionChange(fn func(connected bool)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// SetConnected simulates losing or restoring the connection. While down,
// Broadcast fails and nothing is delivered.
func (b *MemoryBus) SetConnected(connected bool) {
	b.mu.Lock()
	changed := b.down == connected
	b.down = !connected
	listeners := append([]func(bool){}, b.listeners...)
	b.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(connected)
	}
}

// Subscriptions returns the number of live subscriptions.
func (b *MemoryBus) Subscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[*memorySub]struct{})
	b.mu.Unlock()
	return nil
}
