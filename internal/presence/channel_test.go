package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/model"
)

type syncRecorder struct {
	mu    sync.Mutex
	snaps []model.PresenceSnapshot
}

func (r *syncRecorder) record(s model.PresenceSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *syncRecorder) last() model.PresenceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func TestChannel_MembersSeeEachOther(t *testing.T) {
	bus := events.NewMemoryBus()
	cfg := Config{HeartbeatInterval: time.Hour}

	var ra, rb syncRecorder
	a, err := Join(bus, "vs-1", "conn-a", model.Identity{UserID: "alice", Name: "Alice"}, cfg, ra.record, nil)
	if err != nil {
		t.Fatalf("Join a: %v", err)
	}
	defer a.Leave()

	if got := ra.last(); len(got) != 1 || got["alice"] == nil {
		t.Fatalf("a should see itself immediately, got %v", got)
	}

	b, err := Join(bus, "vs-1", "conn-b", model.Identity{UserID: "bob", Name: "Bob"}, cfg, rb.record, nil)
	if err != nil {
		t.Fatalf("Join b: %v", err)
	}

	// The memory bus delivers synchronously, so both sides have converged.
	if got := ra.last(); len(got) != 2 || got["bob"][0].Name != "Bob" {
		t.Errorf("a's snapshot = %v", got)
	}
	if got := rb.last(); len(got) != 2 || got["alice"][0].Name != "Alice" {
		t.Errorf("b's snapshot = %v", got)
	}

	b.Leave()
	b.Leave() // idempotent
	if got := ra.last(); len(got) != 1 || got["bob"] != nil {
		t.Errorf("after leave a's snapshot = %v", got)
	}
	if bus.Subscriptions() != 1 {
		t.Errorf("expected only a's subscription to remain, got %d", bus.Subscriptions())
	}
}

func TestChannel_OtherSessionsIsolated(t *testing.T) {
	bus := events.NewMemoryBus()
	cfg := Config{HeartbeatInterval: time.Hour}

	var ra syncRecorder
	a, err := Join(bus, "vs-1", "conn-a", model.Identity{UserID: "alice"}, cfg, ra.record, nil)
	if err != nil {
		t.Fatalf("Join a: %v", err)
	}
	defer a.Leave()
	b, err := Join(bus, "vs-2", "conn-b", model.Identity{UserID: "bob"}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Join b: %v", err)
	}
	defer b.Leave()

	if got := a.Snapshot(); len(got) != 1 {
		t.Errorf("a should only see itself, got %v", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.HeartbeatInterval != 5*time.Second || cfg.DeadThreshold != 15*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
}
