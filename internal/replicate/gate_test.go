package replicate

import (
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(20)
	g.now = clock.Now

	if !g.Allow() {
		t.Fatal("first event dropped")
	}
	if g.Allow() {
		t.Error("event inside cooldown admitted")
	}
	clock.Advance(25 * time.Millisecond)
	if g.Allow() {
		t.Error("event at half the interval admitted")
	}
	clock.Advance(26 * time.Millisecond)
	if !g.Allow() {
		t.Error("event after the interval dropped")
	}
}

func TestGateDoesNotQueue(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(10)
	g.now = clock.Now

	g.Allow()
	for i := 0; i < 50; i++ {
		g.Allow()
	}
	clock.Advance(time.Second)
	if !g.Allow() {
		t.Fatal("event after a quiet second dropped")
	}
	if g.Allow() {
		t.Error("dropped events were banked as burst")
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	fired := make(chan struct{}, 1)
	d.Trigger(func() { fired <- struct{}{} })
	d.Stop()

	select {
	case <-fired:
		t.Error("stopped debouncer fired")
	case <-time.After(50 * time.Millisecond):
	}
}
