package events

import (
	"context"
	"testing"
)

func TestSubjectHelpers(t *testing.T) {
	subj := Subject("vs-abc", KindControl)
	if subj != "viewshare.session.vs-abc.control" {
		t.Fatalf("Subject = %q", subj)
	}
	id, kind, ok := SplitSubject(subj)
	if !ok || id != "vs-abc" || kind != KindControl {
		t.Errorf("SplitSubject(%q) = %q, %q, %v", subj, id, kind, ok)
	}
	for _, bad := range []string{"other.app.created", "viewshare.session.", "viewshare.session.x."} {
		if _, _, ok := SplitSubject(bad); ok {
			t.Errorf("SplitSubject(%q) should fail", bad)
		}
	}
	if !MatchSubject(SessionWildcard("vs-abc"), subj) {
		t.Error("session wildcard should match control subject")
	}
}

func TestMatchSubject(t *testing.T) {
	for _, tc := range []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.*.c", "a.b.c", true},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.>", "a", false},
		{"a.b", "a.c", false},
	} {
		if got := MatchSubject(tc.pattern, tc.subject); got != tc.want {
			t.Errorf("MatchSubject(%q, %q) = %v, want %v", tc.pattern, tc.subject, got, tc.want)
		}
	}
}

func TestMemoryBus_SelfEchoSuppressed(t *testing.T) {
	bus := NewMemoryBus()
	subj := Subject("vs-1", KindInteraction)

	var own, echo []Message
	cancelOwn, err := bus.Subscribe(subj, SubscribeOptions{Origin: "conn-a"}, func(m Message) { own = append(own, m) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancelOwn()
	cancelEcho, err := bus.Subscribe(subj, SubscribeOptions{Origin: "conn-a", SelfEcho: true}, func(m Message) { echo = append(echo, m) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancelEcho()

	if err := bus.Broadcast(context.Background(), subj, "conn-a", []byte("x")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := bus.Broadcast(context.Background(), subj, "conn-b", []byte("y")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(own) != 1 || string(own[0].Data) != "y" || own[0].Origin != "conn-b" {
		t.Errorf("echo-suppressed subscriber got %+v", own)
	}
	if len(echo) != 2 {
		t.Errorf("self-echo subscriber got %d messages, want 2", len(echo))
	}
}

func TestMemoryBus_CancelAndDisconnect(t *testing.T) {
	bus := NewMemoryBus()
	subj := Subject("vs-1", KindControl)

	var got int
	cancel, err := bus.Subscribe(SessionWildcard("vs-1"), SubscribeOptions{}, func(Message) { got++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var states []bool
	bus.OnConnectionChange(func(c bool) { states = append(states, c) })

	bus.SetConnected(false)
	if err := bus.Broadcast(context.Background(), subj, "", []byte("x")); err != ErrDisconnected {
		t.Fatalf("Broadcast while down = %v, want ErrDisconnected", err)
	}
	bus.SetConnected(false) // no change, no notification
	bus.SetConnected(true)
	if err := bus.Broadcast(context.Background(), subj, "", []byte("x")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	cancel()
	cancel()
	if err := bus.Broadcast(context.Background(), subj, "", []byte("x")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got != 1 {
		t.Errorf("delivered %d messages, want 1", got)
	}
	if len(states) != 2 || states[0] || !states[1] {
		t.Errorf("connection states = %v, want [false true]", states)
	}
	if bus.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d, want 0", bus.Subscriptions())
	}
}

func TestMemoryBus_ReentrantPublish(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	var second int
	_, _ = bus.Subscribe("a", SubscribeOptions{}, func(Message) {
		_ = bus.Broadcast(ctx, "b", "", nil)
	})
	_, _ = bus.Subscribe("b", SubscribeOptions{}, func(Message) { second++ })
	if err := bus.Broadcast(ctx, "a", "", nil); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if second != 1 {
		t.Errorf("re-entrant delivery count = %d, want 1", second)
	}
}
