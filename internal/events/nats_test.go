package events

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func newTestBus(t *testing.T, url string) *NATSBus {
	t.Helper()
	bus, err := NewNATSBus(url)
	if err != nil {
		t.Fatalf("creating bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestNATSBus_ImplementsBus(t *testing.T) {
	var _ Bus = (*NATSBus)(nil)
}

func TestNATSBus_BroadcastCarriesOrigin(t *testing.T) {
	url := startTestNATS(t)
	pub := newTestBus(t, url)
	sub := newTestBus(t, url)

	ch := make(chan Message, 4)
	cancel, err := sub.Subscribe(SessionWildcard("vs-1"), SubscribeOptions{Origin: "conn-b"}, func(m Message) { ch <- m })
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	subj := Subject("vs-1", KindInteraction)
	if err := pub.Broadcast(context.Background(), subj, "conn-a", []byte(`{"type":"frame-changed"}`)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	pub.Flush()

	select {
	case msg := <-ch:
		if msg.Origin != "conn-a" || msg.Subject != subj {
			t.Errorf("got origin=%q subject=%q", msg.Origin, msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSBus_SelfEchoSuppressed(t *testing.T) {
	url := startTestNATS(t)
	bus := newTestBus(t, url)

	ch := make(chan Message, 4)
	subj := Subject("vs-1", KindControl)
	cancel, err := bus.Subscribe(subj, SubscribeOptions{Origin: "conn-a"}, func(m Message) { ch <- m })
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	_ = bus.Broadcast(context.Background(), subj, "conn-a", []byte("own"))
	_ = bus.Broadcast(context.Background(), subj, "conn-b", []byte("other"))
	bus.Flush()

	select {
	case msg := <-ch:
		if string(msg.Data) != "other" {
			t.Errorf("got %q, want the other connection's message", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected extra message %q", msg.Data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSBus_PublishJSON(t *testing.T) {
	url := startTestNATS(t)
	bus := newTestBus(t, url)

	ch := make(chan Message, 1)
	subj := Subject("vs-1", KindRows)
	cancel, err := bus.Subscribe(subj, SubscribeOptions{}, func(m Message) { ch <- m })
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	if err := bus.Publish(context.Background(), subj, map[string]string{"eventType": "DELETE"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	bus.Flush()

	select {
	case msg := <-ch:
		var got map[string]string
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got["eventType"] != "DELETE" || msg.Origin != "" {
			t.Errorf("got %v origin=%q", got, msg.Origin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSBus_DoubleCancel(t *testing.T) {
	url := startTestNATS(t)
	bus := newTestBus(t, url)

	cancel, err := bus.Subscribe("viewshare.>", SubscribeOptions{}, func(Message) {})
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	// Calling cancel twice should not panic.
	cancel()
	cancel()
}

func TestNATSBus_PublishAfterClose(t *testing.T) {
	url := startTestNATS(t)
	bus, err := NewNATSBus(url)
	if err != nil {
		t.Fatalf("creating bus: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := bus.Publish(context.Background(), Subject("vs-1", KindRows), struct{}{}); err == nil {
		t.Error("expected error publishing after close")
	}
}

func TestNATSBus_ConnectionSignal(t *testing.T) {
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}

	bus, err := NewNATSBus(srv.ClientURL())
	if err != nil {
		t.Fatalf("creating bus: %v", err)
	}
	defer bus.Close()

	lost := make(chan bool, 1)
	bus.OnConnectionChange(func(connected bool) {
		if !connected {
			select {
			case lost <- connected:
			default:
			}
		}
	})

	srv.Shutdown()
	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection-lost signal")
	}
}

func TestNATSBus_SubscribeWhileReconnecting(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	port := srv.Addr().(*net.TCPAddr).Port

	bus := newTestBus(t, srv.ClientURL())
	lost := make(chan struct{}, 1)
	back := make(chan struct{}, 1)
	bus.OnConnectionChange(func(connected bool) {
		ch := lost
		if connected {
			ch = back
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	srv.Shutdown()
	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection-lost signal")
	}

	got := make(chan Message, 16)
	subj := Subject("vs-1", KindControl)
	start := time.Now()
	cancel, err := bus.Subscribe(subj, SubscribeOptions{}, func(m Message) { got <- m })
	if err != nil {
		t.Fatalf("Subscribe while disconnected: %v", err)
	}
	defer cancel()
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("Subscribe while disconnected took %v", took)
	}

	restarted, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("restarting embedded NATS: %v", err)
	}
	restarted.Start()
	t.Cleanup(restarted.Shutdown)
	if !restarted.ReadyForConnections(5 * time.Second) {
		t.Fatal("restarted NATS not ready")
	}
	select {
	case <-back:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	pub := newTestBus(t, restarted.ClientURL())
	deadline := time.After(5 * time.Second)
	for {
		_ = pub.Broadcast(context.Background(), subj, "conn-a", []byte("after restart"))
		pub.Flush()
		select {
		case m := <-got:
			if string(m.Data) != "after restart" {
				t.Fatalf("got %q", m.Data)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("subscription made while disconnected never delivered")
		}
	}
}
