package client

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/server"
	"github.com/alfredjeanlab/viewshare/internal/store"
	"github.com/alfredjeanlab/viewshare/internal/store/memory"
)

func newBufconnClient(t *testing.T, token string) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	rs := server.NewRegistryServer(store.NewRegistry(memory.New()), nil, nil)
	gs := server.NewGRPCServer(rs, "tok")
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGRPCClientRoundTrip(t *testing.T) {
	c := newBufconnClient(t, "tok")
	ctx := context.Background()

	if status, err := c.Health(ctx); err != nil || status != "SERVING" {
		t.Fatalf("Health = %q, %v", status, err)
	}

	s, err := c.Share(ctx, &model.Session{OwnerUserID: "alice", Mode: model.ModeTeam, ViewState: "layout=1x1"})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if s.ID == "" || s.ViewState != "layout=1x1" || s.CreatedAt.IsZero() {
		t.Fatalf("shared = %+v", s)
	}

	got, err := c.Lookup(ctx, s.ID)
	if err != nil || got.OwnerUserID != "alice" {
		t.Fatalf("Lookup = %+v, %v", got, err)
	}

	next := *got
	next.Visibility = model.VisibilityPrivate
	updated, err := c.Update(ctx, &next)
	if err != nil || updated.Visibility != model.VisibilityPrivate {
		t.Fatalf("Update = %+v, %v", updated, err)
	}

	if ok, err := c.Exists(ctx, s.ID); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	if _, err := c.Transfer(ctx, s.ID, "bob"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := c.FindByOwner(ctx, "alice"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FindByOwner(alice) = %v, want ErrNotFound", err)
	}
	if err := c.Clear(ctx, "bob"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok, _ := c.Exists(ctx, s.ID); ok {
		t.Fatal("session exists after clear")
	}
}

func TestGRPCClientNotFound(t *testing.T) {
	c := newBufconnClient(t, "tok")
	if _, err := c.Lookup(context.Background(), "vs-none"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGRPCClientBadToken(t *testing.T) {
	c := newBufconnClient(t, "wrong")
	_, err := c.Lookup(context.Background(), "vs-none")
	if err == nil || errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
}
