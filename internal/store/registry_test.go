package store_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/store"
	"github.com/alfredjeanlab/viewshare/internal/store/memory"
)

func newTestRegistry(t *testing.T) (*store.Registry, *memory.Store, *[]model.RowChange) {
	t.Helper()
	ms := memory.New()
	var changes []model.RowChange
	ms.OnChange = func(c model.RowChange) { changes = append(changes, c) }
	return store.NewRegistry(ms), ms, &changes
}

func eventTypes(changes []model.RowChange) string {
	var parts []string
	for _, c := range changes {
		parts = append(parts, string(c.EventType))
	}
	return strings.Join(parts, ",")
}

func TestShareAssignsID(t *testing.T) {
	r, _, changes := newTestRegistry(t)
	ctx := context.Background()

	s, err := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo, ViewState: "layout=1x1"})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if !strings.HasPrefix(s.ID, "vs-") {
		t.Errorf("id = %q, want vs- prefix", s.ID)
	}
	if s.Visibility != model.VisibilityPublic {
		t.Errorf("visibility = %q, want default PUBLIC", s.Visibility)
	}
	if s.CreatedAt.IsZero() {
		t.Error("created_at not stamped")
	}
	if got := eventTypes(*changes); got != "INSERT" {
		t.Errorf("changes = %s, want INSERT", got)
	}
}

func TestShareReplacesOwnersRow(t *testing.T) {
	r, _, changes := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeTeam})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("re-share without id reused the old id")
	}
	if ok, _ := r.Exists(ctx, first.ID); ok {
		t.Error("old session still exists")
	}
	got, err := r.FindByOwner(ctx, "A")
	if err != nil || got.ID != second.ID || got.Mode != model.ModeTeam {
		t.Errorf("FindByOwner = %+v, %v", got, err)
	}
	if got := eventTypes(*changes); got != "INSERT,DELETE,INSERT" {
		t.Errorf("changes = %s", got)
	}
}

func TestShareRejectsForeignID(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeTeam})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Share(ctx, &model.Session{ID: s.ID, OwnerUserID: "B", Mode: model.ModeTeam})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Share with foreign id = %v, want validation error", err)
	}
}

func TestShareValidation(t *testing.T) {
	r, _, changes := newTestRegistry(t)
	_, err := r.Share(context.Background(), &model.Session{OwnerUserID: "A", Mode: "DUO"})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(*changes) != 0 {
		t.Errorf("invalid share produced changes %s", eventTypes(*changes))
	}
}

func TestUpdate(t *testing.T) {
	r, _, changes := newTestRegistry(t)
	ctx := context.Background()

	s, _ := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo})
	next := *s
	next.Mode = model.ModeTeam
	next.ViewState = "layout=2x2"
	got, err := r.Update(ctx, &next)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Mode != model.ModeTeam || got.ViewState != "layout=2x2" || got.ID != s.ID {
		t.Errorf("updated = %+v", got)
	}
	last := (*changes)[len(*changes)-1]
	if last.EventType != model.RowUpdate || last.Old.Mode != model.ModeSolo || last.New.Mode != model.ModeTeam {
		t.Errorf("update change = %+v", last)
	}

	stale := *s
	stale.ID = "vs-other"
	if _, err := r.Update(ctx, &stale); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("update of unknown session = %v, want ErrNotFound", err)
	}
}

func TestClear(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s, _ := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo})
	if err := r.Clear(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup(ctx, s.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Lookup after clear = %v, want ErrNotFound", err)
	}
	if err := r.Clear(ctx, "A"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second clear = %v, want ErrNotFound", err)
	}
	var ve *model.ValidationError
	if err := r.Clear(ctx, " "); !errors.As(err, &ve) {
		t.Errorf("clear without owner = %v, want validation error", err)
	}
}

func TestTransfer(t *testing.T) {
	r, _, changes := newTestRegistry(t)
	ctx := context.Background()

	s, _ := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo, ViewState: "layout=1x1"})
	_, _ = r.Share(ctx, &model.Session{OwnerUserID: "B", Mode: model.ModeTeam})
	*changes = nil

	got, err := r.Transfer(ctx, s.ID, "B")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got.ID != s.ID || got.OwnerUserID != "B" || got.ViewState != "layout=1x1" {
		t.Errorf("transferred = %+v", got)
	}
	if _, err := r.FindByOwner(ctx, "A"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("old owner still has a row: %v", err)
	}
	if got := eventTypes(*changes); got != "DELETE,DELETE,INSERT" {
		t.Errorf("changes = %s, want DELETE,DELETE,INSERT", got)
	}
	if ok, _ := r.Exists(ctx, s.ID); !ok {
		t.Error("session gone after transfer")
	}

	if _, err := r.Transfer(ctx, "vs-missing", "C"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("transfer of missing session = %v, want ErrNotFound", err)
	}
}

func TestTransferRollsBack(t *testing.T) {
	r, ms, changes := newTestRegistry(t)
	ctx := context.Background()

	s, _ := r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo})
	*changes = nil

	boom := errors.New("boom")
	err := ms.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.DeleteSessionByOwner(ctx, "A"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if ok, _ := r.Exists(ctx, s.ID); !ok {
		t.Error("rolled back delete removed the session")
	}
	if len(*changes) != 0 {
		t.Errorf("rolled back transaction notified %s", eventTypes(*changes))
	}
}

func TestList(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, _ = r.Share(ctx, &model.Session{OwnerUserID: "A", Mode: model.ModeSolo, Visibility: model.VisibilityPrivate})
	_, _ = r.Share(ctx, &model.Session{OwnerUserID: "B", Mode: model.ModeTeam})

	all, err := r.List(ctx, model.SessionFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("List = %d rows, %v", len(all), err)
	}
	public, _ := r.List(ctx, model.SessionFilter{Visibility: model.VisibilityPublic})
	if len(public) != 1 || public[0].OwnerUserID != "B" {
		t.Errorf("public = %+v", public)
	}
	owned, _ := r.List(ctx, model.SessionFilter{OwnerUserID: "A"})
	if len(owned) != 1 || owned[0].OwnerUserID != "A" {
		t.Errorf("owned = %+v", owned)
	}
}
