package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

func TestGetSessionPrefersNewestRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.InsertSession(ctx, &model.Session{ID: "vs-1", OwnerUserID: "A", Mode: model.ModeSolo, UpdatedAt: t0})
	_ = s.InsertSession(ctx, &model.Session{ID: "vs-1", OwnerUserID: "B", Mode: model.ModeTeam, UpdatedAt: t0.Add(time.Second)})

	got, err := s.GetSession(ctx, "vs-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerUserID != "B" {
		t.Errorf("owner = %q, want B", got.OwnerUserID)
	}
}

func TestRowsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	row := &model.Session{ID: "vs-1", OwnerUserID: "A", Mode: model.ModeSolo}
	_ = s.InsertSession(ctx, row)
	row.Mode = model.ModeTeam

	got, _ := s.GetSessionByOwner(ctx, "A")
	if got.Mode != model.ModeSolo {
		t.Errorf("stored row aliased the caller's value")
	}
	got.Mode = model.ModeTeam
	again, _ := s.GetSessionByOwner(ctx, "A")
	if again.Mode != model.ModeSolo {
		t.Errorf("returned row aliased the stored value")
	}
}

func TestChangesAfterCommit(t *testing.T) {
	s := New()
	ctx := context.Background()
	var got []model.RowChange
	s.OnChange = func(c model.RowChange) {
		// The lock is released before notifying.
		if _, err := s.GetSessionByOwner(ctx, "A"); err != nil && !errors.Is(err, model.ErrNotFound) {
			t.Errorf("read in OnChange: %v", err)
		}
		got = append(got, c)
	}

	_ = s.InsertSession(ctx, &model.Session{ID: "vs-1", OwnerUserID: "A", Mode: model.ModeSolo})
	_ = s.UpdateSession(ctx, &model.Session{ID: "vs-1", OwnerUserID: "A", Mode: model.ModeTeam})
	_ = s.DeleteSessionByOwner(ctx, "A")

	if len(got) != 3 {
		t.Fatalf("changes = %d, want 3", len(got))
	}
	if got[1].Old.Mode != model.ModeSolo || got[1].New.Mode != model.ModeTeam {
		t.Errorf("update change = %+v", got[1])
	}
	if got[2].EventType != model.RowDelete || got[2].New != nil || got[2].Old.ID != "vs-1" {
		t.Errorf("delete change = %+v", got[2])
	}
}

func TestInsertDuplicateOwner(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InsertSession(ctx, &model.Session{ID: "vs-1", OwnerUserID: "A"})

	var ve *model.ValidationError
	if err := s.InsertSession(ctx, &model.Session{ID: "vs-2", OwnerUserID: "A"}); !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestListLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, owner := range []string{"A", "B", "C"} {
		_ = s.InsertSession(ctx, &model.Session{ID: "vs-" + owner, OwnerUserID: owner, UpdatedAt: t0.Add(time.Duration(i) * time.Second)})
	}
	got, _ := s.ListSessions(ctx, model.SessionFilter{Limit: 2})
	if len(got) != 2 || got[0].OwnerUserID != "C" || got[1].OwnerUserID != "B" {
		t.Errorf("list = %+v", got)
	}
}
