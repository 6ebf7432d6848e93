package rpc

import (
	"testing"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

func TestSessionStructRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 890000000, time.UTC)
	in := &model.Session{
		ID: "vs-abc", OwnerUserID: "alice", Mode: model.ModeTeam,
		Visibility: model.VisibilityPrivate, ViewState: "layout=1x1&StudyInstanceUIDs=1.2.3",
		CreatedAt: now, UpdatedAt: now,
	}
	st, err := SessionToStruct(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := StringField(st, FieldSessionID); got != "vs-abc" {
		t.Errorf("sessionId field = %q", got)
	}
	out, err := StructToSession(st)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.OwnerUserID != in.OwnerUserID || out.Mode != in.Mode ||
		out.Visibility != in.Visibility || out.ViewState != in.ViewState {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if !out.CreatedAt.Equal(now) || !out.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v / %v, want %v", out.CreatedAt, out.UpdatedAt, now)
	}
}

func TestFields(t *testing.T) {
	st := Fields(map[string]string{FieldOwnerUserID: "bob"})
	if StringField(st, FieldOwnerUserID) != "bob" || StringField(st, FieldSessionID) != "" {
		t.Errorf("fields = %v", st)
	}
	if BoolField(st, FieldExists) {
		t.Error("missing bool field reported true")
	}
}

func TestFullMethod(t *testing.T) {
	if got := FullMethod(MethodLookup); got != "/viewshare.v1.Registry/Lookup" {
		t.Errorf("FullMethod = %q", got)
	}
}
