package control

import (
	"math/rand"
	"testing"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

func take(user string, ts int64, by string) model.ShareChanged {
	return model.ShareChanged{User: &user, TS: ts, By: by}
}

func release(ts int64, by string) model.ShareChanged {
	return model.ShareChanged{TS: ts, By: by}
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestRequestChange_TakeAndRelease(t *testing.T) {
	a := New("A", Hooks{})
	a.SetClock(fixedClock(1000))

	msg := a.RequestChange("A")
	if msg.SharingUserID() != "A" || msg.TS != 1000 || msg.By != "A" {
		t.Fatalf("take request = %+v", msg)
	}
	if !a.Apply(msg) {
		t.Fatal("expected take to be accepted")
	}

	a.SetClock(fixedClock(1500))
	msg = a.RequestChange("A")
	if msg.User != nil || msg.TS != 1500 || msg.By != "A" {
		t.Fatalf("release request = %+v", msg)
	}
}

func TestRequestChange_TakeFromOther(t *testing.T) {
	a := New("B", Hooks{})
	a.Apply(take("A", 1000, "A"))
	a.SetClock(fixedClock(2000))

	msg := a.RequestChange("B")
	if msg.SharingUserID() != "B" {
		t.Errorf("B requesting while A controls should take control, got %+v", msg)
	}
}

// Both arbiters resolve A, and a stale duplicate is discarded.
func TestApply_TakeThenStale(t *testing.T) {
	arbA := New("A", Hooks{})
	arbB := New("B", Hooks{})

	msg := take("A", 1000, "A")
	for _, arb := range []*Arbiter{arbA, arbB} {
		if !arb.Apply(msg) {
			t.Fatal("expected acceptance")
		}
		if got := arb.State().SharingUserID; got != "A" {
			t.Fatalf("SharingUserID = %q, want A", got)
		}
	}

	stale := release(999, "B")
	for _, arb := range []*Arbiter{arbA, arbB} {
		if arb.Apply(stale) {
			t.Error("stale message must be discarded")
		}
		if got := arb.State().SharingUserID; got != "A" {
			t.Errorf("SharingUserID = %q after stale message, want A", got)
		}
	}
}

func TestApply_TieBrokenByAuthor(t *testing.T) {
	a := New("X", Hooks{})
	a.Apply(take("A", 1000, "A"))
	if !a.Apply(take("B", 1000, "B")) {
		t.Fatal("equal ts with greater author must win")
	}
	if a.Apply(take("A", 1000, "A")) {
		t.Fatal("equal ts with lesser author must lose")
	}
	if got := a.State().SharingUserID; got != "B" {
		t.Errorf("SharingUserID = %q, want B", got)
	}
}

func TestApply_Idempotent(t *testing.T) {
	once := New("A", Hooks{})
	twice := New("A", Hooks{})
	msg := take("C", 1234, "C")

	once.Apply(msg)
	twice.Apply(msg)
	if twice.Apply(msg) {
		t.Error("re-applying the same message must be a no-op")
	}
	if once.State() != twice.State() {
		t.Errorf("states differ: %+v vs %+v", once.State(), twice.State())
	}
}

func TestApply_ConvergesUnderReorderAndDuplication(t *testing.T) {
	msgs := []model.ShareChanged{
		take("A", 1000, "A"),
		release(1500, "A"),
		take("B", 1500, "B"),
		take("C", 1200, "C"),
		release(900, "B"),
		take("A", 1600, "A"),
		take("B", 1600, "B"),
	}
	want := model.ControlState{SharingUserID: "B", Clock: model.Clock{TS: 1600, By: "B"}}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		var stream []model.ShareChanged
		for _, m := range msgs {
			for n := rng.Intn(3) + 1; n > 0; n-- {
				stream = append(stream, m)
			}
		}
		rng.Shuffle(len(stream), func(i, j int) { stream[i], stream[j] = stream[j], stream[i] })

		x := New("A", Hooks{})
		y := New("B", Hooks{})
		for _, m := range stream {
			x.Apply(m)
		}
		for i := len(stream) - 1; i >= 0; i-- {
			y.Apply(stream[i])
		}
		if x.State() != want || y.State() != want {
			t.Fatalf("trial %d: got %+v and %+v, want %+v", trial, x.State(), y.State(), want)
		}
	}
}

func TestApply_DemotedHookRunsBeforeChanged(t *testing.T) {
	var calls []string
	a := New("A", Hooks{
		Demoted: func() { calls = append(calls, "demoted") },
		Changed: func(prev, next model.ControlState) {
			calls = append(calls, "changed:"+prev.SharingUserID+">"+next.SharingUserID)
		},
	})

	a.Apply(take("A", 1000, "A"))
	a.Apply(take("B", 2000, "B"))
	a.Apply(release(3000, "B"))

	want := []string{"changed:>A", "demoted", "changed:A>B", "changed:B>"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

// A releases control and is demoted.
func TestApply_ReleaseDemotesController(t *testing.T) {
	demoted := 0
	a := New("A", Hooks{Demoted: func() { demoted++ }})
	a.Apply(take("A", 1000, "A"))
	if !a.IsLocalController() {
		t.Fatal("A should be controller")
	}
	a.Apply(release(1500, "A"))
	if a.IsLocalController() || demoted != 1 {
		t.Errorf("after release: controller=%v demoted=%d", a.IsLocalController(), demoted)
	}
}

func TestAnnouncement_ReproducesState(t *testing.T) {
	a := New("A", Hooks{})
	a.Apply(take("A", 1000, "A"))

	late := New("B", Hooks{})
	if !late.Apply(a.Announcement()) {
		t.Fatal("late joiner should adopt the announcement")
	}
	if late.State() != a.State() {
		t.Errorf("late state %+v, want %+v", late.State(), a.State())
	}
	if a.Apply(a.Announcement()) {
		t.Error("announcement must be a duplicate for its author")
	}

	a.Apply(release(1500, "A"))
	if ann := a.Announcement(); ann.User != nil || ann.TS != 1500 {
		t.Errorf("release announcement = %+v", ann)
	}
}

func TestNoticeFor(t *testing.T) {
	names := func(id string) string { return map[string]string{"A": "Alice"}[id] }

	n := NoticeFor(model.ControlState{SharingUserID: "A"}, names)
	if n.Kind != NoticeTaken || n.Message() != "Alice has taken control" {
		t.Errorf("notice = %+v (%q)", n, n.Message())
	}
	n = NoticeFor(model.ControlState{}, names)
	if n.Kind != NoticeReleased || n.Message() != "control released" {
		t.Errorf("notice = %+v (%q)", n, n.Message())
	}
	n = NoticeFor(model.ControlState{SharingUserID: "Z"}, nil)
	if n.DisplayName != "Z" {
		t.Errorf("without names the user id is shown, got %q", n.DisplayName)
	}
}
