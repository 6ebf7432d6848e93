package viewport

import (
	"testing"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

func TestWindowRoundTrip(t *testing.T) {
	r := FromWindow(400, 40)
	if r != (VOIRange{Lower: -160, Upper: 240}) {
		t.Fatalf("FromWindow = %+v", r)
	}
	ww, wc := r.Window()
	if ww != 400 || wc != 40 {
		t.Errorf("Window = %v, %v", ww, wc)
	}
}

func TestStackSignals(t *testing.T) {
	s := NewStack("vp-0", []string{"i1", "i2", "i3"}, VOIRange{})

	var images []string
	var vois []VOIEvent
	var cams []model.Camera
	offImage := s.OnNewImage(func(id string) { images = append(images, id) })
	offVOI := s.OnVOIModified(func(ev VOIEvent) { vois = append(vois, ev) })
	offCam := s.OnCameraModified(func(c model.Camera) { cams = append(cams, c) })

	if err := s.Scroll(5); err != nil {
		t.Fatal(err)
	}
	s.SetWindow(100, 50)
	s.SetCamera(model.Camera{ParallelScale: 1})

	if len(images) != 1 || images[0] != "i3" {
		t.Errorf("images = %v, want [i3]", images)
	}
	if len(vois) != 1 || vois[0].External || vois[0].Range != (VOIRange{Lower: 0, Upper: 100}) {
		t.Errorf("vois = %+v", vois)
	}
	if len(cams) != 1 {
		t.Errorf("cameras = %d, want 1", len(cams))
	}

	offImage()
	offImage()
	offVOI()
	offCam()
	if n := s.Listeners(); n != 0 {
		t.Errorf("listeners = %d, want 0", n)
	}
	_ = s.Scroll(-1)
	if len(images) != 1 {
		t.Error("detached listener still called")
	}
}

func TestStackSetImageIDIndexBounds(t *testing.T) {
	s := NewStack("vp-0", []string{"i1"}, VOIRange{})
	if err := s.SetImageIDIndex(3); err == nil {
		t.Error("expected out of range error")
	}
	s.Load("i2")
	if err := s.SetImageIDIndex(1); err != nil {
		t.Fatal(err)
	}
	if s.CurrentImageID() != "i2" {
		t.Errorf("current = %q", s.CurrentImageID())
	}
}

func TestFind(t *testing.T) {
	g := NewGrid(NewStack("a", nil, VOIRange{}), NewStack("b", nil, VOIRange{}))
	if vp, ok := Find(g, "b"); !ok || vp.Ref() != "b" {
		t.Errorf("Find(b) = %v, %v", vp, ok)
	}
	if _, ok := Find(g, "c"); ok {
		t.Error("Find(c) found a viewport")
	}
	if s := NewStack("x", nil, VOIRange{}); s.CurrentImageID() != "" {
		t.Error("empty stack has a current image")
	}
}
