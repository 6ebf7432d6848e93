// Package viewport is the boundary to the image rendering engine: the
// per-viewport camera, window/level and image-stack primitives the session
// subsystem drives and observes.
package viewport

import "github.com/alfredjeanlab/viewshare/internal/model"

// VOIRange is the intensity range a window/level maps to.
type VOIRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// FromWindow converts window width and center to a range.
func FromWindow(width, center float64) VOIRange {
	return VOIRange{Lower: center - width/2, Upper: center + width/2}
}

// Window returns the width and center of the range.
func (r VOIRange) Window() (width, center float64) {
	return r.Upper - r.Lower, (r.Lower + r.Upper) / 2
}

// Properties are a viewport's display properties.
type Properties struct {
	VOIRange VOIRange `json:"voiRange"`
	Invert   bool     `json:"invert"`
	// External marks a range that was computed elsewhere and applied here,
	// as opposed to a local user edit.
	External bool `json:"-"`
}

// VOIEvent is delivered by the "VOI modified" signal.
type VOIEvent struct {
	Range    VOIRange
	External bool
}

// Viewport is one cell of the display grid.
type Viewport interface {
	Ref() string
	CurrentImageID() string
	ImageIDs() []string
	SetImageIDIndex(i int) error
	Properties() Properties
	SetProperties(Properties)
	Camera() model.Camera
	SetCamera(model.Camera)
	Render()

	// Signals. Each returns a function that detaches the listener.
	OnNewImage(fn func(imageID string)) (off func())
	OnVOIModified(fn func(VOIEvent)) (off func())
	OnCameraModified(fn func(model.Camera)) (off func())
}

// Renderer exposes the display grid.
type Renderer interface {
	// Viewports returns the grid cells in ascending viewport-index order.
	Viewports() []Viewport
}

// Find returns the viewport with the given reference.
func Find(r Renderer, ref string) (Viewport, bool) {
	for _, vp := range r.Viewports() {
		if vp.Ref() == ref {
			return vp, true
		}
	}
	return nil, false
}
