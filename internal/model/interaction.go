package model

import (
	"encoding/json"
	"fmt"
)

// Interaction type tags as they appear on the wire.
const (
	TypeShareChanged   = "share-changed"
	TypeFrameChanged   = "frame-changed"
	TypeVOIChanged     = "voi-changed"
	TypePointerChanged = "pointer-changed"
	TypeCameraChanged  = "camera-changed"
)

// Interaction is one replicated navigation change. The concrete types are
// FrameChanged, VOIChanged, PointerChanged and CameraChanged.
type Interaction interface {
	// Type returns the wire tag.
	Type() string
	// ViewportRef returns the display-grid cell the change applies to.
	ViewportRef() string
}

// FrameChanged moves a viewport to a specific image of its stack.
type FrameChanged struct {
	ImageID  string `json:"imageId"`
	Viewport string `json:"viewport"`
}

func (FrameChanged) Type() string          { return TypeFrameChanged }
func (e FrameChanged) ViewportRef() string { return e.Viewport }

// VOIChanged sets a viewport's window width and center.
type VOIChanged struct {
	WindowWidth  float64 `json:"ww"`
	WindowCenter float64 `json:"wc"`
	Viewport     string  `json:"viewport"`
}

func (VOIChanged) Type() string          { return TypeVOIChanged }
func (e VOIChanged) ViewportRef() string { return e.Viewport }

// PointerChanged moves the controller's remote cursor.
type PointerChanged struct {
	X        float64 `json:"coordX"`
	Y        float64 `json:"coordY"`
	Z        float64 `json:"coordZ"`
	Viewport string  `json:"viewport"`
}

func (PointerChanged) Type() string          { return TypePointerChanged }
func (e PointerChanged) ViewportRef() string { return e.Viewport }

// Camera is a viewport camera in world coordinates.
type Camera struct {
	Position      [3]float64 `json:"position"`
	FocalPoint    [3]float64 `json:"focalPoint"`
	ViewUp        [3]float64 `json:"viewUp"`
	ParallelScale float64    `json:"parallelScale"`
}

// CameraChanged replaces a viewport's camera. It is only published when
// camera sync is enabled.
type CameraChanged struct {
	Camera   Camera `json:"camera"`
	Viewport string `json:"viewport"`
}

func (CameraChanged) Type() string          { return TypeCameraChanged }
func (e CameraChanged) ViewportRef() string { return e.Viewport }

// Envelope is the tagged wire form of every broadcast message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEnvelope wraps a typed payload in its envelope.
func EncodeEnvelope(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

// EncodeInteraction wraps an interaction in its envelope.
func EncodeInteraction(ev Interaction) ([]byte, error) {
	return EncodeEnvelope(ev.Type(), ev)
}

// DecodeInteraction parses an interaction envelope. ok is false for unknown
// types and malformed payloads; callers drop those.
func DecodeInteraction(data []byte) (ev Interaction, ok bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	switch env.Type {
	case TypeFrameChanged:
		var e FrameChanged
		if json.Unmarshal(env.Payload, &e) != nil || e.ImageID == "" || e.Viewport == "" {
			return nil, false
		}
		return e, true
	case TypeVOIChanged:
		var e VOIChanged
		if json.Unmarshal(env.Payload, &e) != nil || e.Viewport == "" {
			return nil, false
		}
		return e, true
	case TypePointerChanged:
		var e PointerChanged
		if json.Unmarshal(env.Payload, &e) != nil || e.Viewport == "" {
			return nil, false
		}
		return e, true
	case TypeCameraChanged:
		var e CameraChanged
		if json.Unmarshal(env.Payload, &e) != nil || e.Viewport == "" {
			return nil, false
		}
		return e, true
	}
	return nil, false
}

// DecodeShareChanged parses a share-changed envelope.
func DecodeShareChanged(data []byte) (ShareChanged, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != TypeShareChanged {
		return ShareChanged{}, false
	}
	var m ShareChanged
	if err := json.Unmarshal(env.Payload, &m); err != nil || m.By == "" {
		return ShareChanged{}, false
	}
	return m, true
}
