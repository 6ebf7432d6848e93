// Package replicate mirrors the controller's viewport interactions onto every
// other participant.
//
// The capture side listens to the local rendering engine while the local
// user is the controller and turns its signals into interaction messages.
// The apply side maps received messages back onto local viewports. Both are
// driven from the session coordinator's loop.
package replicate

import (
	"log/slog"
	"slices"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/viewport"
)

// ToolPointer is the tool whose motion is replicated as a pointer.
const ToolPointer = "Pointer"

// Config tunes capture.
type Config struct {
	// VOIRate caps window/level messages per second. Default: 10.
	VOIRate float64
	// PointerRate caps pointer messages per second. Default: 20.
	PointerRate float64
	// CameraSync enables camera replication. Off by default.
	CameraSync bool
	// CameraDebounce is the quiet period before a camera change is sent.
	// Default: 150ms.
	CameraDebounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.VOIRate <= 0 {
		c.VOIRate = 10
	}
	if c.PointerRate <= 0 {
		c.PointerRate = 20
	}
	if c.CameraDebounce <= 0 {
		c.CameraDebounce = 150 * time.Millisecond
	}
	return c
}

// Replicator is not safe for concurrent use. Renderer signals and debounce
// timers are routed through Dispatch so that all state changes happen on the
// caller's goroutine.
type Replicator struct {
	renderer viewport.Renderer
	publish  func(model.Interaction)
	pointer  *PointerStore
	cfg      Config
	logger   *slog.Logger

	// Dispatch runs fn on the coordinator's goroutine. The default runs it
	// inline.
	Dispatch func(fn func())

	voiGate     *Gate
	pointerGate *Gate
	cameras     map[string]*Debouncer

	capturing   bool
	applying    bool
	tool        string
	lastPointer string
	offs        []func()
	// applied remembers the image each viewport was last moved to by Apply,
	// so the resulting new-image signal is not captured again.
	applied map[string]string
}

// New returns a replicator over renderer. publish sends a captured
// interaction; pointer receives applied pointer positions.
func New(renderer viewport.Renderer, publish func(model.Interaction), pointer *PointerStore, cfg Config, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	if pointer == nil {
		pointer = &PointerStore{}
	}
	cfg = cfg.withDefaults()
	return &Replicator{
		renderer:    renderer,
		publish:     publish,
		pointer:     pointer,
		cfg:         cfg,
		logger:      logger,
		Dispatch:    func(fn func()) { fn() },
		voiGate:     NewGate(cfg.VOIRate),
		pointerGate: NewGate(cfg.PointerRate),
		cameras:     make(map[string]*Debouncer),
		applied:     make(map[string]string),
	}
}

// SetClock overrides the clock used by the rate gates.
func (r *Replicator) SetClock(now func() time.Time) {
	r.voiGate.now = now
	r.pointerGate.now = now
}

// Pointer returns the store applied pointer positions land in.
func (r *Replicator) Pointer() *PointerStore { return r.pointer }

// Capturing reports whether capture listeners are attached.
func (r *Replicator) Capturing() bool { return r.capturing }

// Applying reports whether received interactions are applied.
func (r *Replicator) Applying() bool { return r.applying }

// Tool returns the selected tool.
func (r *Replicator) Tool() string { return r.tool }

// StartCapture attaches capture listeners to every viewport and publishes a
// snapshot so followers line up with the new controller at once.
func (r *Replicator) StartCapture() {
	if r.capturing {
		return
	}
	r.AttachCapture()
	r.Snapshot()
}

// AttachCapture attaches capture listeners without publishing a snapshot.
func (r *Replicator) AttachCapture() {
	if r.capturing {
		return
	}
	r.capturing = true
	clear(r.applied)

	vps := r.renderer.Viewports()
	for _, vp := range vps {
		r.attach(vp)
	}
	r.logger.Debug("replicate: capture started", "viewports", len(vps))
}

// Snapshot publishes the current frame and window/level of every viewport in
// index order. It does nothing unless capturing.
func (r *Replicator) Snapshot() {
	if !r.capturing {
		return
	}
	for _, vp := range r.renderer.Viewports() {
		if id := vp.CurrentImageID(); id != "" {
			r.publish(model.FrameChanged{ImageID: id, Viewport: vp.Ref()})
		}
		ww, wc := vp.Properties().VOIRange.Window()
		r.publish(model.VOIChanged{WindowWidth: ww, WindowCenter: wc, Viewport: vp.Ref()})
	}
}

func (r *Replicator) attach(vp viewport.Viewport) {
	ref := vp.Ref()
	r.offs = append(r.offs,
		vp.OnNewImage(func(imageID string) {
			r.Dispatch(func() { r.captureFrame(ref, imageID) })
		}),
		vp.OnVOIModified(func(ev viewport.VOIEvent) {
			r.Dispatch(func() { r.captureVOI(ref, ev) })
		}),
	)
	if r.cfg.CameraSync {
		d := NewDebouncer(r.cfg.CameraDebounce)
		r.cameras[ref] = d
		r.offs = append(r.offs, vp.OnCameraModified(func(c model.Camera) {
			d.Trigger(func() {
				r.Dispatch(func() { r.captureCamera(ref, c) })
			})
		}))
	}
}

// StopCapture detaches every capture listener. Safe to call when not
// capturing.
func (r *Replicator) StopCapture() {
	if !r.capturing {
		return
	}
	r.capturing = false
	for _, off := range r.offs {
		off()
	}
	r.offs = nil
	for ref, d := range r.cameras {
		d.Stop()
		delete(r.cameras, ref)
	}
	r.logger.Debug("replicate: capture stopped")
}

func (r *Replicator) captureFrame(ref, imageID string) {
	if !r.capturing {
		return
	}
	if expected, ok := r.applied[ref]; ok {
		// Only the very next signal may be the echo of an applied frame.
		delete(r.applied, ref)
		if expected == imageID {
			return
		}
	}
	r.publish(model.FrameChanged{ImageID: imageID, Viewport: ref})
}

func (r *Replicator) captureVOI(ref string, ev viewport.VOIEvent) {
	if !r.capturing || ev.External {
		return
	}
	if !r.voiGate.Allow() {
		return
	}
	ww, wc := ev.Range.Window()
	r.publish(model.VOIChanged{WindowWidth: ww, WindowCenter: wc, Viewport: ref})
}

func (r *Replicator) captureCamera(ref string, c model.Camera) {
	if !r.capturing {
		return
	}
	r.publish(model.CameraChanged{Camera: c, Viewport: ref})
}

// SelectTool records the active tool. Leaving the pointer tool while
// capturing publishes the off-canvas sentinel once.
func (r *Replicator) SelectTool(tool string) {
	prev := r.tool
	r.tool = tool
	if !r.capturing || prev != ToolPointer || tool == ToolPointer {
		return
	}
	ref := r.lastPointer
	if ref == "" {
		if vps := r.renderer.Viewports(); len(vps) > 0 {
			ref = vps[0].Ref()
		}
	}
	r.publish(model.PointerChanged{X: Offscreen, Y: Offscreen, Z: Offscreen, Viewport: ref})
}

// CapturePointer handles local pointer motion over a viewport. It is
// published only while capturing with the pointer tool selected, and at
// most PointerRate times per second.
func (r *Replicator) CapturePointer(ref string, x, y, z float64) bool {
	if !r.capturing || r.tool != ToolPointer {
		return false
	}
	if !r.pointerGate.Allow() {
		return false
	}
	r.lastPointer = ref
	r.publish(model.PointerChanged{X: x, Y: y, Z: z, Viewport: ref})
	return true
}

// EnableApply starts applying received interactions.
func (r *Replicator) EnableApply() { r.applying = true }

// DisableApply stops applying received interactions and forgets the remote
// pointer.
func (r *Replicator) DisableApply() {
	r.applying = false
	r.pointer.Clear()
}

// Apply maps a received interaction onto the local viewports. It reports
// whether anything changed. Messages for unknown viewports or images not in
// the local stack are ignored.
func (r *Replicator) Apply(ev model.Interaction) bool {
	if !r.applying {
		return false
	}
	if p, ok := ev.(model.PointerChanged); ok {
		r.pointer.Set(p)
		return true
	}

	vp, ok := viewport.Find(r.renderer, ev.ViewportRef())
	if !ok {
		r.logger.Debug("replicate: unknown viewport", "viewport", ev.ViewportRef(), "type", ev.Type())
		return false
	}

	switch e := ev.(type) {
	case model.FrameChanged:
		return r.applyFrame(vp, e)
	case model.VOIChanged:
		props := vp.Properties()
		props.VOIRange = viewport.FromWindow(e.WindowWidth, e.WindowCenter)
		props.External = true
		vp.SetProperties(props)
		vp.Render()
		return true
	case model.CameraChanged:
		vp.SetCamera(e.Camera)
		vp.Render()
		return true
	}
	return false
}

func (r *Replicator) applyFrame(vp viewport.Viewport, e model.FrameChanged) bool {
	if vp.CurrentImageID() == e.ImageID {
		return false
	}
	idx := slices.Index(vp.ImageIDs(), e.ImageID)
	if idx < 0 {
		r.logger.Debug("replicate: image not in local stack",
			"viewport", vp.Ref(),
			"image_id", e.ImageID)
		return false
	}
	if r.capturing {
		r.applied[vp.Ref()] = e.ImageID
	}
	if err := vp.SetImageIDIndex(idx); err != nil {
		delete(r.applied, vp.Ref())
		r.logger.Warn("replicate: setting image index", "viewport", vp.Ref(), "error", err)
		return false
	}
	vp.Render()
	return true
}

// Reset detaches capture, disables apply and forgets all per-session state.
func (r *Replicator) Reset() {
	r.StopCapture()
	r.DisableApply()
	r.lastPointer = ""
	clear(r.applied)
}
