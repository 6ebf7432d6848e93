package viewport

import (
	"fmt"
	"sync"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Stack is an in-memory image-stack viewport. It fires its signals the way a
// rendering engine would: on every image change, properties change and
// camera change, whoever caused it.
type Stack struct {
	mu      sync.Mutex
	ref     string
	ids     []string
	index   int
	props   Properties
	camera  model.Camera
	renders int

	nextID     int
	imageSubs  map[int]func(string)
	voiSubs    map[int]func(VOIEvent)
	cameraSubs map[int]func(model.Camera)
}

// Compile-time check that Stack implements Viewport.
var _ Viewport = (*Stack)(nil)

// NewStack returns a viewport showing the first of ids.
func NewStack(ref string, ids []string, voi VOIRange) *Stack {
	return &Stack{
		ref:        ref,
		ids:        append([]string(nil), ids...),
		props:      Properties{VOIRange: voi},
		imageSubs:  make(map[int]func(string)),
		voiSubs:    make(map[int]func(VOIEvent)),
		cameraSubs: make(map[int]func(model.Camera)),
	}
}

func (s *Stack) Ref() string { return s.ref }

func (s *Stack) CurrentImageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 || s.index >= len(s.ids) {
		return ""
	}
	return s.ids[s.index]
}

func (s *Stack) ImageIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Load appends image ids to the stack, as a prefetcher would.
func (s *Stack) Load(ids ...string) {
	s.mu.Lock()
	s.ids = append(s.ids, ids...)
	s.mu.Unlock()
}

func (s *Stack) SetImageIDIndex(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.ids) {
		s.mu.Unlock()
		return fmt.Errorf("image index %d out of range [0,%d)", i, len(s.ids))
	}
	s.index = i
	id := s.ids[i]
	subs := collect(s.imageSubs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
	return nil
}

// Scroll moves delta images through the stack, clamped to its bounds, as a
// local user would.
func (s *Stack) Scroll(delta int) error {
	s.mu.Lock()
	i := s.index + delta
	if i < 0 {
		i = 0
	}
	if i >= len(s.ids) {
		i = len(s.ids) - 1
	}
	s.mu.Unlock()
	return s.SetImageIDIndex(i)
}

func (s *Stack) Properties() Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

func (s *Stack) SetProperties(p Properties) {
	s.mu.Lock()
	s.props = p
	subs := collect(s.voiSubs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(VOIEvent{Range: p.VOIRange, External: p.External})
	}
}

// SetWindow applies a local window/level edit.
func (s *Stack) SetWindow(width, center float64) {
	p := s.Properties()
	p.VOIRange = FromWindow(width, center)
	p.External = false
	s.SetProperties(p)
}

func (s *Stack) Camera() model.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

func (s *Stack) SetCamera(c model.Camera) {
	s.mu.Lock()
	s.camera = c
	subs := collect(s.cameraSubs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

func (s *Stack) Render() {
	s.mu.Lock()
	s.renders++
	s.mu.Unlock()
}

// Renders returns how many times Render was called.
func (s *Stack) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// Listeners returns the number of attached signal listeners.
func (s *Stack) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.imageSubs) + len(s.voiSubs) + len(s.cameraSubs)
}

func (s *Stack) OnNewImage(fn func(string)) func() {
	return subscribe(&s.mu, &s.nextID, s.imageSubs, fn)
}

func (s *Stack) OnVOIModified(fn func(VOIEvent)) func() {
	return subscribe(&s.mu, &s.nextID, s.voiSubs, fn)
}

func (s *Stack) OnCameraModified(fn func(model.Camera)) func() {
	return subscribe(&s.mu, &s.nextID, s.cameraSubs, fn)
}

func subscribe[T any](mu *sync.Mutex, next *int, subs map[int]T, fn T) func() {
	mu.Lock()
	id := *next
	*next++
	subs[id] = fn
	mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			delete(subs, id)
			mu.Unlock()
		})
	}
}

func collect[T any](subs map[int]T) []T {
	out := make([]T, 0, len(subs))
	for _, fn := range subs {
		out = append(out, fn)
	}
	return out
}

// Grid is a fixed display grid of viewports.
type Grid struct {
	cells []Viewport
}

// Compile-time check that Grid implements Renderer.
var _ Renderer = (*Grid)(nil)

// NewGrid returns a grid over cells in index order.
func NewGrid(cells ...Viewport) *Grid {
	return &Grid{cells: cells}
}

func (g *Grid) Viewports() []Viewport {
	return append([]Viewport(nil), g.cells...)
}
