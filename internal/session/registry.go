package session

import (
	"context"
	"sync"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Registry is the persisted session store as a participant sees it. Lookups
// of missing rows return model.ErrNotFound.
type Registry interface {
	Lookup(ctx context.Context, sessionID string) (*model.Session, error)
	FindByOwner(ctx context.Context, ownerUserID string) (*model.Session, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Share creates or replaces the owner's row. An empty ID is assigned.
	Share(ctx context.Context, s *model.Session) (*model.Session, error)
	// Update rewrites mode, visibility and view state of the owner's row.
	Update(ctx context.Context, s *model.Session) (*model.Session, error)
	Clear(ctx context.Context, ownerUserID string) error
}

// ViewHost is the application state a session binds to.
type ViewHost interface {
	ViewState() model.ViewState
	ReplaceViewState(model.ViewState)
}

// MemoryView is a ViewHost holding the view state in memory.
type MemoryView struct {
	mu       sync.Mutex
	state    model.ViewState
	replaced int
	onChange func(model.ViewState)
}

// NewMemoryView returns a view host starting at state. onChange, if set, is
// called after every replacement.
func NewMemoryView(state model.ViewState, onChange func(model.ViewState)) *MemoryView {
	return &MemoryView{state: state.Clone(), onChange: onChange}
}

func (v *MemoryView) ViewState() model.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Clone()
}

func (v *MemoryView) ReplaceViewState(state model.ViewState) {
	v.mu.Lock()
	v.state = state.Clone()
	v.replaced++
	v.mu.Unlock()
	if v.onChange != nil {
		v.onChange(state)
	}
}

// Replaced returns how many times the state was replaced.
func (v *MemoryView) Replaced() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.replaced
}
