// Package memory implements store.Store in process memory. It backs tests
// and single-process runs without a database; OnChange stands in for the
// database's row-change trigger.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/store"
)

// Store keeps session rows keyed by owner.
type Store struct {
	mu   sync.Mutex
	rows map[string]*model.Session

	// OnChange, if set, receives every committed row change.
	OnChange func(model.RowChange)
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{rows: make(map[string]*model.Session)}
}

// view applies operations to rows and records the changes they make. The
// caller holds the lock.
type view struct {
	s       *Store
	changes []model.RowChange
}

func (s *Store) run(fn func(v *view) error) error {
	s.mu.Lock()
	backup := make(map[string]*model.Session, len(s.rows))
	for k, v := range s.rows {
		backup[k] = v
	}
	v := &view{s: s}
	err := fn(v)
	if err != nil {
		s.rows = backup
		v.changes = nil
	}
	s.mu.Unlock()

	if s.OnChange != nil {
		for _, c := range v.changes {
			s.OnChange(c)
		}
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var out *model.Session
	err := s.run(func(v *view) (err error) { out, err = v.GetSession(ctx, id); return })
	return out, err
}

func (s *Store) GetSessionByOwner(ctx context.Context, owner string) (*model.Session, error) {
	var out *model.Session
	err := s.run(func(v *view) (err error) { out, err = v.GetSessionByOwner(ctx, owner); return })
	return out, err
}

func (s *Store) SessionExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.run(func(v *view) (err error) { ok, err = v.SessionExists(ctx, id); return })
	return ok, err
}

func (s *Store) ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	var out []*model.Session
	err := s.run(func(v *view) (err error) { out, err = v.ListSessions(ctx, filter); return })
	return out, err
}

func (s *Store) InsertSession(ctx context.Context, row *model.Session) error {
	return s.run(func(v *view) error { return v.InsertSession(ctx, row) })
}

func (s *Store) UpdateSession(ctx context.Context, row *model.Session) error {
	return s.run(func(v *view) error { return v.UpdateSession(ctx, row) })
}

func (s *Store) DeleteSessionByOwner(ctx context.Context, owner string) error {
	return s.run(func(v *view) error { return v.DeleteSessionByOwner(ctx, owner) })
}

// RunInTransaction runs fn with the store locked; an error rolls back every
// change fn made and suppresses their notifications.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return s.run(func(v *view) error { return fn(v) })
}

func (s *Store) Close() error { return nil }

// Compile-time check that view implements store.Store.
var _ store.Store = (*view)(nil)

func (v *view) GetSession(_ context.Context, id string) (*model.Session, error) {
	var found *model.Session
	for _, row := range v.s.rows {
		if row.ID == id && (found == nil || row.UpdatedAt.After(found.UpdatedAt)) {
			found = row
		}
	}
	if found == nil {
		return nil, model.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (v *view) GetSessionByOwner(_ context.Context, owner string) (*model.Session, error) {
	row, ok := v.s.rows[owner]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (v *view) SessionExists(ctx context.Context, id string) (bool, error) {
	_, err := v.GetSession(ctx, id)
	return err == nil, nil
}

func (v *view) ListSessions(_ context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	var out []*model.Session
	for _, row := range v.s.rows {
		if filter.OwnerUserID != "" && row.OwnerUserID != filter.OwnerUserID {
			continue
		}
		if filter.Visibility != "" && row.Visibility != filter.Visibility {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].OwnerUserID < out[j].OwnerUserID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (v *view) InsertSession(_ context.Context, row *model.Session) error {
	if _, ok := v.s.rows[row.OwnerUserID]; ok {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "ownerUserId", Message: "already shares a session"}}}
	}
	cp := *row
	v.s.rows[row.OwnerUserID] = &cp
	out := cp
	v.changes = append(v.changes, model.RowChange{EventType: model.RowInsert, New: &out})
	return nil
}

func (v *view) UpdateSession(_ context.Context, row *model.Session) error {
	old, ok := v.s.rows[row.OwnerUserID]
	if !ok || old.ID != row.ID {
		return model.ErrNotFound
	}
	next := *old
	next.Mode = row.Mode
	next.Visibility = row.Visibility
	next.ViewState = row.ViewState
	next.UpdatedAt = row.UpdatedAt
	v.s.rows[row.OwnerUserID] = &next
	out := next
	v.changes = append(v.changes, model.RowChange{EventType: model.RowUpdate, Old: old, New: &out})
	return nil
}

func (v *view) DeleteSessionByOwner(_ context.Context, owner string) error {
	old, ok := v.s.rows[owner]
	if !ok {
		return model.ErrNotFound
	}
	delete(v.s.rows, owner)
	v.changes = append(v.changes, model.RowChange{EventType: model.RowDelete, Old: old})
	return nil
}

// RunInTransaction inside a transaction reuses it.
func (v *view) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(v)
}

func (v *view) Close() error { return nil }
