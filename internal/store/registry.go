package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/idgen"
	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Registry implements the session registry operations on top of a Store:
// validation, id assignment and the delete-then-insert ownership rules.
type Registry struct {
	store Store
	newID func() (string, error)
	now   func() time.Time
}

// NewRegistry returns a registry over s.
func NewRegistry(s Store) *Registry {
	return &Registry{
		store: s,
		newID: idgen.Generate,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns the row for a session.
func (r *Registry) Lookup(ctx context.Context, sessionID string) (*model.Session, error) {
	return r.store.GetSession(ctx, sessionID)
}

// FindByOwner returns the session an owner currently shares.
func (r *Registry) FindByOwner(ctx context.Context, ownerUserID string) (*model.Session, error) {
	return r.store.GetSessionByOwner(ctx, ownerUserID)
}

// Exists reports whether any row is left for a session.
func (r *Registry) Exists(ctx context.Context, sessionID string) (bool, error) {
	return r.store.SessionExists(ctx, sessionID)
}

// List returns sessions matching filter.
func (r *Registry) List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	return r.store.ListSessions(ctx, filter)
}

// Share replaces the owner's row with s in one transaction. An empty id is
// assigned; an id that another owner's row already uses is rejected.
func (r *Registry) Share(ctx context.Context, s *model.Session) (*model.Session, error) {
	row := *s
	if row.ID == "" {
		id, err := r.newID()
		if err != nil {
			return nil, err
		}
		row.ID = id
	}
	if row.Visibility == "" {
		row.Visibility = model.VisibilityPublic
	}
	now := r.now()
	row.CreatedAt = now
	row.UpdatedAt = now
	if err := model.ValidateSession(&row); err != nil {
		return nil, err
	}

	err := r.store.RunInTransaction(ctx, func(tx Store) error {
		existing, err := tx.GetSession(ctx, row.ID)
		switch {
		case err == nil && existing.OwnerUserID != row.OwnerUserID:
			return &model.ValidationError{Errors: []model.FieldError{{
				Field:   "sessionId",
				Message: fmt.Sprintf("is owned by %s", existing.OwnerUserID),
			}}}
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return fmt.Errorf("checking session id: %w", err)
		}
		if err := tx.DeleteSessionByOwner(ctx, row.OwnerUserID); err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("deleting previous session: %w", err)
		}
		if err := tx.InsertSession(ctx, &row); err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Update rewrites the mode, visibility and view state of the owner's row.
func (r *Registry) Update(ctx context.Context, s *model.Session) (*model.Session, error) {
	row := *s
	row.UpdatedAt = r.now()
	if err := model.ValidateSession(&row); err != nil {
		return nil, err
	}
	if err := r.store.UpdateSession(ctx, &row); err != nil {
		return nil, err
	}
	return r.store.GetSessionByOwner(ctx, row.OwnerUserID)
}

// Clear deletes the owner's row.
func (r *Registry) Clear(ctx context.Context, ownerUserID string) error {
	if strings.TrimSpace(ownerUserID) == "" {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "ownerUserId", Message: "is required"}}}
	}
	return r.store.DeleteSessionByOwner(ctx, ownerUserID)
}

// Transfer hands a session to newOwner: the current row is deleted and a new
// one inserted under the same session id, in one transaction, so watchers
// that re-check after the delete still find the session.
func (r *Registry) Transfer(ctx context.Context, sessionID, newOwner string) (*model.Session, error) {
	if strings.TrimSpace(newOwner) == "" {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "ownerUserId", Message: "is required"}}}
	}

	var row model.Session
	err := r.store.RunInTransaction(ctx, func(tx Store) error {
		current, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.OwnerUserID == newOwner {
			row = *current
			return nil
		}
		if err := tx.DeleteSessionByOwner(ctx, current.OwnerUserID); err != nil {
			return fmt.Errorf("deleting current owner row: %w", err)
		}
		if err := tx.DeleteSessionByOwner(ctx, newOwner); err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("deleting new owner's previous session: %w", err)
		}
		row = *current
		row.OwnerUserID = newOwner
		row.CreatedAt = r.now()
		row.UpdatedAt = row.CreatedAt
		return tx.InsertSession(ctx, &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}
