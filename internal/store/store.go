package store

import (
	"context"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// Store defines the persistence interface for session rows. Each owner has
// at most one row; several rows may share a session id only transiently.
// Missing rows are reported as model.ErrNotFound.
type Store interface {
	// Session rows
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	GetSessionByOwner(ctx context.Context, ownerUserID string) (*model.Session, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)
	InsertSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error
	DeleteSessionByOwner(ctx context.Context, ownerUserID string) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
