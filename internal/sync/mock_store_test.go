package sync

import (
	"context"
	"sync"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/store"
)

// mockStore is a minimal in-memory store for sync tests. Only listing and
// inserting are exercised.
type mockStore struct {
	mu      sync.Mutex
	rows    []*model.Session
	listErr error
}

var _ store.Store = (*mockStore)(nil)

func newMockStore(rows ...*model.Session) *mockStore {
	return &mockStore{rows: rows}
}

func (m *mockStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *mockStore) GetSessionByOwner(_ context.Context, owner string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OwnerUserID == owner {
			return r, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *mockStore) SessionExists(ctx context.Context, id string) (bool, error) {
	_, err := m.GetSession(ctx, id)
	return err == nil, nil
}

func (m *mockStore) ListSessions(_ context.Context, _ model.SessionFilter) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]*model.Session(nil), m.rows...), nil
}

func (m *mockStore) InsertSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, s)
	return nil
}

func (m *mockStore) UpdateSession(_ context.Context, _ *model.Session) error { return nil }

func (m *mockStore) DeleteSessionByOwner(_ context.Context, _ string) error { return nil }

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }
