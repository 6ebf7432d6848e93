// Package postgres implements store.Store on PostgreSQL. Rows live in the
// sessions table, one per owner; a trigger installed by the migrations
// notifies NotifyChannel on every change.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NotifyChannel is the LISTEN channel the sessions trigger notifies on.
const NotifyChannel = "viewshare_sessions"

// Pool sizing. The registry sees short point queries, so a small pool
// suffices even for many participants.
const (
	maxOpenConns    = 10
	maxIdleConns    = 4
	connMaxLifetime = 5 * time.Minute
)

// rows runs the session queries against a pool or a transaction.
type rows struct {
	q executor
}

func (r rows) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return queryGetSession(ctx, r.q, sessionID)
}

func (r rows) GetSessionByOwner(ctx context.Context, ownerUserID string) (*model.Session, error) {
	return queryGetSessionByOwner(ctx, r.q, ownerUserID)
}

func (r rows) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return querySessionExists(ctx, r.q, sessionID)
}

func (r rows) ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	return queryListSessions(ctx, r.q, filter)
}

func (r rows) InsertSession(ctx context.Context, s *model.Session) error {
	return queryInsertSession(ctx, r.q, s)
}

func (r rows) UpdateSession(ctx context.Context, s *model.Session) error {
	return queryUpdateSession(ctx, r.q, s)
}

func (r rows) DeleteSessionByOwner(ctx context.Context, ownerUserID string) error {
	return queryDeleteSessionByOwner(ctx, r.q, ownerUserID)
}

// PostgresStore is the pooled store.
type PostgresStore struct {
	rows
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

// New connects to databaseURL, sizes the pool and applies pending
// migrations.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database without touching its schema.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{rows: rows{q: db}, db: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunInTransaction runs fn against one transaction, committing when fn
// returns nil. The trigger's notifications are delivered on commit, so
// listeners never see a half-applied ownership swap.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txStore{rows{q: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the store seen inside RunInTransaction.
type txStore struct {
	rows
}

var _ store.Store = txStore{}

// RunInTransaction joins the enclosing transaction.
func (t txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

// Close is a no-op; the enclosing store owns the connection.
func (txStore) Close() error { return nil }
