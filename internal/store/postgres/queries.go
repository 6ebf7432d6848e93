package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// sessionColumns is the column list used for SELECT statements on the sessions table.
const sessionColumns = `session_id, owner_user_id, mode, visibility, view_state,
	created_at, updated_at`

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to model.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// queryGetSession returns the newest row for a session id. Two rows share an
// id only inside an ownership transfer.
func queryGetSession(ctx context.Context, db executor, sessionID string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE session_id = $1 ORDER BY updated_at DESC LIMIT 1`, sessionID)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func queryGetSessionByOwner(ctx context.Context, db executor, ownerUserID string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE owner_user_id = $1`, ownerUserID)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func querySessionExists(ctx context.Context, db executor, sessionID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)`, sessionID).Scan(&exists)
	return exists, err
}

func queryListSessions(ctx context.Context, db executor, filter model.SessionFilter) ([]*model.Session, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.OwnerUserID != "" {
		whereClauses = append(whereClauses, "owner_user_id = "+nextArg())
		args = append(args, filter.OwnerUserID)
	}
	if filter.Visibility != "" {
		whereClauses = append(whereClauses, "visibility = "+nextArg())
		args = append(args, string(filter.Visibility))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, owner_user_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func queryInsertSession(ctx context.Context, db executor, s *model.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, owner_user_id, mode, visibility, view_state,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID,
		s.OwnerUserID,
		string(s.Mode),
		string(s.Visibility),
		s.ViewState,
		s.CreatedAt,
		s.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "ownerUserId", Message: "already shares a session"}}}
	}
	return err
}

// queryUpdateSession rewrites the mutable columns of the owner's row, which
// must still carry the given session id.
func queryUpdateSession(ctx context.Context, db executor, s *model.Session) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions SET mode = $3, visibility = $4, view_state = $5, updated_at = $6
		WHERE owner_user_id = $1 AND session_id = $2`,
		s.OwnerUserID,
		s.ID,
		string(s.Mode),
		string(s.Visibility),
		s.ViewState,
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func queryDeleteSessionByOwner(ctx context.Context, db executor, ownerUserID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE owner_user_id = $1`, ownerUserID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
