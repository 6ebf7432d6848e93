package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSession scans a single row into a model.Session.
// The row must contain columns in the order defined by sessionColumns.
func scanSession(row scannable) (*model.Session, error) {
	var s model.Session
	var viewState sql.NullString

	err := row.Scan(
		&s.ID,
		&s.OwnerUserID,
		&s.Mode,
		&s.Visibility,
		&viewState,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ViewState = viewState.String
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*model.Session, error) {
	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
