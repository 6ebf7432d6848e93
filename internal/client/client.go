// Package client provides registry clients for participants and the CLI:
// an HTTP/JSON implementation talking to the viewshare REST API and a gRPC
// implementation of the viewshare.v1.Registry service.
package client

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/session"
)

// RegistryClient is the interface that CLI commands and participants use to
// reach the session registry. Missing rows are reported as model.ErrNotFound.
type RegistryClient interface {
	session.Registry

	// Transfer hands a session to another owner under the same id.
	Transfer(ctx context.Context, sessionID, newOwner string) (*model.Session, error)

	// Health reports the server status.
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// APIError is an error response from the HTTP API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps a 404 to model.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == 404 {
		return model.ErrNotFound
	}
	return nil
}
