// Package server exposes the session registry over HTTP/JSON and gRPC and
// streams session traffic to browsers.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/store"
)

// RegistryServer serves registry operations backed by a store.Registry.
type RegistryServer struct {
	registry *store.Registry
	bus      events.Bus
	logger   *slog.Logger

	// Gateway, if set, serves GET /v1/sessions/{id}/ws.
	Gateway http.Handler
}

// NewRegistryServer returns a server for reg. bus may be nil, in which case
// the session event stream is unavailable.
func NewRegistryServer(reg *store.Registry, bus events.Bus, logger *slog.Logger) *RegistryServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryServer{registry: reg, bus: bus, logger: logger}
}

// httpStatus maps a registry error to an HTTP status code.
func httpStatus(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// grpcError maps a registry error to a gRPC status error.
func grpcError(err error) error {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
