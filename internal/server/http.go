package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *RegistryServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleShare)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleLookup)
	mux.HandleFunc("HEAD /v1/sessions/{id}", s.handleExists)
	mux.HandleFunc("PATCH /v1/sessions/{id}", s.handleUpdate)
	mux.HandleFunc("POST /v1/sessions/{id}/transfer", s.handleTransfer)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEventStream)
	mux.HandleFunc("GET /v1/owners/{owner}/session", s.handleFindByOwner)
	mux.HandleFunc("DELETE /v1/owners/{owner}/session", s.handleClear)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	if s.Gateway != nil {
		mux.Handle("GET /v1/sessions/{id}/ws", s.Gateway)
	}
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *RegistryServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeRegistryError writes err with the status it maps to.
func (s *RegistryServer) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("http: registry operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err.Error())
}
