package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// shareInput is the body of POST /v1/sessions.
type shareInput struct {
	SessionID   string           `json:"sessionId"`
	OwnerUserID string           `json:"ownerUserId"`
	Mode        model.Mode       `json:"mode"`
	Visibility  model.Visibility `json:"visibility"`
	ViewState   string           `json:"urlEncodedViewState"`
}

// updateInput is the body of PATCH /v1/sessions/{id}. Empty fields keep
// their current value; ViewState is a pointer so it can be cleared.
type updateInput struct {
	OwnerUserID string           `json:"ownerUserId"`
	Mode        model.Mode       `json:"mode,omitempty"`
	Visibility  model.Visibility `json:"visibility,omitempty"`
	ViewState   *string          `json:"urlEncodedViewState,omitempty"`
}

type transferInput struct {
	OwnerUserID string `json:"ownerUserId"`
}

// handleShare handles POST /v1/sessions.
func (s *RegistryServer) handleShare(w http.ResponseWriter, r *http.Request) {
	var in shareInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := s.registry.Share(r.Context(), &model.Session{
		ID:          in.SessionID,
		OwnerUserID: in.OwnerUserID,
		Mode:        in.Mode,
		Visibility:  in.Visibility,
		ViewState:   in.ViewState,
	})
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// handleListSessions handles GET /v1/sessions.
func (s *RegistryServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.SessionFilter{
		OwnerUserID: q.Get("owner"),
		Visibility:  model.Visibility(q.Get("visibility")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if filter.Visibility != "" && !filter.Visibility.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid visibility")
		return
	}

	rows, err := s.registry.List(r.Context(), filter)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	if rows == nil {
		rows = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": rows})
}

// handleLookup handles GET /v1/sessions/{id}.
func (s *RegistryServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	row, err := s.registry.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleExists handles HEAD /v1/sessions/{id}.
func (s *RegistryServer) handleExists(w http.ResponseWriter, r *http.Request) {
	ok, err := s.registry.Exists(r.Context(), r.PathValue("id"))
	switch {
	case err != nil:
		s.logger.Error("http: exists check failed", "session_id", r.PathValue("id"), "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleFindByOwner handles GET /v1/owners/{owner}/session.
func (s *RegistryServer) handleFindByOwner(w http.ResponseWriter, r *http.Request) {
	row, err := s.registry.FindByOwner(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleUpdate handles PATCH /v1/sessions/{id}.
func (s *RegistryServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in updateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.OwnerUserID == "" {
		writeError(w, http.StatusBadRequest, "ownerUserId is required")
		return
	}

	current, err := s.registry.FindByOwner(r.Context(), in.OwnerUserID)
	if err == nil && current.ID != r.PathValue("id") {
		err = model.ErrNotFound
	}
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}

	next := *current
	if in.Mode != "" {
		next.Mode = in.Mode
	}
	if in.Visibility != "" {
		next.Visibility = in.Visibility
	}
	if in.ViewState != nil {
		next.ViewState = *in.ViewState
	}
	row, err := s.registry.Update(r.Context(), &next)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleTransfer handles POST /v1/sessions/{id}/transfer.
func (s *RegistryServer) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in transferInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := s.registry.Transfer(r.Context(), r.PathValue("id"), in.OwnerUserID)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	s.logger.Info("http: session transferred", "session_id", row.ID, "owner", row.OwnerUserID)
	writeJSON(w, http.StatusOK, row)
}

// handleClear handles DELETE /v1/owners/{owner}/session.
func (s *RegistryServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Clear(r.Context(), r.PathValue("owner")); err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
