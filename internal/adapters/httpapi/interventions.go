package httpapi

import (
	"arboria/pkg/domain"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type interventionRequest struct {
	TreeID string `json:"tree_id"`
	Type   string `json:"type"`
	Notes  string `json:"notes"`
	Date   string `json:"date"`
}

// parseWhen accepts RFC 3339 timestamps and plain YYYY-MM-DD dates. Empty
// input yields nil so the service applies its default.
func parseWhen(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, domain.InputError{Field: "date", Reason: "expected RFC 3339 or YYYY-MM-DD"}
	}
	return &d.Time, nil
}

func (s *Server) listInterventions(w http.ResponseWriter, r *http.Request) {
	var (
		list []domain.Intervention
		err  error
	)
	if treeID := r.URL.Query().Get("tree_id"); treeID != "" {
		list, err = s.svc.ListInterventions(r.Context(), treeID)
	} else {
		list, err = s.svc.ListAllInterventions(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) appendIntervention(w http.ResponseWriter, r *http.Request) {
	var req interventionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	typ, err := domain.ParseInterventionType(req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	when, err := parseWhen(req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	iv, err := s.svc.AppendIntervention(r.Context(), req.TreeID, typ, req.Notes, when)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (s *Server) getIntervention(w http.ResponseWriter, r *http.Request) {
	iv, err := s.svc.GetIntervention(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) removeIntervention(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveIntervention(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "intervention deleted"})
}
