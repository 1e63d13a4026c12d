package httpapi

import (
	"arboria/internal/core"
	"arboria/pkg/domain"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type importResponse struct {
	Message  string            `json:"message"`
	Imported core.ImportResult `json:"imported"`
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.ComputeStatistics(r.Context(), chi.URLParam(r, "farmID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) exportState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.ExportState(r.Context(), r.URL.Query().Get("farm_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// decodeDocument treats any decoding failure as an invalid document.
func decodeDocument(r *http.Request) (domain.Document, error) {
	var doc domain.Document
	if err := decodeJSON(r, &doc); err != nil {
		return doc, domain.DocumentError{Problems: []string{err.Error()}}
	}
	return doc, nil
}

func (s *Server) importState(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.svc.ImportState(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Message: "import completed", Imported: result})
}

func (s *Server) validateDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.ValidateDocument(doc))
}
