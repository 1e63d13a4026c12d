package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listArchives(w http.ResponseWriter, r *http.Request) {
	records, err := s.archives.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) createArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := s.archives.Archive(r.Context(), r.URL.Query().Get("farm_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := s.archives.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) restoreArchive(w http.ResponseWriter, r *http.Request) {
	result, err := s.archives.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Message: "archive restored", Imported: result})
}
