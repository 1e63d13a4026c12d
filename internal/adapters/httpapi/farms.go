package httpapi

import (
	"arboria/internal/adapters/archive"
	"arboria/internal/core"
	"arboria/pkg/domain"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type farmRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	GridRows    int              `json:"grid_rows"`
	GridCols    int              `json:"grid_cols"`
	GPS         *domain.GeoPoint `json:"gps_coords"`
}

type farmUpdateRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	GPS         *domain.GeoPoint `json:"gps_coords"`
	GridRows    *int             `json:"grid_rows"`
	GridCols    *int             `json:"grid_cols"`
}

func (s *Server) listFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.svc.ListFarms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farms)
}

func (s *Server) createFarm(w http.ResponseWriter, r *http.Request) {
	var req farmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	farm, err := s.svc.CreateFarm(r.Context(), core.FarmInput{
		Name:        req.Name,
		Description: req.Description,
		GridRows:    req.GridRows,
		GridCols:    req.GridCols,
		GPS:         req.GPS,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, farm)
}

func (s *Server) getFarm(w http.ResponseWriter, r *http.Request) {
	farm, err := s.svc.GetFarm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

func (s *Server) updateFarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req farmUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.GridRows != nil || req.GridCols != nil {
		current, err := s.svc.GetFarm(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if (req.GridRows != nil && *req.GridRows != current.GridRows) || (req.GridCols != nil && *req.GridCols != current.GridCols) {
			s.writeError(w, r, domain.InputError{Field: "grid", Reason: "grid dimensions cannot change after creation"})
			return
		}
	}
	farm, err := s.svc.UpdateFarm(r.Context(), id, core.FarmPatch{Name: req.Name, Description: req.Description, GPS: req.GPS})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

func (s *Server) deleteFarm(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteFarm(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "farm and its trees deleted"})
}

func (s *Server) farmGrid(w http.ResponseWriter, r *http.Request) {
	grid, err := s.svc.FarmGrid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) farmGeoJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.ExportState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := archive.TreesGeoJSON(doc).MarshalJSON()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
