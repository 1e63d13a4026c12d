package httpapi

import (
	"arboria/internal/core"
	"arboria/pkg/domain"
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type treeRequest struct {
	FarmID    string           `json:"farm_id"`
	Position  string           `json:"position"`
	Species   string           `json:"species"`
	Variety   string           `json:"variety"`
	PlantDate domain.Date      `json:"plant_date"`
	Health    domain.Health    `json:"health"`
	Notes     string           `json:"notes"`
	Photo     *domain.Photo    `json:"photo"`
	Photos    []domain.Photo   `json:"photos"`
	GPS       *domain.GeoPoint `json:"gps_coords"`
	Origin    string           `json:"origin"`
}

// treeUpdateRequest accepts farm_id and position only when they repeat the
// stored values.
type treeUpdateRequest struct {
	FarmID    *string          `json:"farm_id"`
	Position  *string          `json:"position"`
	Species   *string          `json:"species"`
	Variety   *string          `json:"variety"`
	PlantDate *domain.Date     `json:"plant_date"`
	Health    *domain.Health   `json:"health"`
	Notes     *string          `json:"notes"`
	Photos    *[]domain.Photo  `json:"photos"`
	GPS       *domain.GeoPoint `json:"gps_coords"`
	Origin    *string          `json:"origin"`
}

type photoRequest struct {
	Photo *domain.Photo `json:"photo"`
}

type photoResponse struct {
	Message    string `json:"message"`
	PhotoCount int    `json:"photo_count"`
	Index      *int   `json:"index,omitempty"`
}

type syncRequest struct {
	Trees []core.TreeSyncItem `json:"trees"`
}

func (s *Server) listTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := s.svc.ListTrees(r.Context(), r.URL.Query().Get("farm_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trees)
}

func (s *Server) placeTree(w http.ResponseWriter, r *http.Request) {
	var req treeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	photos := req.Photos
	if len(photos) == 0 && req.Photo != nil {
		photos = []domain.Photo{*req.Photo}
	}
	tree, err := s.svc.PlaceTree(r.Context(), req.FarmID, req.Position, core.TreeAttributes{
		Species:   req.Species,
		Variety:   req.Variety,
		PlantDate: req.PlantDate,
		Health:    req.Health,
		Notes:     req.Notes,
		Photos:    photos,
		GPS:       req.GPS,
		Origin:    req.Origin,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tree)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.svc.GetTree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) updateTree(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req treeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FarmID != nil || req.Position != nil {
		current, err := s.svc.GetTree(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.FarmID != nil && *req.FarmID != current.FarmID {
			s.writeError(w, r, domain.InputError{Field: "farm_id", Reason: "a tree cannot move to another farm; duplicate it instead"})
			return
		}
		if req.Position != nil {
			same, err := s.samePosition(r.Context(), current, *req.Position)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if !same {
				s.writeError(w, r, domain.InputError{Field: "position", Reason: "a tree cannot change cell; duplicate it instead"})
				return
			}
		}
	}
	tree, err := s.svc.UpdateTree(r.Context(), id, core.TreePatch{
		Species:   req.Species,
		Variety:   req.Variety,
		PlantDate: req.PlantDate,
		Health:    req.Health,
		Notes:     req.Notes,
		Photos:    req.Photos,
		GPS:       req.GPS,
		Origin:    req.Origin,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// samePosition reports whether code addresses the tree's current cell on its
// farm's grid. Codes outside the grid never match.
func (s *Server) samePosition(ctx context.Context, tree core.Tree, code string) (bool, error) {
	farm, err := s.svc.GetFarm(ctx, tree.FarmID)
	if err != nil {
		return false, err
	}
	canonical, err := domain.CanonicalPosition(code, farm.Dims())
	if err != nil {
		return false, nil
	}
	return canonical == tree.Position, nil
}

func (s *Server) removeTree(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveTree(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "tree deleted"})
}

func (s *Server) addPhoto(w http.ResponseWriter, r *http.Request) {
	var req photoRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Photo == nil {
		s.writeError(w, r, domain.InputError{Field: "photo", Reason: "required"})
		return
	}
	index, err := s.svc.AddPhoto(r.Context(), chi.URLParam(r, "id"), *req.Photo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, photoResponse{Message: "photo added", PhotoCount: index + 1, Index: &index})
}

func (s *Server) removePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, domain.InputError{Field: "index", Reason: "must be an integer"})
		return
	}
	if err := s.svc.RemovePhoto(r.Context(), id, index); err != nil {
		s.writeError(w, r, err)
		return
	}
	tree, err := s.svc.GetTree(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photoResponse{Message: "photo deleted", PhotoCount: len(tree.Photos)})
}

func (s *Server) duplicateTree(w http.ResponseWriter, r *http.Request) {
	var req core.DuplicateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tree, err := s.svc.DuplicateTree(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tree)
}

func (s *Server) syncTrees(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.SyncTrees(r.Context(), req.Trees))
}

func (s *Server) searchTrees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trees, err := s.svc.QueryTrees(r.Context(), core.TreeFilter{
		FarmID:  q.Get("farm_id"),
		Text:    q.Get("query"),
		Health:  q.Get("health"),
		Species: q.Get("species"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trees)
}
