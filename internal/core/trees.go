package core

import (
	"arboria/pkg/domain"
	"context"
	"strconv"
	"strings"
)

// TreeAttributes are the descriptive fields supplied when placing a tree. A
// zero plant date means today and an empty health means good.
type TreeAttributes struct {
	Species   string
	Variety   string
	PlantDate Date
	Health    Health
	Notes     string
	Photos    []Photo
	GPS       *GeoPoint
	Origin    string
}

// TreePatch is a partial tree update; nil fields are left unchanged and a
// non-nil Photos replaces the whole list.
type TreePatch struct {
	Species   *string
	Variety   *string
	PlantDate *Date
	Health    *Health
	Notes     *string
	Photos    *[]Photo
	GPS       *GeoPoint
	Origin    *string
}

// TreeFilter narrows QueryTrees. Empty fields match everything; Health may
// also be "all".
type TreeFilter struct {
	FarmID  string
	Text    string
	Health  string
	Species string
}

func (a TreeAttributes) validate() error {
	if strings.TrimSpace(a.Species) == "" {
		return domain.InputError{Field: "species", Reason: "must not be empty"}
	}
	if a.Health != "" && !a.Health.Valid() {
		return domain.InputError{Field: "health", Reason: "unknown health state " + strconv.Quote(string(a.Health))}
	}
	if a.GPS != nil {
		return a.GPS.Validate()
	}
	return nil
}

// PlaceTree puts a new tree on a free cell of a farm.
func (s *Service) PlaceTree(ctx context.Context, farmID, position string, attrs TreeAttributes) (Tree, error) {
	var placed Tree
	_, err := s.run(ctx, "place_tree", func(tx domain.Transaction) error {
		farm, ok := tx.FindFarm(farmID)
		if !ok {
			return domain.NotFoundError{Entity: EntityFarm, ID: farmID}
		}
		pos, err := domain.CanonicalPosition(position, farm.Dims())
		if err != nil {
			return err
		}
		if err := attrs.validate(); err != nil {
			return err
		}
		placed, err = tx.CreateTree(s.newTree(farmID, pos, attrs))
		return err
	})
	return placed, err
}

func (s *Service) newTree(farmID, position string, attrs TreeAttributes) Tree {
	t := Tree{
		FarmID:    farmID,
		Position:  position,
		Species:   strings.TrimSpace(attrs.Species),
		Variety:   attrs.Variety,
		PlantDate: attrs.PlantDate,
		Health:    attrs.Health,
		Notes:     attrs.Notes,
		Photos:    clonePhotos(attrs.Photos),
		GPS:       attrs.GPS,
		Origin:    attrs.Origin,
	}
	if t.PlantDate.IsZero() {
		t.PlantDate = domain.DateOf(s.clock.Now())
	}
	if t.Health == "" {
		t.Health = domain.HealthGood
	}
	return t
}

// clonePhotos copies caller-owned photo bytes before they enter the store.
func clonePhotos(in []Photo) []Photo {
	if in == nil {
		return nil
	}
	out := make([]Photo, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func (p TreePatch) apply(t *Tree) error {
	if p.Species != nil {
		species := strings.TrimSpace(*p.Species)
		if species == "" {
			return domain.InputError{Field: "species", Reason: "must not be empty"}
		}
		t.Species = species
	}
	if p.Variety != nil {
		t.Variety = *p.Variety
	}
	if p.PlantDate != nil {
		t.PlantDate = *p.PlantDate
	}
	if p.Health != nil {
		if !p.Health.Valid() {
			return domain.InputError{Field: "health", Reason: "unknown health state " + strconv.Quote(string(*p.Health))}
		}
		t.Health = *p.Health
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Photos != nil {
		t.Photos = clonePhotos(*p.Photos)
	}
	if p.GPS != nil {
		if err := p.GPS.Validate(); err != nil {
			return err
		}
		gps := *p.GPS
		t.GPS = &gps
	}
	if p.Origin != nil {
		t.Origin = *p.Origin
	}
	return nil
}

// UpdateTree applies patch to a tree. Its farm and position never change.
func (s *Service) UpdateTree(ctx context.Context, id string, patch TreePatch) (Tree, error) {
	var updated Tree
	_, err := s.run(ctx, "update_tree", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateTree(id, patch.apply)
		return err
	})
	return updated, err
}

// RemoveTree deletes a tree together with its interventions and photos.
func (s *Service) RemoveTree(ctx context.Context, id string) error {
	_, err := s.run(ctx, "remove_tree", func(tx domain.Transaction) error {
		return tx.DeleteTree(id)
	})
	return err
}

// AddPhoto appends a photo and returns its index.
func (s *Service) AddPhoto(ctx context.Context, treeID string, photo Photo) (int, error) {
	if len(photo.Data) == 0 {
		return 0, domain.InputError{Field: "photo", Reason: "must not be empty"}
	}
	index := 0
	_, err := s.run(ctx, "add_photo", func(tx domain.Transaction) error {
		updated, err := tx.UpdateTree(treeID, func(t *Tree) error {
			t.Photos = append(t.Photos, photo.Clone())
			return nil
		})
		index = len(updated.Photos) - 1
		return err
	})
	return index, err
}

// RemovePhoto deletes the photo at index.
func (s *Service) RemovePhoto(ctx context.Context, treeID string, index int) error {
	_, err := s.run(ctx, "remove_photo", func(tx domain.Transaction) error {
		_, err := tx.UpdateTree(treeID, func(t *Tree) error {
			if index < 0 || index >= len(t.Photos) {
				return domain.NotFoundError{Entity: EntityPhoto, ID: treeID + "/" + strconv.Itoa(index)}
			}
			t.Photos = append(t.Photos[:index:index], t.Photos[index+1:]...)
			return nil
		})
		return err
	})
	return err
}

// GetTree returns a tree by id.
func (s *Service) GetTree(ctx context.Context, id string) (Tree, error) {
	var tree Tree
	err := s.view(ctx, "get_tree", func(v domain.TransactionView) error {
		t, ok := v.FindTree(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityTree, ID: id}
		}
		tree = t
		return nil
	})
	return tree, err
}

// ListTrees returns the trees of one farm, or of every farm when farmID is
// empty, in grid order.
func (s *Service) ListTrees(ctx context.Context, farmID string) ([]Tree, error) {
	var trees []Tree
	err := s.view(ctx, "list_trees", func(v domain.TransactionView) error {
		if farmID == "" {
			trees = v.ListTrees()
		} else {
			trees = v.ListTreesByFarm(farmID)
		}
		return nil
	})
	return trees, err
}

// QueryTrees filters trees by farm, free text, health and species.
func (s *Service) QueryTrees(ctx context.Context, filter TreeFilter) ([]Tree, error) {
	var health Health
	if raw := strings.TrimSpace(filter.Health); raw != "" && !strings.EqualFold(raw, "all") {
		h, err := domain.ParseHealth(raw)
		if err != nil {
			return nil, err
		}
		health = h
	}
	text := strings.ToLower(strings.TrimSpace(filter.Text))
	species := strings.ToLower(strings.TrimSpace(filter.Species))

	var out []Tree
	err := s.view(ctx, "query_trees", func(v domain.TransactionView) error {
		candidates := v.ListTrees()
		if filter.FarmID != "" {
			candidates = v.ListTreesByFarm(filter.FarmID)
		}
		out = make([]Tree, 0, len(candidates))
		for _, t := range candidates {
			if health != "" && t.Health != health {
				continue
			}
			if species != "" && !strings.Contains(strings.ToLower(t.Species), species) {
				continue
			}
			if text != "" && !matchesText(t, text) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

func matchesText(t Tree, needle string) bool {
	for _, field := range []string{t.Species, t.Variety, t.Position} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
