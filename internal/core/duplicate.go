package core

import (
	"arboria/pkg/domain"
	"context"
)

// DuplicateRequest names the source tree and where its copy goes. An empty
// TargetFarmID keeps the copy on the source farm.
type DuplicateRequest struct {
	SourceTreeID   string `json:"source_tree_id"`
	TargetFarmID   string `json:"target_farm_id,omitempty"`
	TargetPosition string `json:"target_position"`
}

// DuplicateTree plants a fresh copy of a tree on another cell. Species,
// variety and origin are copied; the copy starts healthy, planted today,
// without notes, photos, coordinates or interventions.
func (s *Service) DuplicateTree(ctx context.Context, req DuplicateRequest) (Tree, error) {
	var copied Tree
	_, err := s.run(ctx, "duplicate_tree", func(tx domain.Transaction) error {
		source, ok := tx.FindTree(req.SourceTreeID)
		if !ok {
			return domain.NotFoundError{Entity: EntityTree, ID: req.SourceTreeID}
		}
		farmID := req.TargetFarmID
		if farmID == "" {
			farmID = source.FarmID
		}
		farm, ok := tx.FindFarm(farmID)
		if !ok {
			return domain.NotFoundError{Entity: EntityFarm, ID: farmID}
		}
		pos, err := domain.CanonicalPosition(req.TargetPosition, farm.Dims())
		if err != nil {
			return err
		}
		copied, err = tx.CreateTree(Tree{
			FarmID:         farmID,
			Position:       pos,
			Species:        source.Species,
			Variety:        source.Variety,
			Origin:         source.Origin,
			PlantDate:      domain.DateOf(s.clock.Now()),
			Health:         domain.HealthGood,
			DuplicatedFrom: source.ID,
		})
		return err
	})
	return copied, err
}
