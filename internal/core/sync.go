package core

import (
	"arboria/pkg/domain"
	"context"
)

// TreeSyncItem is one tree sent by an offline client. Items carrying an ID
// patch that tree; the others are placed as new trees.
type TreeSyncItem struct {
	ID        string    `json:"id,omitempty"`
	FarmID    string    `json:"farm_id,omitempty"`
	Position  string    `json:"position,omitempty"`
	Species   *string   `json:"species,omitempty"`
	Variety   *string   `json:"variety,omitempty"`
	PlantDate *Date     `json:"plant_date,omitempty"`
	Health    *Health   `json:"health,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Photos    *[]Photo  `json:"photos,omitempty"`
	GPS       *GeoPoint `json:"gps_coords,omitempty"`
	Origin    *string   `json:"origin,omitempty"`
}

// SyncError describes a rejected sync item.
type SyncError struct {
	Index  int              `json:"index"`
	TreeID string           `json:"tree_id,omitempty"`
	Kind   domain.ErrorKind `json:"kind"`
	Error  string           `json:"error"`
}

// SyncReport summarizes a batch sync.
type SyncReport struct {
	SyncedCount int         `json:"synced_count"`
	ErrorCount  int         `json:"error_count"`
	SyncedTrees []Tree      `json:"synced_trees"`
	Errors      []SyncError `json:"errors"`
}

func (item TreeSyncItem) patch() TreePatch {
	return TreePatch{
		Species:   item.Species,
		Variety:   item.Variety,
		PlantDate: item.PlantDate,
		Health:    item.Health,
		Notes:     item.Notes,
		Photos:    item.Photos,
		GPS:       item.GPS,
		Origin:    item.Origin,
	}
}

func (item TreeSyncItem) attributes() TreeAttributes {
	var attrs TreeAttributes
	if item.Species != nil {
		attrs.Species = *item.Species
	}
	if item.Variety != nil {
		attrs.Variety = *item.Variety
	}
	if item.PlantDate != nil {
		attrs.PlantDate = *item.PlantDate
	}
	if item.Health != nil {
		attrs.Health = *item.Health
	}
	if item.Notes != nil {
		attrs.Notes = *item.Notes
	}
	if item.Photos != nil {
		attrs.Photos = *item.Photos
	}
	if item.Origin != nil {
		attrs.Origin = *item.Origin
	}
	attrs.GPS = item.GPS
	return attrs
}

// SyncTrees applies each item in its own transaction. Failures are reported
// per item and never abort the rest of the batch.
func (s *Service) SyncTrees(ctx context.Context, items []TreeSyncItem) SyncReport {
	report := SyncReport{SyncedTrees: []Tree{}, Errors: []SyncError{}}
	for i, item := range items {
		var (
			tree Tree
			err  error
		)
		if item.ID != "" {
			tree, err = s.UpdateTree(ctx, item.ID, item.patch())
		} else {
			tree, err = s.PlaceTree(ctx, item.FarmID, item.Position, item.attributes())
		}
		if err != nil {
			report.Errors = append(report.Errors, SyncError{
				Index:  i,
				TreeID: item.ID,
				Kind:   domain.KindOf(err),
				Error:  err.Error(),
			})
			continue
		}
		report.SyncedTrees = append(report.SyncedTrees, tree)
	}
	report.SyncedCount = len(report.SyncedTrees)
	report.ErrorCount = len(report.Errors)
	if report.ErrorCount > 0 {
		s.logger.Info("tree sync finished with errors", "synced", report.SyncedCount, "errors", report.ErrorCount)
	}
	return report
}
