package core

import (
	"arboria/pkg/domain"
	"context"
	"time"
)

// RecentPlantingWindowDays is the look-back of Statistics.RecentPlantings.
const RecentPlantingWindowDays = 30

// Statistics are the derived counts of a farm.
type Statistics struct {
	FarmID              string                   `json:"farm_id"`
	Total               int                      `json:"total"`
	Good                int                      `json:"good"`
	Fair                int                      `json:"fair"`
	Poor                int                      `json:"poor"`
	Dead                int                      `json:"dead"`
	SpeciesCount        map[string]int           `json:"species_count"`
	RecentPlantings     int                      `json:"recent_plantings"`
	TotalInterventions  int                      `json:"total_interventions"`
	InterventionsByType map[InterventionType]int `json:"interventions_by_type"`
	ComputedAt          time.Time                `json:"computed_at"`
}

// ComputeStatistics aggregates one farm from a single read-only view.
func (s *Service) ComputeStatistics(ctx context.Context, farmID string) (Statistics, error) {
	now := s.clock.Now().UTC()
	var stats Statistics
	err := s.view(ctx, "compute_statistics", func(v domain.TransactionView) error {
		if _, ok := v.FindFarm(farmID); !ok {
			return domain.NotFoundError{Entity: EntityFarm, ID: farmID}
		}
		stats = aggregate(farmID, v, now)
		return nil
	})
	return stats, err
}

func aggregate(farmID string, v domain.TransactionView, now time.Time) Statistics {
	stats := Statistics{
		FarmID:              farmID,
		SpeciesCount:        map[string]int{},
		InterventionsByType: map[InterventionType]int{},
		ComputedAt:          now,
	}
	cutoff := domain.DateOf(now).AddDays(-RecentPlantingWindowDays)
	logs := interventionsByTree(v)
	for _, t := range v.ListTreesByFarm(farmID) {
		stats.Total++
		switch t.Health {
		case domain.HealthFair:
			stats.Fair++
		case domain.HealthPoor:
			stats.Poor++
		case domain.HealthDead:
			stats.Dead++
		default:
			stats.Good++
		}
		stats.SpeciesCount[t.Species]++
		if !t.PlantDate.IsZero() && !t.PlantDate.Before(cutoff.Time) && !t.PlantDate.After(now) {
			stats.RecentPlantings++
		}
		for _, iv := range logs[t.ID] {
			stats.TotalInterventions++
			stats.InterventionsByType[iv.Type]++
		}
	}
	return stats
}
