package core

import (
	"arboria/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// ImportResult counts the records created by an import.
type ImportResult struct {
	Farms         int `json:"farms"`
	Trees         int `json:"trees"`
	Interventions int `json:"interventions"`
}

// ExportState renders one farm, or every farm when farmID is empty, as a
// portable document.
func (s *Service) ExportState(ctx context.Context, farmID string) (Document, error) {
	exportedAt := s.clock.Now()
	var doc Document
	err := s.view(ctx, "export_state", func(v domain.TransactionView) error {
		var farms []Farm
		if farmID == "" {
			farms = v.ListFarms()
		} else {
			farm, ok := v.FindFarm(farmID)
			if !ok {
				return domain.NotFoundError{Entity: EntityFarm, ID: farmID}
			}
			farms = []Farm{farm}
		}
		trees := make([]Tree, 0)
		interventions := make([]Intervention, 0)
		logs := interventionsByTree(v)
		for _, f := range farms {
			for _, t := range v.ListTreesByFarm(f.ID) {
				trees = append(trees, t)
				interventions = append(interventions, logs[t.ID]...)
			}
		}
		doc = domain.NewDocument(exportedAt, farms, trees, interventions)
		return nil
	})
	return doc, err
}

// ValidateDocument checks a document without writing anything.
func (s *Service) ValidateDocument(doc Document) ValidationReport {
	return doc.Validate()
}

// ImportState adds every record of doc as new entities in one transaction.
// The whole document is validated first; any problem rejects the import and
// leaves the store unchanged.
func (s *Service) ImportState(ctx context.Context, doc Document) (ImportResult, error) {
	report := doc.Validate()
	if err := report.Err(); err != nil {
		s.logger.Info("import rejected", "problems", len(report.Errors))
		return ImportResult{}, err
	}
	now := s.clock.Now().UTC()
	var result ImportResult
	_, err := s.run(ctx, "import_state", func(tx domain.Transaction) error {
		result = ImportResult{}
		farmIDs := make(map[string]string, len(doc.Farms))
		for _, rec := range doc.Farms {
			dims := rec.Dims()
			created, err := tx.CreateFarm(Farm{
				Name:        strings.TrimSpace(rec.Name),
				Description: rec.Description,
				GridRows:    dims.Rows,
				GridCols:    dims.Cols,
				GPS:         rec.GPS,
				CreatedAt:   rec.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("import farm %s: %w", rec.ID, err)
			}
			farmIDs[rec.ID] = created.ID
			result.Farms++
		}
		treeIDs := make(map[string]string, len(doc.Trees))
		for i, rec := range doc.Trees {
			tree, err := treeFromRecord(rec, farmIDs[rec.FarmID], doc.Farms)
			if err != nil {
				return fmt.Errorf("import trees[%d]: %w", i, err)
			}
			created, err := tx.CreateTree(tree)
			if err != nil {
				return fmt.Errorf("import trees[%d]: %w", i, err)
			}
			if rec.ID != "" {
				treeIDs[rec.ID] = created.ID
			}
			result.Trees++
		}
		// Links may point forward in the document, so they resolve once
		// every tree has its new id. Links leaving the document are dropped.
		for i, rec := range doc.Trees {
			if rec.ID == "" || rec.DuplicatedFrom == "" {
				continue
			}
			source, ok := treeIDs[rec.DuplicatedFrom]
			if !ok {
				continue
			}
			if _, err := tx.UpdateTree(treeIDs[rec.ID], func(t *Tree) error {
				t.DuplicatedFrom = source
				return nil
			}); err != nil {
				return fmt.Errorf("import trees[%d]: %w", i, err)
			}
		}
		for i, rec := range doc.Interventions {
			typ, err := domain.ParseInterventionType(rec.Type)
			if err != nil {
				return fmt.Errorf("import interventions[%d]: %w", i, err)
			}
			iv := Intervention{
				TreeID:    treeIDs[rec.TreeID],
				Type:      typ,
				Notes:     rec.Notes,
				Date:      rec.Date,
				CreatedAt: rec.CreatedAt,
			}
			if iv.Date.IsZero() {
				iv.Date = now
			}
			if _, err := tx.CreateIntervention(iv); err != nil {
				return fmt.Errorf("import interventions[%d]: %w", i, err)
			}
			result.Interventions++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

func treeFromRecord(rec domain.TreeRecord, farmID string, farms []domain.FarmRecord) (Tree, error) {
	var dims domain.GridDims
	for _, f := range farms {
		if f.ID == rec.FarmID {
			dims = f.Dims()
			break
		}
	}
	pos, err := domain.CanonicalPosition(rec.Position, dims)
	if err != nil {
		return Tree{}, err
	}
	plantDate, err := domain.ParseDate(rec.PlantDate)
	if err != nil {
		return Tree{}, err
	}
	health := domain.HealthGood
	if rec.Health != "" {
		if health, err = domain.ParseHealth(rec.Health); err != nil {
			return Tree{}, err
		}
	}
	return Tree{
		FarmID:    farmID,
		Position:  pos,
		Species:   strings.TrimSpace(rec.Species),
		Variety:   rec.Variety,
		PlantDate: plantDate,
		Health:    health,
		Notes:     rec.Notes,
		Photos:    rec.Photos,
		GPS:       rec.GPS,
		Origin:    rec.Origin,
		CreatedAt: rec.CreatedAt,
	}, nil
}
