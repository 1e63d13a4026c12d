package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentVersion is the exchange format version written by exports.
const DocumentVersion = "1.0"

// Document is the portable export/import representation of one or more farms.
// Record ids are document-local references; imports always assign new ids.
type Document struct {
	Version       string               `json:"version"`
	ExportDate    time.Time            `json:"export_date"`
	Farms         []FarmRecord         `json:"farms"`
	Trees         []TreeRecord         `json:"trees"`
	Interventions []InterventionRecord `json:"interventions"`
}

// FarmRecord is the exchange form of a Farm.
type FarmRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GridRows    int       `json:"grid_rows"`
	GridCols    int       `json:"grid_cols"`
	GPS         *GeoPoint `json:"gps_coords,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TreeRecord is the exchange form of a Tree. Enumerations and dates are kept
// as text so that validation can report every problem at once.
type TreeRecord struct {
	ID        string    `json:"id,omitempty"`
	FarmID    string    `json:"farm_id"`
	Position  string    `json:"position"`
	Species   string    `json:"species"`
	Variety   string    `json:"variety,omitempty"`
	PlantDate string    `json:"plant_date"`
	Health    string    `json:"health"`
	Notes     string    `json:"notes,omitempty"`
	Photos    []Photo   `json:"photos,omitempty"`
	GPS       *GeoPoint `json:"gps_coords,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	// DuplicatedFrom names another tree record of the same document.
	DuplicatedFrom string    `json:"duplicated_from,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// InterventionRecord is the exchange form of an Intervention.
type InterventionRecord struct {
	ID        string    `json:"id,omitempty"`
	TreeID    string    `json:"tree_id"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDocument assembles a document from committed entities.
func NewDocument(exportedAt time.Time, farms []Farm, trees []Tree, interventions []Intervention) Document {
	doc := Document{
		Version:       DocumentVersion,
		ExportDate:    exportedAt.UTC(),
		Farms:         make([]FarmRecord, 0, len(farms)),
		Trees:         make([]TreeRecord, 0, len(trees)),
		Interventions: make([]InterventionRecord, 0, len(interventions)),
	}
	for _, f := range farms {
		doc.Farms = append(doc.Farms, FarmRecord{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			GridRows:    f.GridRows,
			GridCols:    f.GridCols,
			GPS:         f.GPS,
			CreatedAt:   f.CreatedAt,
		})
	}
	for _, t := range trees {
		doc.Trees = append(doc.Trees, TreeRecord{
			ID:             t.ID,
			FarmID:         t.FarmID,
			Position:       t.Position,
			Species:        t.Species,
			Variety:        t.Variety,
			PlantDate:      t.PlantDate.String(),
			Health:         string(t.Health),
			Notes:          t.Notes,
			Photos:         t.Photos,
			GPS:            t.GPS,
			Origin:         t.Origin,
			DuplicatedFrom: t.DuplicatedFrom,
			CreatedAt:      t.CreatedAt,
		})
	}
	for _, i := range interventions {
		doc.Interventions = append(doc.Interventions, InterventionRecord{
			ID:        i.ID,
			TreeID:    i.TreeID,
			Type:      string(i.Type),
			Notes:     i.Notes,
			Date:      i.Date,
			CreatedAt: i.CreatedAt,
		})
	}
	return doc
}

// ValidationReport summarizes a document check. Errors block an import;
// warnings describe defaults that will be applied.
type ValidationReport struct {
	Valid         bool     `json:"valid"`
	Version       string   `json:"version"`
	Farms         int      `json:"farm_count"`
	Trees         int      `json:"tree_count"`
	Interventions int      `json:"intervention_count"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// Err returns a DocumentError when the report is not valid.
func (r ValidationReport) Err() error {
	if r.Valid {
		return nil
	}
	return DocumentError{Problems: append([]string(nil), r.Errors...)}
}

// Validate checks referential integrity and field constraints across the
// whole document without touching any store.
func (d Document) Validate() ValidationReport {
	report := ValidationReport{
		Valid:         true,
		Version:       d.Version,
		Farms:         len(d.Farms),
		Trees:         len(d.Trees),
		Interventions: len(d.Interventions),
		Errors:        make([]string, 0),
		Warnings:      make([]string, 0),
	}
	fail := func(format string, args ...any) {
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
		report.Valid = false
	}
	warn := func(format string, args ...any) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
	}

	switch d.Version {
	case "":
		warn("missing version (assuming %s)", DocumentVersion)
	case DocumentVersion:
	default:
		warn("unknown version: %s (expected %s)", d.Version, DocumentVersion)
	}

	farmDims := make(map[string]GridDims, len(d.Farms))
	for i, f := range d.Farms {
		if f.ID == "" {
			fail("farms[%d]: missing id", i)
		} else if _, dup := farmDims[f.ID]; dup {
			fail("farms[%d]: duplicate id %s", i, f.ID)
		}
		if strings.TrimSpace(f.Name) == "" {
			fail("farms[%d]: missing name", i)
		}
		dims := f.Dims()
		if f.GridRows == 0 || f.GridCols == 0 {
			warn("farms[%d]: missing grid dimensions (defaulting to %d)", i, DefaultGridSize)
		}
		if err := dims.Validate(); err != nil {
			fail("farms[%d]: %v", i, err)
		}
		if f.GPS != nil {
			if err := f.GPS.Validate(); err != nil {
				fail("farms[%d]: %v", i, err)
			}
		}
		if f.ID != "" {
			if _, dup := farmDims[f.ID]; !dup {
				farmDims[f.ID] = dims
			}
		}
	}

	treeIDs := make(map[string]struct{}, len(d.Trees))
	cells := make(map[string]int, len(d.Trees))
	for i, t := range d.Trees {
		if t.ID != "" {
			if _, dup := treeIDs[t.ID]; dup {
				fail("trees[%d]: duplicate id %s", i, t.ID)
			}
			treeIDs[t.ID] = struct{}{}
		}
		dims, ok := farmDims[t.FarmID]
		if !ok {
			fail("trees[%d]: farm_id %q does not match any farm in the document", i, t.FarmID)
		} else if pos, err := CanonicalPosition(t.Position, dims); err != nil {
			fail("trees[%d]: %v", i, err)
		} else {
			key := t.FarmID + "/" + pos
			if prev, taken := cells[key]; taken {
				fail("trees[%d]: position %s already used by trees[%d]", i, pos, prev)
			} else {
				cells[key] = i
			}
		}
		if strings.TrimSpace(t.Species) == "" {
			fail("trees[%d]: missing species", i)
		}
		if t.PlantDate == "" {
			fail("trees[%d]: missing plant_date", i)
		} else if _, err := ParseDate(t.PlantDate); err != nil {
			fail("trees[%d]: %v", i, err)
		}
		if t.Health == "" {
			warn("trees[%d]: missing health (defaulting to %s)", i, HealthGood)
		} else if _, err := ParseHealth(t.Health); err != nil {
			fail("trees[%d]: %v", i, err)
		}
		if t.GPS != nil {
			if err := t.GPS.Validate(); err != nil {
				fail("trees[%d]: %v", i, err)
			}
		}
	}
	for i, t := range d.Trees {
		if t.DuplicatedFrom == "" {
			continue
		}
		if _, ok := treeIDs[t.DuplicatedFrom]; !ok {
			warn("trees[%d]: duplicated_from %q is not in the document (link dropped)", i, t.DuplicatedFrom)
		}
	}

	interventionIDs := make(map[string]struct{}, len(d.Interventions))
	for i, iv := range d.Interventions {
		if iv.ID != "" {
			if _, dup := interventionIDs[iv.ID]; dup {
				fail("interventions[%d]: duplicate id %s", i, iv.ID)
			}
			interventionIDs[iv.ID] = struct{}{}
		}
		if _, ok := treeIDs[iv.TreeID]; !ok || iv.TreeID == "" {
			fail("interventions[%d]: tree_id %q does not match any tree in the document", i, iv.TreeID)
		}
		if _, err := ParseInterventionType(iv.Type); err != nil {
			fail("interventions[%d]: %v", i, err)
		}
		if iv.Date.IsZero() {
			warn("interventions[%d]: missing date (defaulting to import time)", i)
		}
	}
	return report
}

// Dims returns the record grid, applying the default for missing values.
func (f FarmRecord) Dims() GridDims {
	dims := GridDims{Rows: f.GridRows, Cols: f.GridCols}
	if dims.Rows == 0 {
		dims.Rows = DefaultGridSize
	}
	if dims.Cols == 0 {
		dims.Cols = DefaultGridSize
	}
	return dims
}
