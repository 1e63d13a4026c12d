// Package domain defines the orchard inventory entities, grid addressing and
// persistence contracts shared by every storage backend and adapter.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the inventory.
type EntityType string

// Supported entity types.
const (
	// EntityFarm represents a farm and its planting grid.
	EntityFarm EntityType = "farm"
	// EntityTree represents a tree placed on a farm grid cell.
	EntityTree EntityType = "tree"
	// EntityIntervention represents a logged care action on a tree.
	EntityIntervention EntityType = "intervention"
	// EntityPhoto represents a photo attached to a tree.
	EntityPhoto EntityType = "photo"
	// EntityArchive represents a stored export archive.
	EntityArchive EntityType = "archive"
)

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Grid dimension bounds applied to every farm.
const (
	MinGridSize     = 5
	MaxGridSize     = 50
	DefaultGridSize = 20
)

// Health is the closed set of tree health states.
type Health string

// Health states.
const (
	HealthGood Health = "good"
	HealthFair Health = "fair"
	HealthPoor Health = "poor"
	HealthDead Health = "dead"
)

// HealthStates lists every health state in display order.
var HealthStates = []Health{HealthGood, HealthFair, HealthPoor, HealthDead}

// Valid reports whether h is one of the known health states.
func (h Health) Valid() bool {
	switch h {
	case HealthGood, HealthFair, HealthPoor, HealthDead:
		return true
	}
	return false
}

// ParseHealth converts free text into a Health value.
func ParseHealth(raw string) (Health, error) {
	h := Health(strings.ToLower(strings.TrimSpace(raw)))
	if !h.Valid() {
		return "", InputError{Field: "health", Reason: fmt.Sprintf("unknown health state %q", raw)}
	}
	return h, nil
}

// UnmarshalJSON rejects unknown health states. An empty string stays empty.
func (h *Health) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*h = ""
		return nil
	}
	parsed, err := ParseHealth(raw)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// InterventionType is the closed set of care actions.
type InterventionType string

// Intervention types.
const (
	InterventionWatering      InterventionType = "watering"
	InterventionTreatment     InterventionType = "treatment"
	InterventionPruning       InterventionType = "pruning"
	InterventionHarvest       InterventionType = "harvest"
	InterventionFertilization InterventionType = "fertilization"
	InterventionObservation   InterventionType = "observation"
)

// InterventionTypes lists every intervention type.
var InterventionTypes = []InterventionType{
	InterventionWatering,
	InterventionTreatment,
	InterventionPruning,
	InterventionHarvest,
	InterventionFertilization,
	InterventionObservation,
}

// Valid reports whether t is a known intervention type.
func (t InterventionType) Valid() bool {
	for _, known := range InterventionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseInterventionType converts free text into an InterventionType.
func ParseInterventionType(raw string) (InterventionType, error) {
	t := InterventionType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", InvalidTypeError{Value: raw}
	}
	return t, nil
}

// UnmarshalJSON rejects unknown intervention types. An empty string stays empty.
func (t *InterventionType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*t = ""
		return nil
	}
	parsed, err := ParseInterventionType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (p GeoPoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return InputError{Field: "gps_coords.latitude", Reason: "must be within [-90, 90]"}
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return InputError{Field: "gps_coords.longitude", Reason: "must be within [-180, 180]"}
	}
	return nil
}

// Farm is a named orchard with a fixed planting grid.
type Farm struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GridRows    int       `json:"grid_rows"`
	GridCols    int       `json:"grid_cols"`
	GPS         *GeoPoint `json:"gps_coords,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Dims returns the farm grid dimensions.
func (f Farm) Dims() GridDims {
	return GridDims{Rows: f.GridRows, Cols: f.GridCols}
}

// Validate checks the farm name, grid bounds and coordinates.
func (f Farm) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return InputError{Field: "name", Reason: "must not be empty"}
	}
	if err := f.Dims().Validate(); err != nil {
		return err
	}
	if f.GPS != nil {
		return f.GPS.Validate()
	}
	return nil
}

// Tree is a single tree occupying one farm grid cell.
type Tree struct {
	ID             string    `json:"id"`
	FarmID         string    `json:"farm_id"`
	Position       string    `json:"position"`
	Species        string    `json:"species"`
	Variety        string    `json:"variety,omitempty"`
	PlantDate      Date      `json:"plant_date"`
	Health         Health    `json:"health"`
	Notes          string    `json:"notes,omitempty"`
	Photos         []Photo   `json:"photos"`
	GPS            *GeoPoint `json:"gps_coords,omitempty"`
	Origin         string    `json:"origin,omitempty"`
	DuplicatedFrom string    `json:"duplicated_from,omitempty"`
	Synced         bool      `json:"synced"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MainPhoto returns the most recently added photo.
func (t Tree) MainPhoto() (Photo, bool) {
	if len(t.Photos) == 0 {
		return Photo{}, false
	}
	return t.Photos[len(t.Photos)-1], true
}

// Intervention is an immutable log entry describing a care action on a tree.
type Intervention struct {
	ID        string           `json:"id"`
	TreeID    string           `json:"tree_id"`
	Type      InterventionType `json:"type"`
	Notes     string           `json:"notes,omitempty"`
	Date      time.Time        `json:"date"`
	CreatedAt time.Time        `json:"created_at"`
}

// InterventionNewestFirst orders interventions by date descending, then by
// creation time descending, then by id.
func InterventionNewestFirst(a, b Intervention) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// TreeGridOrder orders trees by farm, then column, then row. Unparseable
// positions sort after valid ones by raw string.
func TreeGridOrder(a, b Tree) bool {
	if a.FarmID != b.FarmID {
		return a.FarmID < b.FarmID
	}
	ca, errA := ParseCode(a.Position)
	cb, errB := ParseCode(b.Position)
	switch {
	case errA == nil && errB == nil:
		if ca.Col != cb.Col {
			return ca.Col < cb.Col
		}
		if ca.Row != cb.Row {
			return ca.Row < cb.Row
		}
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ID < b.ID
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
