package core

import (
	"arboria/pkg/domain"
	"context"
	"fmt"
)

// NewGridBoundsRule returns the in-transaction rule rejecting trees whose
// position lies outside their farm grid.
func NewGridBoundsRule() domain.Rule {
	return gridBoundsRule{}
}

type gridBoundsRule struct{}

func (gridBoundsRule) Name() string { return "grid_bounds" }

func (gridBoundsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityTree || change.Action == domain.ActionDelete {
			continue
		}
		tree, ok := change.After.(domain.Tree)
		if !ok {
			continue
		}
		farm, ok := view.FindFarm(tree.FarmID)
		if !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grid_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("tree %s references missing farm %s", tree.ID, tree.FarmID),
				Entity:   domain.EntityTree,
				EntityID: tree.ID,
			})
			continue
		}
		canonical, err := domain.CanonicalPosition(tree.Position, farm.Dims())
		if err != nil || canonical != tree.Position {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "grid_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("tree %s position %q is not a canonical cell of the %dx%d grid of farm %s", tree.ID, tree.Position, farm.GridRows, farm.GridCols, farm.ID),
				Entity:   domain.EntityTree,
				EntityID: tree.ID,
			})
		}
	}
	return res, nil
}
