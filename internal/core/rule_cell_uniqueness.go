package core

import (
	"arboria/pkg/domain"
	"context"
	"fmt"
	"sort"
)

// NewCellUniquenessRule returns the in-transaction rule guaranteeing at most
// one tree per farm cell.
func NewCellUniquenessRule() domain.Rule {
	return cellUniquenessRule{}
}

type cellUniquenessRule struct{}

func (cellUniquenessRule) Name() string { return "cell_uniqueness" }

func (cellUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityTree || change.Action == domain.ActionDelete {
			continue
		}
		if tree, ok := change.After.(domain.Tree); ok {
			touched[tree.FarmID] = struct{}{}
		}
	}
	farmIDs := make([]string, 0, len(touched))
	for id := range touched {
		farmIDs = append(farmIDs, id)
	}
	sort.Strings(farmIDs)

	res := domain.Result{}
	for _, farmID := range farmIDs {
		occupants := make(map[string]string)
		for _, tree := range view.ListTreesByFarm(farmID) {
			if first, taken := occupants[tree.Position]; taken {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "cell_uniqueness",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("cell %s of farm %s holds trees %s and %s", tree.Position, farmID, first, tree.ID),
					Entity:   domain.EntityTree,
					EntityID: tree.ID,
				})
				continue
			}
			occupants[tree.Position] = tree.ID
		}
	}
	return res, nil
}
