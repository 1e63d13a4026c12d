package core

import (
	"arboria/pkg/domain"
	"context"
	"fmt"
)

// NewDeadTreeInterventionRule returns a non-blocking rule that flags care
// actions logged on dead trees.
func NewDeadTreeInterventionRule() domain.Rule {
	return deadTreeInterventionRule{}
}

type deadTreeInterventionRule struct{}

func (deadTreeInterventionRule) Name() string { return "dead_tree_intervention" }

func (deadTreeInterventionRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityIntervention || change.Action != domain.ActionCreate {
			continue
		}
		iv, ok := change.After.(domain.Intervention)
		if !ok || iv.Type == domain.InterventionObservation {
			continue
		}
		tree, ok := view.FindTree(iv.TreeID)
		if !ok || tree.Health != domain.HealthDead {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "dead_tree_intervention",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%s logged on dead tree %s at %s", iv.Type, tree.ID, tree.Position),
			Entity:   domain.EntityIntervention,
			EntityID: iv.ID,
		})
	}
	return res, nil
}
