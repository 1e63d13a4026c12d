package core

import (
	"arboria/pkg/domain"
	"context"
	"time"
)

// AppendIntervention logs a care action on a tree. A nil date means now.
func (s *Service) AppendIntervention(ctx context.Context, treeID string, typ InterventionType, notes string, date *time.Time) (Intervention, error) {
	var created Intervention
	_, err := s.run(ctx, "append_intervention", func(tx domain.Transaction) error {
		if _, ok := tx.FindTree(treeID); !ok {
			return domain.NotFoundError{Entity: EntityTree, ID: treeID}
		}
		parsed, err := domain.ParseInterventionType(string(typ))
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		iv := Intervention{TreeID: treeID, Type: parsed, Notes: notes, Date: now, CreatedAt: now}
		if date != nil && !date.IsZero() {
			iv.Date = date.UTC()
		}
		created, err = tx.CreateIntervention(iv)
		return err
	})
	return created, err
}

// RemoveIntervention deletes one log entry.
func (s *Service) RemoveIntervention(ctx context.Context, id string) error {
	_, err := s.run(ctx, "remove_intervention", func(tx domain.Transaction) error {
		return tx.DeleteIntervention(id)
	})
	return err
}

// GetIntervention returns a log entry by id.
func (s *Service) GetIntervention(ctx context.Context, id string) (Intervention, error) {
	var iv Intervention
	err := s.view(ctx, "get_intervention", func(v domain.TransactionView) error {
		found, ok := v.FindIntervention(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityIntervention, ID: id}
		}
		iv = found
		return nil
	})
	return iv, err
}

// ListInterventions returns a tree's log newest first. Unknown or removed
// trees yield an empty list.
func (s *Service) ListInterventions(ctx context.Context, treeID string) ([]Intervention, error) {
	out := []Intervention{}
	err := s.view(ctx, "list_interventions", func(v domain.TransactionView) error {
		out = append(out, v.ListInterventionsByTree(treeID)...)
		return nil
	})
	return out, err
}

// ListAllInterventions returns every log entry newest first.
func (s *Service) ListAllInterventions(ctx context.Context) ([]Intervention, error) {
	out := []Intervention{}
	err := s.view(ctx, "list_all_interventions", func(v domain.TransactionView) error {
		out = append(out, v.ListInterventions()...)
		return nil
	})
	return out, err
}

// interventionsByTree groups every intervention of the view by tree, newest
// first, in a single pass.
func interventionsByTree(v domain.TransactionView) map[string][]Intervention {
	byTree := make(map[string][]Intervention)
	for _, iv := range v.ListInterventions() {
		byTree[iv.TreeID] = append(byTree[iv.TreeID], iv)
	}
	return byTree
}
