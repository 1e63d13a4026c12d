package domain

import "context"

// Transaction exposes the inventory operations that a persistence
// implementation must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateFarm(Farm) (Farm, error)
	UpdateFarm(id string, mutator func(*Farm) error) (Farm, error)
	// DeleteFarm removes the farm together with its trees and their interventions.
	DeleteFarm(id string) error
	// CreateTree inserts the tree unless its (farm, position) cell is taken, in
	// which case it returns CellOccupiedError and leaves the state untouched.
	CreateTree(Tree) (Tree, error)
	// UpdateTree applies mutator; id, farm and position cannot change.
	UpdateTree(id string, mutator func(*Tree) error) (Tree, error)
	// DeleteTree removes the tree and its interventions.
	DeleteTree(id string) error
	CreateIntervention(Intervention) (Intervention, error)
	DeleteIntervention(id string) error
	FindFarm(id string) (Farm, bool)
	FindTree(id string) (Tree, bool)
	FindTreeAt(farmID, position string) (Tree, bool)
	FindIntervention(id string) (Intervention, bool)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListFarms() []Farm
	ListTrees() []Tree
	ListTreesByFarm(farmID string) []Tree
	ListInterventions() []Intervention
	ListInterventionsByTree(treeID string) []Intervention
	FindFarm(id string) (Farm, bool)
	FindTree(id string) (Tree, bool)
	FindTreeAt(farmID, position string) (Tree, bool)
	FindIntervention(id string) (Intervention, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetFarm(id string) (Farm, bool)
	ListFarms() []Farm
	GetTree(id string) (Tree, bool)
	ListTrees() []Tree
	GetIntervention(id string) (Intervention, bool)
	ListInterventions() []Intervention
}
