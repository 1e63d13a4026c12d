// Package memory provides an in-memory implementation of the inventory
// persistence store used for tests, ephemeral environments and as the
// transactional engine behind the snapshotting backends.
package memory

import (
	"arboria/pkg/domain"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Farm aliases domain.Farm for in-memory persistence operations.
	Farm = domain.Farm
	// Tree aliases domain.Tree.
	Tree = domain.Tree
	// Intervention aliases domain.Intervention.
	Intervention = domain.Intervention
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type cellKey struct {
	farmID   string
	position string
}

type memoryState struct {
	farms         map[string]Farm
	trees         map[string]Tree
	interventions map[string]Intervention
	// cells indexes live trees by (farm, canonical position).
	cells map[cellKey]string
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Farms         map[string]Farm         `json:"farms"`
	Trees         map[string]Tree         `json:"trees"`
	Interventions map[string]Intervention `json:"interventions"`
}

func newMemoryState() memoryState {
	return memoryState{
		farms:         make(map[string]Farm),
		trees:         make(map[string]Tree),
		interventions: make(map[string]Intervention),
		cells:         make(map[cellKey]string),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Farms:         make(map[string]Farm, len(state.farms)),
		Trees:         make(map[string]Tree, len(state.trees)),
		Interventions: make(map[string]Intervention, len(state.interventions)),
	}
	for k, v := range state.farms {
		s.Farms[k] = cloneFarm(v)
	}
	for k, v := range state.trees {
		s.Trees[k] = cloneTree(v)
	}
	for k, v := range state.interventions {
		s.Interventions[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Farms {
		state.farms[k] = cloneFarm(v)
	}
	for k, v := range s.Trees {
		t := cloneTree(v)
		if t.Photos == nil {
			t.Photos = []domain.Photo{}
		}
		state.trees[k] = t
		state.cells[cellKey{farmID: t.FarmID, position: t.Position}] = k
	}
	for k, v := range s.Interventions {
		state.interventions[k] = v
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.farms {
		cloned.farms[k] = cloneFarm(v)
	}
	for k, v := range s.trees {
		cloned.trees[k] = cloneTree(v)
	}
	for k, v := range s.interventions {
		cloned.interventions[k] = v
	}
	for k, v := range s.cells {
		cloned.cells[k] = v
	}
	return cloned
}

func cloneGeo(p *domain.GeoPoint) *domain.GeoPoint {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneFarm(f Farm) Farm {
	cp := f
	cp.GPS = cloneGeo(f.GPS)
	return cp
}

// cloneTree copies the photo list but shares photo bytes, which are never
// mutated once stored.
func cloneTree(t Tree) Tree {
	cp := t
	cp.GPS = cloneGeo(t.GPS)
	if t.Photos != nil {
		cp.Photos = make([]domain.Photo, len(t.Photos))
		copy(cp.Photos, t.Photos)
	}
	return cp
}

// CommitHook receives the changes of a transaction that passed rule
// evaluation. A non-nil error aborts the commit and leaves the store unchanged.
type CommitHook func(ctx context.Context, changes []Change) error

// Store provides an in-memory transactional store for the inventory.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// SetCommitHook installs the hook run before each commit. Snapshot backends use
// it to write changes durably before they become visible.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used to stamp records.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortFarms(farms []Farm) {
	sort.Slice(farms, func(i, j int) bool {
		if !farms[i].CreatedAt.Equal(farms[j].CreatedAt) {
			return farms[i].CreatedAt.Before(farms[j].CreatedAt)
		}
		return farms[i].ID < farms[j].ID
	})
}

func sortTrees(trees []Tree) {
	sort.Slice(trees, func(i, j int) bool { return domain.TreeGridOrder(trees[i], trees[j]) })
}

func sortInterventions(items []Intervention) {
	sort.Slice(items, func(i, j int) bool { return domain.InterventionNewestFirst(items[i], items[j]) })
}

func (st *memoryState) listFarms() []Farm {
	out := make([]Farm, 0, len(st.farms))
	for _, f := range st.farms {
		out = append(out, cloneFarm(f))
	}
	sortFarms(out)
	return out
}

func (st *memoryState) listTrees(farmID string) []Tree {
	out := make([]Tree, 0)
	for _, t := range st.trees {
		if farmID == "" || t.FarmID == farmID {
			out = append(out, cloneTree(t))
		}
	}
	sortTrees(out)
	return out
}

func (st *memoryState) listInterventions(treeID string) []Intervention {
	out := make([]Intervention, 0)
	for _, i := range st.interventions {
		if treeID == "" || i.TreeID == treeID {
			out = append(out, i)
		}
	}
	sortInterventions(out)
	return out
}

func (st *memoryState) findFarm(id string) (Farm, bool) {
	f, ok := st.farms[id]
	if !ok {
		return Farm{}, false
	}
	return cloneFarm(f), true
}

func (st *memoryState) findTree(id string) (Tree, bool) {
	t, ok := st.trees[id]
	if !ok {
		return Tree{}, false
	}
	return cloneTree(t), true
}

func (st *memoryState) findTreeAt(farmID, position string) (Tree, bool) {
	id, ok := st.cells[cellKey{farmID: farmID, position: position}]
	if !ok {
		return Tree{}, false
	}
	return st.findTree(id)
}

func (st *memoryState) findIntervention(id string) (Intervention, bool) {
	i, ok := st.interventions[id]
	return i, ok
}

// ListFarms returns farms ordered by creation time.
func (v transactionView) ListFarms() []Farm { return v.state.listFarms() }

// ListTrees returns all trees in grid order.
func (v transactionView) ListTrees() []Tree { return v.state.listTrees("") }

// ListTreesByFarm returns the trees of one farm in grid order.
func (v transactionView) ListTreesByFarm(farmID string) []Tree {
	if farmID == "" {
		return []Tree{}
	}
	return v.state.listTrees(farmID)
}

// ListInterventions returns all interventions newest first.
func (v transactionView) ListInterventions() []Intervention { return v.state.listInterventions("") }

// ListInterventionsByTree returns a tree's interventions newest first.
func (v transactionView) ListInterventionsByTree(treeID string) []Intervention {
	if treeID == "" {
		return []Intervention{}
	}
	return v.state.listInterventions(treeID)
}

// FindFarm looks up a farm by id.
func (v transactionView) FindFarm(id string) (Farm, bool) { return v.state.findFarm(id) }

// FindTree looks up a tree by id.
func (v transactionView) FindTree(id string) (Tree, bool) { return v.state.findTree(id) }

// FindTreeAt looks up the tree occupying a cell.
func (v transactionView) FindTreeAt(farmID, position string) (Tree, bool) {
	return v.state.findTreeAt(farmID, position)
}

// FindIntervention looks up an intervention by id.
func (v transactionView) FindIntervention(id string) (Intervention, bool) {
	return v.state.findIntervention(id)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Writers are serialized; the copy replaces the committed state only when fn
// succeeds, no blocking rule violation is reported and the commit hook accepts
// the changes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, tx.changes); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against the committed state under a read lock. fn must not
// start a transaction on the same store.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindFarm exposes farm lookup within the transaction scope.
func (tx *transaction) FindFarm(id string) (Farm, bool) { return tx.state.findFarm(id) }

// FindTree exposes tree lookup within the transaction scope.
func (tx *transaction) FindTree(id string) (Tree, bool) { return tx.state.findTree(id) }

// FindTreeAt exposes cell lookup within the transaction scope.
func (tx *transaction) FindTreeAt(farmID, position string) (Tree, bool) {
	return tx.state.findTreeAt(farmID, position)
}

// FindIntervention exposes intervention lookup within the transaction scope.
func (tx *transaction) FindIntervention(id string) (Intervention, bool) {
	return tx.state.findIntervention(id)
}

// CreateFarm stores a new farm.
func (tx *transaction) CreateFarm(f Farm) (Farm, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.farms[f.ID]; exists {
		return Farm{}, domain.InputError{Field: "id", Reason: "farm " + f.ID + " already exists"}
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = tx.now
	}
	f.UpdatedAt = tx.now
	tx.state.farms[f.ID] = cloneFarm(f)
	tx.recordChange(Change{Entity: domain.EntityFarm, Action: domain.ActionCreate, After: cloneFarm(f)})
	return cloneFarm(f), nil
}

// UpdateFarm mutates a farm. Identity, grid dimensions and creation time are preserved.
func (tx *transaction) UpdateFarm(id string, mutator func(*Farm) error) (Farm, error) {
	current, ok := tx.state.farms[id]
	if !ok {
		return Farm{}, domain.NotFoundError{Entity: domain.EntityFarm, ID: id}
	}
	before := cloneFarm(current)
	if err := mutator(&current); err != nil {
		return Farm{}, err
	}
	current.ID = id
	current.GridRows = before.GridRows
	current.GridCols = before.GridCols
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.farms[id] = cloneFarm(current)
	tx.recordChange(Change{Entity: domain.EntityFarm, Action: domain.ActionUpdate, Before: before, After: cloneFarm(current)})
	return cloneFarm(current), nil
}

// DeleteFarm removes a farm and cascades to its trees and their interventions.
func (tx *transaction) DeleteFarm(id string) error {
	current, ok := tx.state.farms[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityFarm, ID: id}
	}
	for treeID, t := range tx.state.trees {
		if t.FarmID == id {
			tx.deleteTree(treeID)
		}
	}
	delete(tx.state.farms, id)
	tx.recordChange(Change{Entity: domain.EntityFarm, Action: domain.ActionDelete, Before: cloneFarm(current)})
	return nil
}

// CreateTree inserts a tree if its cell is free.
func (tx *transaction) CreateTree(t Tree) (Tree, error) {
	if _, ok := tx.state.farms[t.FarmID]; !ok {
		return Tree{}, domain.NotFoundError{Entity: domain.EntityFarm, ID: t.FarmID}
	}
	key := cellKey{farmID: t.FarmID, position: t.Position}
	if occupant, taken := tx.state.cells[key]; taken {
		return Tree{}, domain.CellOccupiedError{FarmID: t.FarmID, Position: t.Position, TreeID: occupant}
	}
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.trees[t.ID]; exists {
		return Tree{}, domain.InputError{Field: "id", Reason: "tree " + t.ID + " already exists"}
	}
	if t.Health == "" {
		t.Health = domain.HealthGood
	}
	if t.Photos == nil {
		t.Photos = []domain.Photo{}
	}
	t.Synced = true
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tx.now
	}
	t.UpdatedAt = tx.now
	tx.state.trees[t.ID] = cloneTree(t)
	tx.state.cells[key] = t.ID
	tx.recordChange(Change{Entity: domain.EntityTree, Action: domain.ActionCreate, After: cloneTree(t)})
	return cloneTree(t), nil
}

// UpdateTree mutates a tree in place; its identity and cell are preserved.
func (tx *transaction) UpdateTree(id string, mutator func(*Tree) error) (Tree, error) {
	current, ok := tx.state.trees[id]
	if !ok {
		return Tree{}, domain.NotFoundError{Entity: domain.EntityTree, ID: id}
	}
	before := cloneTree(current)
	current = cloneTree(current)
	if err := mutator(&current); err != nil {
		return Tree{}, err
	}
	current.ID = id
	current.FarmID = before.FarmID
	current.Position = before.Position
	current.CreatedAt = before.CreatedAt
	current.Synced = true
	if current.Photos == nil {
		current.Photos = []domain.Photo{}
	}
	current.UpdatedAt = tx.now
	tx.state.trees[id] = cloneTree(current)
	tx.recordChange(Change{Entity: domain.EntityTree, Action: domain.ActionUpdate, Before: before, After: cloneTree(current)})
	return cloneTree(current), nil
}

// DeleteTree removes a tree and its interventions.
func (tx *transaction) DeleteTree(id string) error {
	if _, ok := tx.state.trees[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityTree, ID: id}
	}
	tx.deleteTree(id)
	return nil
}

func (tx *transaction) deleteTree(id string) {
	current := tx.state.trees[id]
	for ivID, iv := range tx.state.interventions {
		if iv.TreeID == id {
			delete(tx.state.interventions, ivID)
			tx.recordChange(Change{Entity: domain.EntityIntervention, Action: domain.ActionDelete, Before: iv})
		}
	}
	delete(tx.state.cells, cellKey{farmID: current.FarmID, position: current.Position})
	delete(tx.state.trees, id)
	tx.recordChange(Change{Entity: domain.EntityTree, Action: domain.ActionDelete, Before: cloneTree(current)})
}

// CreateIntervention appends an intervention to a tree's log.
func (tx *transaction) CreateIntervention(i Intervention) (Intervention, error) {
	if _, ok := tx.state.trees[i.TreeID]; !ok {
		return Intervention{}, domain.NotFoundError{Entity: domain.EntityTree, ID: i.TreeID}
	}
	if !i.Type.Valid() {
		return Intervention{}, domain.InvalidTypeError{Value: string(i.Type)}
	}
	if i.ID == "" {
		i.ID = tx.store.newID()
	}
	if _, exists := tx.state.interventions[i.ID]; exists {
		return Intervention{}, domain.InputError{Field: "id", Reason: "intervention " + i.ID + " already exists"}
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = tx.now
	}
	if i.Date.IsZero() {
		i.Date = i.CreatedAt
	}
	tx.state.interventions[i.ID] = i
	tx.recordChange(Change{Entity: domain.EntityIntervention, Action: domain.ActionCreate, After: i})
	return i, nil
}

// DeleteIntervention removes a single intervention.
func (tx *transaction) DeleteIntervention(id string) error {
	current, ok := tx.state.interventions[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityIntervention, ID: id}
	}
	delete(tx.state.interventions, id)
	tx.recordChange(Change{Entity: domain.EntityIntervention, Action: domain.ActionDelete, Before: current})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetFarm retrieves a farm by ID from committed state.
func (s *Store) GetFarm(id string) (Farm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findFarm(id)
}

// ListFarms returns all farms from committed state.
func (s *Store) ListFarms() []Farm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listFarms()
}

// GetTree retrieves a tree by ID from committed state.
func (s *Store) GetTree(id string) (Tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findTree(id)
}

// ListTrees returns all trees from committed state.
func (s *Store) ListTrees() []Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listTrees("")
}

// GetIntervention retrieves an intervention by ID from committed state.
func (s *Store) GetIntervention(id string) (Intervention, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findIntervention(id)
}

// ListInterventions returns all interventions from committed state.
func (s *Store) ListInterventions() []Intervention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listInterventions("")
}
