package memory

import (
	"arboria/pkg/domain"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func seedFarm(t *testing.T, store *Store) domain.Farm {
	t.Helper()
	var farm domain.Farm
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		farm, err = tx.CreateFarm(domain.Farm{Name: "Verger", GridRows: 10, GridCols: 10})
		return err
	})
	if err != nil {
		t.Fatalf("create farm: %v", err)
	}
	return farm
}

func placeTree(store *Store, farmID, position string) (domain.Tree, error) {
	var tree domain.Tree
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		tree, err = tx.CreateTree(domain.Tree{FarmID: farmID, Position: position, Species: "Pommier", PlantDate: domain.NewDate(2024, 3, 1)})
		return err
	})
	return tree, err
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindFarm("missing"); ok {
			t.Fatalf("expected missing farm lookup")
		}
		created, err := tx.CreateFarm(domain.Farm{Name: "Nord", GridRows: 5, GridCols: 5})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if _, err := tx.CreateTree(domain.Tree{FarmID: created.ID, Position: "A1", Species: "Olivier"}); err != nil {
			return err
		}
		view := tx.Snapshot()
		if len(view.ListFarms()) != 1 || len(view.ListTreesByFarm(created.ID)) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListFarms()) != 1 || len(store.ListTrees()) != 1 {
		t.Fatalf("expected persisted farm and tree")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListFarms()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListTrees()) != 1 {
		t.Fatalf("expected restored state")
	}
	tree := store.ListTrees()[0]
	if _, err := placeTree(store, tree.FarmID, "A1"); !errors.Is(err, domain.ErrCellOccupied) {
		t.Fatalf("expected cell index rebuilt from snapshot, got %v", err)
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestCreateTreeRejectsOccupiedCell(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	first, err := placeTree(store, farm.ID, "C3")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	_, err = placeTree(store, farm.ID, "C3")
	var occupied domain.CellOccupiedError
	if !errors.As(err, &occupied) {
		t.Fatalf("expected CellOccupiedError, got %v", err)
	}
	if occupied.TreeID != first.ID {
		t.Fatalf("expected occupant %s, got %s", first.ID, occupied.TreeID)
	}
	if got := len(store.ListTrees()); got != 1 {
		t.Fatalf("expected 1 tree after rejected placement, got %d", got)
	}
}

func TestCreateTreeRequiresFarm(t *testing.T) {
	store := NewStore(nil)
	if _, err := placeTree(store, "ghost", "A1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentPlacementSingleWinner(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := placeTree(store, farm.ID, "B2")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, domain.ErrCellOccupied):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one placement, got %d", wins)
	}
}

func TestUpdateTreePreservesIdentityAndCell(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	tree, err := placeTree(store, farm.ID, "D4")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.UpdateTree("missing", func(*domain.Tree) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found for missing tree, got %v", err)
		}
		updated, err := tx.UpdateTree(tree.ID, func(tr *domain.Tree) error {
			tr.Position = "A1"
			tr.FarmID = "elsewhere"
			tr.Health = domain.HealthPoor
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Position != "D4" || updated.FarmID != farm.ID {
			t.Fatalf("expected immutable placement, got %s/%s", updated.FarmID, updated.Position)
		}
		if updated.Health != domain.HealthPoor {
			t.Fatalf("expected health update")
		}
		_, err = tx.UpdateTree(tree.ID, func(*domain.Tree) error { return fmt.Errorf("boom") })
		if err == nil {
			t.Fatalf("expected mutator error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, ok := store.ExportState().Trees[tree.ID]; !ok {
		t.Fatalf("tree missing after update")
	}
}

func TestDeleteFarmCascades(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	other := seedFarm(t, store)
	tree, err := placeTree(store, farm.ID, "A1")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	kept, err := placeTree(store, other.ID, "A1")
	if err != nil {
		t.Fatalf("place other: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateIntervention(domain.Intervention{TreeID: tree.ID, Type: domain.InterventionWatering}); err != nil {
			return err
		}
		_, err := tx.CreateIntervention(domain.Intervention{TreeID: kept.ID, Type: domain.InterventionPruning})
		return err
	})
	if err != nil {
		t.Fatalf("interventions: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteFarm(farm.ID)
	}); err != nil {
		t.Fatalf("delete farm: %v", err)
	}
	if _, ok := store.GetTree(tree.ID); ok {
		t.Fatalf("expected tree cascade")
	}
	if got := len(store.ListInterventions()); got != 1 {
		t.Fatalf("expected 1 surviving intervention, got %d", got)
	}
	if _, ok := store.GetTree(kept.ID); !ok {
		t.Fatalf("other farm tree should survive")
	}
	if _, err := placeTree(store, farm.ID, "A1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted farm to be gone, got %v", err)
	}
}

func TestDeleteTreeFreesCell(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	tree, err := placeTree(store, farm.ID, "E5")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	del := func() error {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			return tx.DeleteTree(tree.ID)
		})
		return err
	}
	if err := del(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := del(); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
	if _, err := placeTree(store, farm.ID, "E5"); err != nil {
		t.Fatalf("expected cell to be free again: %v", err)
	}
}

func TestInterventionsNewestFirst(t *testing.T) {
	store := NewStore(nil)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tick := base
	store.SetNowFunc(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})
	farm := seedFarm(t, store)
	tree, err := placeTree(store, farm.ID, "A1")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	day := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	for _, typ := range []domain.InterventionType{domain.InterventionWatering, domain.InterventionHarvest} {
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateIntervention(domain.Intervention{TreeID: tree.ID, Type: typ, Date: day})
			return err
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateIntervention(domain.Intervention{TreeID: tree.ID, Type: domain.InterventionPruning, Date: day.AddDate(0, 0, -3)})
		return err
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	var got []domain.Intervention
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		got = v.ListInterventionsByTree(tree.ID)
		return nil
	})
	want := []domain.InterventionType{domain.InterventionHarvest, domain.InterventionWatering, domain.InterventionPruning}
	if len(got) != len(want) {
		t.Fatalf("expected %d interventions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i].Type)
		}
	}
}

func TestCreateInterventionValidation(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateIntervention(domain.Intervention{TreeID: "nope", Type: domain.InterventionWatering})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	farm := seedFarm(t, store)
	tree, err := placeTree(store, farm.ID, "A2")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateIntervention(domain.Intervention{TreeID: tree.ID, Type: "mulching"})
		return err
	})
	if !errors.Is(err, domain.ErrInvalidType) {
		t.Fatalf("expected invalid type, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateTree(domain.Tree{FarmID: farm.ID, Position: "A1", Species: "Figuier"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected abort error")
	}
	if got := len(store.ListTrees()); got != 0 {
		t.Fatalf("expected rollback, got %d trees", got)
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateFarm(domain.Farm{Name: "Fail", GridRows: 5, GridCols: 5})
		return e
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if len(store.ListFarms()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestRunInTransactionHonoursCancelledContext(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := store.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before fn, got err=%v called=%v", err, called)
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	res.Merge(domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}})
	return res, nil
}

func TestCommitHookRejectionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	var seen []Write
	store.SetCommitHook(func(_ context.Context, changes []domain.Change) error {
		seen = NetWrites(changes)
		return errors.New("disk full")
	})
	if _, err := placeTree(store, farm.ID, "A1"); err == nil || err.Error() != "disk full" {
		t.Fatalf("expected hook error, got %v", err)
	}
	if len(seen) != 1 || seen[0].Entity != domain.EntityTree || seen[0].Deleted() {
		t.Fatalf("expected the hook to see one tree write, got %+v", seen)
	}
	if got := len(store.ListTrees()); got != 0 {
		t.Fatalf("rejected commit must not be visible, got %d trees", got)
	}

	store.SetCommitHook(nil)
	if _, err := placeTree(store, farm.ID, "A1"); err != nil {
		t.Fatalf("cell must still be free after a rejected commit: %v", err)
	}
}

func TestCommitHookSkipsReadOnlyTransactions(t *testing.T) {
	store := NewStore(nil)
	calls := 0
	store.SetCommitHook(func(context.Context, []domain.Change) error {
		calls++
		return nil
	})
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err != nil {
		t.Fatalf("empty transaction: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no hook call for an empty transaction, got %d", calls)
	}
}

func TestNetWritesCollapsesPerRecord(t *testing.T) {
	farm := domain.Farm{ID: "f1", Name: "a"}
	renamed := domain.Farm{ID: "f1", Name: "b"}
	tree := domain.Tree{ID: "t1"}
	writes := NetWrites([]domain.Change{
		{Entity: domain.EntityFarm, Action: domain.ActionCreate, After: farm},
		{Entity: domain.EntityTree, Action: domain.ActionCreate, After: tree},
		{Entity: domain.EntityFarm, Action: domain.ActionUpdate, Before: farm, After: renamed},
		{Entity: domain.EntityTree, Action: domain.ActionDelete, Before: tree},
	})
	if len(writes) != 2 {
		t.Fatalf("expected two writes, got %+v", writes)
	}
	if writes[0].ID != "f1" || writes[0].Record.(domain.Farm).Name != "b" {
		t.Fatalf("expected the final farm state first, got %+v", writes[0])
	}
	if writes[1].ID != "t1" || !writes[1].Deleted() {
		t.Fatalf("expected the tree to end deleted, got %+v", writes[1])
	}
}

func TestWritesDoNotCopyPhotoBytes(t *testing.T) {
	store := NewStore(nil)
	farm := seedFarm(t, store)
	data := make([]byte, 1<<20)
	var tree domain.Tree
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		tree, err = tx.CreateTree(domain.Tree{FarmID: farm.ID, Position: "A1", Species: "Noyer", Photos: []domain.Photo{{ContentType: "image/jpeg", Data: data}}})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateIntervention(domain.Intervention{TreeID: tree.ID, Type: domain.InterventionObservation})
			return err
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	stored, _ := store.GetTree(tree.ID)
	if &stored.Photos[0].Data[0] != &data[0] {
		t.Fatalf("expected stored photo bytes to be shared, not copied")
	}
}
