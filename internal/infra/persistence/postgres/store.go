// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics and keeps one JSONB row per record.
package postgres

import (
	"arboria/internal/infra/persistence/memory"
	"arboria/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/arboria?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var tables = map[domain.EntityType]string{
	domain.EntityFarm:         "farms",
	domain.EntityTree:         "trees",
	domain.EntityIntervention: "interventions",
}

// Store keeps the working state in memory and writes the rows touched by each
// transaction to Postgres before the transaction becomes visible.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the record tables exist and hydrates the in-memory store from them.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	s := &Store{Store: mem, db: db}
	mem.SetCommitHook(s.persist)
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, table := range postgresTables {
		ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
			id TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure %s table: %w", table, err)
		}
	}
	return nil
}

var postgresTables = []string{"farms", "trees", "interventions"}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Farms:         map[string]domain.Farm{},
		Trees:         map[string]domain.Tree{},
		Interventions: map[string]domain.Intervention{},
	}
	decoders := map[string]func(id string, payload []byte) error{
		"farms": func(id string, payload []byte) error {
			var f domain.Farm
			err := json.Unmarshal(payload, &f)
			snapshot.Farms[id] = f
			return err
		},
		"trees": func(id string, payload []byte) error {
			var t domain.Tree
			err := json.Unmarshal(payload, &t)
			snapshot.Trees[id] = t
			return err
		},
		"interventions": func(id string, payload []byte) error {
			var i domain.Intervention
			err := json.Unmarshal(payload, &i)
			snapshot.Interventions[id] = i
			return err
		},
	}
	for _, table := range postgresTables {
		if err := loadTable(ctx, db, table, decoders[table]); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

func loadTable(ctx context.Context, db *sql.DB, table string, decode func(string, []byte) error) error {
	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM `+table)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if err := decode(id, payload); err != nil {
			return fmt.Errorf("decode %s %s: %w", table, id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

// persist writes the net changes of one transaction in a single Postgres
// transaction. It runs under the memory store's writer lock.
func (s *Store) persist(ctx context.Context, changes []domain.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist postgres: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, w := range memory.NetWrites(changes) {
		table, ok := tables[w.Entity]
		if !ok {
			continue
		}
		if w.Deleted() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, w.ID); err != nil {
				return fmt.Errorf("persist postgres: delete %s %s: %w", table, w.ID, err)
			}
			continue
		}
		data, err := json.Marshal(w.Record)
		if err != nil {
			return fmt.Errorf("persist postgres: encode %s %s: %w", table, w.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+`(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`, w.ID, data); err != nil {
			return fmt.Errorf("persist postgres: upsert %s %s: %w", table, w.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist postgres: commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
