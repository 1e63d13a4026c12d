// Package sqlite persists the in-memory inventory state to an embedded SQLite
// database, one JSON row per record.
package sqlite

import (
	"arboria/internal/infra/persistence/memory"
	"arboria/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "arboria.db"

var tables = map[domain.EntityType]string{
	domain.EntityFarm:         "farms",
	domain.EntityTree:         "trees",
	domain.EntityIntervention: "interventions",
}

// Store keeps the working state in memory and writes the rows touched by each
// transaction to SQLite before the transaction becomes visible.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore constructs a SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, table := range tables {
		ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
			id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create %s table: %w", table, err)
		}
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) load() error {
	snapshot := memory.Snapshot{
		Farms:         map[string]domain.Farm{},
		Trees:         map[string]domain.Tree{},
		Interventions: map[string]domain.Intervention{},
	}
	decode := map[string]func(id string, payload []byte) error{
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
	for table, fn := range decode {
		if err := s.loadTable(table, fn); err != nil {
			return err
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) loadTable(table string, decode func(id string, payload []byte) error) error {
	rows, err := s.db.Query(`SELECT id, payload FROM ` + table)
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

// persist writes the net changes of one transaction in a single SQLite
// transaction. It runs under the memory store's writer lock.
func (s *Store) persist(ctx context.Context, changes []domain.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist sqlite: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, w := range memory.NetWrites(changes) {
		table, ok := tables[w.Entity]
		if !ok {
			continue
		}
		if w.Deleted() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, w.ID); err != nil {
				return fmt.Errorf("persist sqlite: delete %s %s: %w", table, w.ID, err)
			}
			continue
		}
		data, err := json.Marshal(w.Record)
		if err != nil {
			return fmt.Errorf("persist sqlite: encode %s %s: %w", table, w.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+`(id,payload) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, w.ID, data); err != nil {
			return fmt.Errorf("persist sqlite: upsert %s %s: %w", table, w.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist sqlite: commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
