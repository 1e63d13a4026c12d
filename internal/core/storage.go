package core

import (
	"arboria/internal/config"
	"arboria/internal/infra/persistence/memory"
	"arboria/internal/infra/persistence/mongo"
	"arboria/internal/infra/persistence/postgres"
	"arboria/internal/infra/persistence/sqlite"
	"arboria/pkg/domain"
	"context"
	"fmt"
	"io"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore builds the backend named by cfg.Driver. An empty driver
// selects sqlite.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(engine), nil
	case "", config.StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case config.StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	case config.StorageMongo:
		return mongo.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// CloseStore releases the resources of stores that hold a connection.
func CloseStore(store PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
