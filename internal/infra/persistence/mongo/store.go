// Package mongo persists the in-memory inventory state to MongoDB, one
// document per farm, tree and intervention.
package mongo

import (
	"arboria/internal/infra/persistence/memory"
	"arboria/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	// DefaultURI targets a local server.
	DefaultURI = "mongodb://localhost:27017"
	// DefaultDatabase is used when no database name is configured.
	DefaultDatabase = "arboria_db"
	connectTimeout  = 10 * time.Second
	// MaxPayloadBytes keeps each document under MongoDB's 16 MiB limit with
	// room for the id and timestamp fields.
	MaxPayloadBytes = 16*1024*1024 - 4096
)

// Collection names.
const (
	FarmsCollection         = "farms"
	TreesCollection         = "trees"
	InterventionsCollection = "interventions"
)

var collections = map[domain.EntityType]string{
	domain.EntityFarm:         FarmsCollection,
	domain.EntityTree:         TreesCollection,
	domain.EntityIntervention: InterventionsCollection,
}

// RecordDocument is the stored shape of one record.
type RecordDocument struct {
	ID        string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Op is one pending write. Doc is nil for deletes.
type Op struct {
	Collection string
	ID         string
	Doc        *RecordDocument
}

// Database is the subset of database behaviour the store relies on.
type Database interface {
	Load(ctx context.Context, collection string) ([]RecordDocument, error)
	Apply(ctx context.Context, ops []Op) error
}

// Store reuses the memory store for transactions and writes every committed
// change to MongoDB before it becomes visible.
type Store struct {
	*memory.Store
	db     Database
	client *mongo.Client
	nowFn  func() time.Time
}

// NewStore connects to uri and hydrates state from database.
func NewStore(ctx context.Context, uri, database string, engine *domain.RulesEngine) (*Store, error) {
	if uri == "" {
		uri = DefaultURI
	}
	if database == "" {
		database = DefaultDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	store, err := NewStoreWithDatabase(ctx, mongoDatabase{db: client.Database(database)}, engine)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	store.client = client
	return store, nil
}

// NewStoreWithDatabase builds a store over an existing database implementation.
func NewStoreWithDatabase(ctx context.Context, db Database, engine *domain.RulesEngine) (*Store, error) {
	snapshot := memory.Snapshot{
		Farms:         map[string]domain.Farm{},
		Trees:         map[string]domain.Tree{},
		Interventions: map[string]domain.Intervention{},
	}
	decoders := map[string]func(doc RecordDocument) error{
		FarmsCollection: func(doc RecordDocument) error {
			var f domain.Farm
			err := json.Unmarshal([]byte(doc.Payload), &f)
			snapshot.Farms[doc.ID] = f
			return err
		},
		TreesCollection: func(doc RecordDocument) error {
			var t domain.Tree
			err := json.Unmarshal([]byte(doc.Payload), &t)
			snapshot.Trees[doc.ID] = t
			return err
		},
		InterventionsCollection: func(doc RecordDocument) error {
			var i domain.Intervention
			err := json.Unmarshal([]byte(doc.Payload), &i)
			snapshot.Interventions[doc.ID] = i
			return err
		},
	}
	for _, name := range []string{FarmsCollection, TreesCollection, InterventionsCollection} {
		docs, err := db.Load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		for _, doc := range docs {
			if err := decoders[name](doc); err != nil {
				return nil, fmt.Errorf("decode %s %s: %w", name, doc.ID, err)
			}
		}
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	s := &Store{Store: mem, db: db, nowFn: time.Now}
	mem.SetCommitHook(s.persist)
	return s, nil
}

// persist encodes every net write first, so an oversized record rejects the
// transaction before anything reaches the server.
func (s *Store) persist(ctx context.Context, changes []domain.Change) error {
	now := s.nowFn().UTC()
	writes := memory.NetWrites(changes)
	ops := make([]Op, 0, len(writes))
	for _, w := range writes {
		name, ok := collections[w.Entity]
		if !ok {
			continue
		}
		if w.Deleted() {
			ops = append(ops, Op{Collection: name, ID: w.ID})
			continue
		}
		data, err := json.Marshal(w.Record)
		if err != nil {
			return fmt.Errorf("persist mongo: encode %s %s: %w", name, w.ID, err)
		}
		if len(data) > MaxPayloadBytes {
			return domain.InputError{
				Field:  string(w.Entity),
				Reason: fmt.Sprintf("%s %s encodes to %d bytes, above the %d byte document limit", w.Entity, w.ID, len(data), MaxPayloadBytes),
			}
		}
		ops = append(ops, Op{Collection: name, ID: w.ID, Doc: &RecordDocument{ID: w.ID, Payload: string(data), UpdatedAt: now}})
	}
	if len(ops) == 0 {
		return nil
	}
	if err := s.db.Apply(ctx, ops); err != nil {
		return fmt.Errorf("persist mongo: %w", err)
	}
	return nil
}

// Close disconnects the client when the store owns one.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

type mongoDatabase struct {
	db *mongo.Database
}

func (m mongoDatabase) Load(ctx context.Context, collection string) ([]RecordDocument, error) {
	cursor, err := m.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var docs []RecordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Apply issues one ordered bulk write per collection.
func (m mongoDatabase) Apply(ctx context.Context, ops []Op) error {
	order := make([]string, 0, len(collections))
	models := make(map[string][]mongo.WriteModel, len(collections))
	for _, op := range ops {
		if _, seen := models[op.Collection]; !seen {
			order = append(order, op.Collection)
		}
		var model mongo.WriteModel
		if op.Doc == nil {
			model = mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": op.ID})
		} else {
			model = mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": op.ID}).SetReplacement(op.Doc).SetUpsert(true)
		}
		models[op.Collection] = append(models[op.Collection], model)
	}
	for _, name := range order {
		if _, err := m.db.Collection(name).BulkWrite(ctx, models[name], options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("bulk write %s: %w", name, err)
		}
	}
	return nil
}
