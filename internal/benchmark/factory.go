package benchmark

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"piiguard/internal/storage"
)

// StoreResult holds the initialized result store and optional owned storage.
type StoreResult struct {
	Store   ResultStore
	Storage storage.Storage
}

// Close releases resources held by the result store.
func (r *StoreResult) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// NewStore creates a result store and its owning database connection.
// An empty storage type defaults to SQLite; "memory" skips the database
// entirely.
func NewStore(ctx context.Context, cfg storage.Config) (*StoreResult, error) {
	if cfg.Type == "memory" {
		return &StoreResult{Store: NewMemoryStore()}, nil
	}
	if cfg.Type == "" {
		cfg.Type = storage.TypeSQLite
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	resultStore, err := createStore(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &StoreResult{
		Store:   resultStore,
		Storage: store,
	}, nil
}

// NewStoreWithSharedStorage creates a result store using a shared storage connection.
func NewStoreWithSharedStorage(ctx context.Context, shared storage.Storage) (*StoreResult, error) {
	if shared == nil {
		return nil, fmt.Errorf("shared storage is required")
	}
	resultStore, err := createStore(ctx, shared)
	if err != nil {
		return nil, err
	}
	return &StoreResult{
		Store: resultStore,
	}, nil
}

func createStore(ctx context.Context, store storage.Storage) (ResultStore, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB())
	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		pgxPool, ok := pool.(*pgxpool.Pool)
		if !ok {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", pool)
		}
		return NewPostgreSQLStore(ctx, pgxPool)
	case storage.TypeMongoDB:
		db := store.MongoDatabase()
		if db == nil {
			return nil, fmt.Errorf("MongoDB database is nil")
		}
		mongoDB, ok := db.(*mongo.Database)
		if !ok {
			return nil, fmt.Errorf("invalid MongoDB database type: %T", db)
		}
		return NewMongoDBStore(mongoDB)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
