package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoRunDocument struct {
	ID        string `bson:"_id"`
	CreatedAt int64  `bson:"created_at"`
	Detector  string `bson:"detector"`
	Dataset   string `bson:"dataset"`
	Data      []byte `bson:"data"`
}

// MongoDBStore stores runs in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("benchmark_runs")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "detector", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create benchmark_runs indexes: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// Save inserts a new run.
func (s *MongoDBStore) Save(ctx context.Context, run *Run) error {
	payload, err := serializeRun(run)
	if err != nil {
		return err
	}

	doc := mongoRunDocument{
		ID:        run.ID,
		CreatedAt: run.CreatedAt,
		Detector:  run.Detector,
		Dataset:   run.Dataset,
		Data:      payload,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get returns a run by id.
func (s *MongoDBStore) Get(ctx context.Context, id string) (*Run, error) {
	var doc mongoRunDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	run, err := deserializeRun(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

// List returns runs ordered by created_at desc, id desc.
func (s *MongoDBStore) List(ctx context.Context, limit int, after string) ([]*Run, error) {
	limit = normalizeLimit(limit)
	filter := bson.M{}

	if after != "" {
		var cursorDoc mongoRunDocument
		err := s.collection.FindOne(ctx, bson.M{"_id": after}).Decode(&cursorDoc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
		filter = bson.M{
			"$or": bson.A{
				bson.M{"created_at": bson.M{"$lt": cursorDoc.CreatedAt}},
				bson.M{
					"created_at": cursorDoc.CreatedAt,
					"_id":        bson.M{"$lt": cursorDoc.ID},
				},
			},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*Run, 0, limit)
	for cursor.Next(ctx) {
		var doc mongoRunDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode run document: %w", err)
		}
		run, err := deserializeRun(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("decode run payload: %w", err)
		}
		items = append(items, run)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs cursor: %w", err)
	}

	return items, nil
}

// Close is a no-op; Mongo client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
