package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cacheCollection = "caches"

// MongoBackend keeps one document per cache in the "caches" collection,
// keyed by cache name.
type MongoBackend struct {
	client *mongo.Client
	caches *mongo.Collection
}

func NewMongoBackend(client *mongo.Client, database string) *MongoBackend {
	return &MongoBackend{
		client: client,
		caches: client.Database(database).Collection(cacheCollection),
	}
}

func (m *MongoBackend) Load(ctx context.Context, name string, v any) (bool, error) {
	raw, err := m.caches.FindOne(ctx, bson.D{{Key: "_id", Value: name}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := decodeCacheDocument(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (m *MongoBackend) Save(ctx context.Context, name string, v any) error {
	doc, err := encodeCacheDocument(name, v, time.Now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	_, err = m.caches.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.Raw(doc),
		options.Replace().SetUpsert(true))
	return err
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
