// Package database stores the scanner's cache documents. Every backend keeps
// one opaque document per cache name and replaces it whole on save.
package database

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend persists named documents. Load reports false, with no error, when
// nothing has been saved under name yet.
type Backend interface {
	Load(ctx context.Context, name string, v any) (bool, error)
	Save(ctx context.Context, name string, v any) error
	Close() error
}

type Config struct {
	Backend       string
	Dir           string
	MongoURI      string
	MongoDatabase string
}

const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMongo   = "mongo"
)

func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileBackend(cfg.Dir)
	case BackendLevelDB:
		return NewLevelDBBackend(cfg.Dir)
	case BackendBolt:
		return NewBoltBackend(cfg.Dir)
	case BackendMongo:
		client, err := NewMongoDBConnection(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return NewMongoBackend(client, cfg.MongoDatabase), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
