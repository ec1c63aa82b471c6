package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCaches = []byte("caches")

// BoltBackend stores documents in one bucket of a bbolt file. bbolt holds an
// exclusive file lock, so a second process fails to open the same cache.
type BoltBackend struct {
	db *bolt.DB
}

func NewBoltBackend(dir string) (*BoltBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	bdb, err := bolt.Open(filepath.Join(dir, "cache.db"), 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCaches)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketCaches, err)
	}
	return &BoltBackend{db: bdb}, nil
}

func (b *BoltBackend) Load(_ context.Context, name string, v any) (bool, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketCaches).Get([]byte(name)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (b *BoltBackend) Save(_ context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCaches).Put([]byte(name), data)
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
