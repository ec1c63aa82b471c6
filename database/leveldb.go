package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBBackend stores each document under key "cache/<name>".
type LevelDBBackend struct {
	conn *leveldb.DB
}

func NewLevelDBBackend(dir string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(filepath.Join(dir, "cache.ldb"), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBBackend{conn: db}, nil
}

func cacheKey(name string) []byte {
	return []byte("cache/" + name)
}

func (l *LevelDBBackend) Load(_ context.Context, name string, v any) (bool, error) {
	data, err := l.conn.Get(cacheKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (l *LevelDBBackend) Save(_ context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return l.conn.Put(cacheKey(name), data, &opt.WriteOptions{Sync: true})
}

func (l *LevelDBBackend) Close() error {
	return l.conn.Close()
}
