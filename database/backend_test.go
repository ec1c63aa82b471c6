package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleDoc struct {
	Version int      `json:"version" bson:"version"`
	Best    string   `json:"best,omitempty" bson:"best,omitempty"`
	Items   []string `json:"items" bson:"items"`
}

func TestBackends(t *testing.T) {
	tests := map[string]func(dir string) (Backend, error){
		BackendFile: func(dir string) (Backend, error) { return NewFileBackend(dir) },
		BackendLevelDB: func(dir string) (Backend, error) {
			return NewLevelDBBackend(dir)
		},
		BackendBolt: func(dir string) (Backend, error) { return NewBoltBackend(dir) },
	}

	for name, open := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			b, err := open(dir)
			require.NoError(t, err)

			var got sampleDoc
			found, err := b.Load(ctx, "headers", &got)
			require.NoError(t, err)
			assert.False(t, found)

			want := sampleDoc{Version: 1, Best: "00ff", Items: []string{"a", "b"}}
			require.NoError(t, b.Save(ctx, "headers", &want))
			require.NoError(t, b.Save(ctx, "wallet", &sampleDoc{Version: 2}))

			found, err = b.Load(ctx, "headers", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, want, got)

			want.Items = append(want.Items, "c")
			require.NoError(t, b.Save(ctx, "headers", &want))
			require.NoError(t, b.Close())

			// Survives reopening.
			b, err = open(dir)
			require.NoError(t, err)
			defer b.Close()

			got = sampleDoc{}
			found, err = b.Load(ctx, "headers", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []string{"a", "b", "c"}, got.Items)
		})
	}
}

func TestFileBackendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, b.Save(context.Background(), "peers", &sampleDoc{Version: 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cache-peers.json", entries[0].Name())
}

func TestFileBackendCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache-wallet.json"), []byte("{not json"), 0o600))

	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	_, err = b.Load(context.Background(), "wallet", &sampleDoc{})
	require.Error(t, err)
}

func TestBoltBackendIsExclusive(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBoltBackend(dir)
	require.NoError(t, err)
	defer b.Close()

	_, err = NewBoltBackend(dir)
	require.Error(t, err)
}

func TestCacheDocumentEnvelope(t *testing.T) {
	want := sampleDoc{Version: 1, Best: "abcd", Items: []string{"x"}}
	raw, err := encodeCacheDocument("headers", &want, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	var got sampleDoc
	require.NoError(t, decodeCacheDocument(raw, &got))
	assert.Equal(t, want, got)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "redis"})
	require.Error(t, err)
}
