package database

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// CacheDocument is the mongo envelope around one cache document.
type CacheDocument struct {
	ID        string    `bson:"_id"` // cache name
	Version   int       `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
	Doc       any       `bson:"doc"`
}

const envelopeVersion = 1

func encodeCacheDocument(name string, v any, now time.Time) ([]byte, error) {
	return bson.Marshal(CacheDocument{
		ID:        name,
		Version:   envelopeVersion,
		UpdatedAt: now.UTC().Truncate(time.Millisecond),
		Doc:       v,
	})
}

func decodeCacheDocument(raw bson.Raw, v any) error {
	var env struct {
		ID      string   `bson:"_id"`
		Version int      `bson:"version"`
		Doc     bson.Raw `bson:"doc"`
	}
	if err := bson.Unmarshal(raw, &env); err != nil {
		return err
	}
	if env.Version != envelopeVersion {
		return fmt.Errorf("cache %s: unsupported envelope version %d", env.ID, env.Version)
	}
	return bson.Unmarshal(env.Doc, v)
}
