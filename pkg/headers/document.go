package headers

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const documentVersion = 1

// Document is the persisted form of a Store: hex hashes and a height-sorted
// list so the cache stays readable by hand.
type Document struct {
	Version     int         `json:"version" bson:"version"`
	Checkpoint  string      `json:"checkpoint" bson:"checkpoint"`
	BestHash    string      `json:"best_hash,omitempty" bson:"best_hash,omitempty"`
	PendingWant string      `json:"pending_want,omitempty" bson:"pending_want,omitempty"`
	Headers     []RecordDoc `json:"headers" bson:"headers"`
}

type RecordDoc struct {
	Hash       string `json:"hash" bson:"hash"`
	Height     int32  `json:"height" bson:"height"`
	Time       int64  `json:"time" bson:"time"`
	MerkleRoot string `json:"merkle_root" bson:"merkle_root"`
	PrevHash   string `json:"prev_hash,omitempty" bson:"prev_hash,omitempty"`
	NextHash   string `json:"next_hash,omitempty" bson:"next_hash,omitempty"`
}

func (s *Store) Document() *Document {
	doc := &Document{
		Version:     documentVersion,
		Checkpoint:  s.checkpoint.String(),
		BestHash:    hashString(s.best),
		PendingWant: hashString(s.want),
		Headers:     make([]RecordDoc, 0, len(s.headers)),
	}
	for _, rec := range s.headers {
		doc.Headers = append(doc.Headers, RecordDoc{
			Hash:       rec.Hash.String(),
			Height:     rec.Height,
			Time:       rec.Time,
			MerkleRoot: rec.MerkleRoot.String(),
			PrevHash:   hashString(rec.PrevHash),
			NextHash:   hashString(rec.NextHash),
		})
	}
	sort.Slice(doc.Headers, func(i, j int) bool {
		if doc.Headers[i].Height != doc.Headers[j].Height {
			return doc.Headers[i].Height < doc.Headers[j].Height
		}
		return doc.Headers[i].Hash < doc.Headers[j].Hash
	})
	return doc
}

// StoreFromDocument rebuilds a Store. The result is clean.
func StoreFromDocument(doc *Document) (*Store, error) {
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported header cache version: %d", doc.Version)
	}

	s := &Store{
		headers: make(map[chainhash.Hash]*Record, len(doc.Headers)),
		waiting: make(map[chainhash.Hash]chainhash.Hash),
	}

	var err error
	if s.checkpoint, err = parseHash("checkpoint", doc.Checkpoint); err != nil {
		return nil, err
	}
	if s.best, err = parseHash("best_hash", doc.BestHash); err != nil {
		return nil, err
	}
	if s.want, err = parseHash("pending_want", doc.PendingWant); err != nil {
		return nil, err
	}

	for _, item := range doc.Headers {
		rec := &Record{Height: item.Height, Time: item.Time}
		if rec.Hash, err = parseHash("hash", item.Hash); err != nil {
			return nil, err
		}
		if rec.MerkleRoot, err = parseHash("merkle_root", item.MerkleRoot); err != nil {
			return nil, err
		}
		if rec.PrevHash, err = parseHash("prev_hash", item.PrevHash); err != nil {
			return nil, err
		}
		if rec.NextHash, err = parseHash("next_hash", item.NextHash); err != nil {
			return nil, err
		}
		if _, exists := s.headers[rec.Hash]; exists {
			return nil, fmt.Errorf("duplicate header %s", item.Hash)
		}
		s.headers[rec.Hash] = rec
	}

	if !s.Has(s.checkpoint) {
		return nil, fmt.Errorf("checkpoint %s missing from header cache", s.checkpoint)
	}
	if s.best != zeroHash && !s.Has(s.best) {
		return nil, fmt.Errorf("best hash %s missing from header cache", s.best)
	}

	for hash, rec := range s.headers {
		if hash == s.checkpoint || !rec.HasPrev() {
			continue
		}
		if !s.Has(rec.PrevHash) {
			s.waiting[rec.PrevHash] = hash
		}
	}

	return s, nil
}

func hashString(h chainhash.Hash) string {
	if h == zeroHash {
		return ""
	}
	return h.String()
}

func parseHash(field, s string) (chainhash.Hash, error) {
	if s == "" {
		return zeroHash, nil
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return zeroHash, fmt.Errorf("%s: %w", field, err)
	}
	return *h, nil
}
