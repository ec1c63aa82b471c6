// Package headers keeps the local index of block headers: a hash-keyed map
// whose records link to their parent and to their child on the accepted chain.
package headers

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrOrphanHeader is returned by Insert when the parent is unknown.
	ErrOrphanHeader = errors.New("orphan header")

	// ErrDuplicateHeader is returned when the hash is already indexed. It
	// signals an idempotent no-op, not a failure.
	ErrDuplicateHeader = errors.New("duplicate header")

	// ErrHeaderInconsistent is returned when a header's height does not
	// follow its parent's.
	ErrHeaderInconsistent = errors.New("inconsistent header")

	// ErrUnknownHash is returned when a lookup misses.
	ErrUnknownHash = errors.New("hash not in header store")
)

// Record is one indexed block header. PrevHash is zero only for the
// checkpoint record and NextHash is zero for the tip or abandoned branches.
type Record struct {
	Hash       chainhash.Hash
	Height     int32
	Time       int64
	MerkleRoot chainhash.Hash
	PrevHash   chainhash.Hash
	NextHash   chainhash.Hash
}

// RecordFromHeader converts a wire header. Height is left at zero so Insert
// derives it from the parent.
func RecordFromHeader(hdr *wire.BlockHeader) *Record {
	return &Record{
		Hash:       hdr.BlockHash(),
		Time:       hdr.Timestamp.Unix(),
		MerkleRoot: hdr.MerkleRoot,
		PrevHash:   hdr.PrevBlock,
	}
}

func (r *Record) HasNext() bool {
	return r.NextHash != zeroHash
}

func (r *Record) HasPrev() bool {
	return r.PrevHash != zeroHash
}

var zeroHash chainhash.Hash

// Store is the chain state: all known headers, the checkpoint the chain is
// rooted at, the accepted tip and the in-progress backward walk target.
//
// Store is not safe for concurrent use; one sync or scan owns it at a time.
type Store struct {
	headers    map[chainhash.Hash]*Record
	checkpoint chainhash.Hash
	best       chainhash.Hash
	want       chainhash.Hash

	// waiting maps a missing parent hash to the attached child that needs
	// it. Rebuilt on load, never persisted.
	waiting map[chainhash.Hash]chainhash.Hash

	dirty bool
}

// NewStore seeds a store with a single checkpoint record.
func NewStore(checkpoint Record) *Store {
	cp := checkpoint
	cp.PrevHash = zeroHash
	cp.NextHash = zeroHash

	return &Store{
		headers:    map[chainhash.Hash]*Record{cp.Hash: &cp},
		checkpoint: cp.Hash,
		waiting:    make(map[chainhash.Hash]chainhash.Hash),
	}
}

func (s *Store) Checkpoint() chainhash.Hash { return s.checkpoint }

// Best returns the accepted tip and whether one has been set yet.
func (s *Store) Best() (chainhash.Hash, bool) {
	return s.best, s.best != zeroHash
}

// BestRecord returns the tip record, or the checkpoint before the first sync.
func (s *Store) BestRecord() *Record {
	if s.best != zeroHash {
		if rec, ok := s.headers[s.best]; ok {
			return rec
		}
	}
	return s.headers[s.checkpoint]
}

func (s *Store) PendingWant() (chainhash.Hash, bool) {
	return s.want, s.want != zeroHash
}

func (s *Store) SetPendingWant(hash chainhash.Hash) {
	if s.want == hash {
		return
	}
	s.want = hash
	s.dirty = true
}

func (s *Store) ClearPendingWant() {
	s.SetPendingWant(zeroHash)
}

func (s *Store) Has(hash chainhash.Hash) bool {
	_, ok := s.headers[hash]
	return ok
}

// Get returns a copy of the record for hash.
func (s *Store) Get(hash chainhash.Hash) (Record, error) {
	rec, ok := s.headers[hash]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownHash, hash)
	}
	return *rec, nil
}

func (s *Store) Len() int { return len(s.headers) }

func (s *Store) Dirty() bool { return s.dirty }

func (s *Store) ClearDirty() { s.dirty = false }

// Insert admits a header whose parent is already indexed. The height is
// derived from the parent; a non-zero height that disagrees is rejected.
// Orphans and duplicates leave the store untouched.
func (s *Store) Insert(rec *Record) error {
	if _, ok := s.headers[rec.Hash]; ok {
		return ErrDuplicateHeader
	}

	parent, ok := s.headers[rec.PrevHash]
	if !ok || rec.PrevHash == zeroHash {
		return fmt.Errorf("%w: %s (prev %s)", ErrOrphanHeader, rec.Hash, rec.PrevHash)
	}

	height := parent.Height + 1
	if rec.Height != 0 && rec.Height != height {
		return fmt.Errorf("%w: %s at height %d, parent at %d", ErrHeaderInconsistent,
			rec.Hash, rec.Height, parent.Height)
	}

	stored := *rec
	stored.Height = height
	stored.NextHash = zeroHash
	s.admit(&stored)
	s.link(parent, &stored)

	return nil
}

// Attach admits a header fetched during a backward walk, whose parent may
// not be indexed yet. The record waits for its parent; once the parent is
// attached the two are linked and, if the run now hangs off an indexed
// parent, the end of the run competes for the tip.
func (s *Store) Attach(rec *Record) error {
	if _, ok := s.headers[rec.Hash]; ok {
		return ErrDuplicateHeader
	}

	parent, hasParent := s.headers[rec.PrevHash]
	if hasParent && rec.Height != parent.Height+1 {
		return fmt.Errorf("%w: %s at height %d, parent at %d", ErrHeaderInconsistent,
			rec.Hash, rec.Height, parent.Height)
	}

	stored := *rec
	stored.NextHash = zeroHash
	s.admit(&stored)

	if hasParent {
		s.link(parent, &stored)
		return nil
	}
	if stored.PrevHash != zeroHash {
		s.waiting[stored.PrevHash] = stored.Hash
	}
	return nil
}

// admit stores rec and adopts a child that was waiting for it.
func (s *Store) admit(rec *Record) {
	s.headers[rec.Hash] = rec
	if child, ok := s.waiting[rec.Hash]; ok {
		rec.NextHash = child
		delete(s.waiting, rec.Hash)
	}
	s.dirty = true
}

// link points parent at child, replacing any previous child, and promotes the
// end of child's run to tip if it is higher.
func (s *Store) link(parent, child *Record) {
	parent.NextHash = child.Hash

	end := child
	for end.HasNext() {
		next, ok := s.headers[end.NextHash]
		if !ok {
			break
		}
		end = next
	}

	if s.best == zeroHash {
		s.best = end.Hash
		return
	}
	if tip, ok := s.headers[s.best]; !ok || end.Height > tip.Height {
		s.best = end.Hash
	}
}

// DropRun removes the run of unlinked headers waiting for parent, as left by a
// backward walk that never reached an indexed header. It returns the number
// of records removed.
func (s *Store) DropRun(parent chainhash.Hash) int {
	hash, ok := s.waiting[parent]
	if !ok {
		return 0
	}
	delete(s.waiting, parent)

	n := 0
	for hash != zeroHash && hash != s.checkpoint {
		rec, ok := s.headers[hash]
		if !ok {
			break
		}
		delete(s.headers, hash)
		n++
		hash = rec.NextHash
	}
	if n > 0 {
		s.dirty = true
	}
	return n
}

// SetBest marks hash as the tip. It is used when a run of headers is known to
// be the source's best chain even though its height did not increase.
func (s *Store) SetBest(hash chainhash.Hash) error {
	if !s.Has(hash) {
		return fmt.Errorf("%w: %s", ErrUnknownHash, hash)
	}
	if s.best != hash {
		s.best = hash
		s.dirty = true
	}
	return nil
}

// WalkBackward lists from and its ancestors, closest first, stopping at the
// checkpoint, a missing parent or max entries.
func (s *Store) WalkBackward(from chainhash.Hash, max int) []chainhash.Hash {
	var out []chainhash.Hash
	hash := from
	for len(out) < max {
		rec, ok := s.headers[hash]
		if !ok {
			break
		}
		out = append(out, hash)
		if hash == s.checkpoint || !rec.HasPrev() {
			break
		}
		hash = rec.PrevHash
	}
	return out
}

// WalkForward returns an iterator over the NextHash links after from.
func (s *Store) WalkForward(from chainhash.Hash) *Iterator {
	return &Iterator{store: s, cur: from}
}

// Iterator yields successive records along NextHash links. It stops at the
// tip, or early at a gap where no NextHash is known yet. It reads the store
// lazily, so headers linked after creation are picked up by later calls.
type Iterator struct {
	store *Store
	cur   chainhash.Hash
	gap   bool
	done  bool
}

// Next advances and reports whether a record is available.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.cur == it.store.best {
		it.done = true
		return false
	}
	rec, ok := it.store.headers[it.cur]
	if !ok || !rec.HasNext() {
		it.gap = true
		it.done = true
		return false
	}
	if _, ok := it.store.headers[rec.NextHash]; !ok {
		it.gap = true
		it.done = true
		return false
	}
	it.cur = rec.NextHash
	return true
}

// Record returns the record the iterator is positioned on.
func (it *Iterator) Record() Record {
	return *it.store.headers[it.cur]
}

// Gap reports whether iteration stopped before reaching the tip.
func (it *Iterator) Gap() bool { return it.gap }

// Restart repositions the iterator after from.
func (it *Iterator) Restart(from chainhash.Hash) {
	it.cur = from
	it.gap = false
	it.done = false
}
