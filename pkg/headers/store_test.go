package headers

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cpHeight = 1000

func fakeHash(label string) chainhash.Hash {
	return chainhash.DoubleHashH([]byte(label))
}

func testCheckpoint() Record {
	return Record{Hash: fakeHash("H0"), Height: cpHeight, Time: 1_600_000_000}
}

// chainFrom builds n records on top of parent, labelled prefix1..prefixN.
func chainFrom(parent Record, prefix string, n int) []*Record {
	out := make([]*Record, 0, n)
	prev := parent
	for i := 1; i <= n; i++ {
		rec := &Record{
			Hash:     fakeHash(fmt.Sprintf("%s%d", prefix, i)),
			Height:   prev.Height + 1,
			Time:     prev.Time + 600,
			PrevHash: prev.Hash,
		}
		out = append(out, rec)
		prev = *rec
	}
	return out
}

func TestInsert(t *testing.T) {
	t.Run("links chain and advances tip", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		recs := chainFrom(testCheckpoint(), "H", 3)
		for _, r := range recs {
			in := *r
			in.Height = 0
			require.NoError(t, s.Insert(&in))
		}

		best, ok := s.Best()
		require.True(t, ok)
		assert.Equal(t, recs[2].Hash, best)

		h0, err := s.Get(testCheckpoint().Hash)
		require.NoError(t, err)
		assert.Equal(t, recs[0].Hash, h0.NextHash)

		h2, err := s.Get(recs[1].Hash)
		require.NoError(t, err)
		assert.Equal(t, int32(cpHeight+2), h2.Height)
		assert.Equal(t, recs[2].Hash, h2.NextHash)
	})

	t.Run("duplicate is idempotent", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		rec := chainFrom(testCheckpoint(), "H", 1)[0]
		require.NoError(t, s.Insert(rec))
		before := s.Document()

		err := s.Insert(rec)
		require.ErrorIs(t, err, ErrDuplicateHeader)
		assert.Equal(t, before, s.Document())
	})

	t.Run("orphan leaves store untouched", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		s.ClearDirty()
		before := s.Document()

		orphan := &Record{Hash: fakeHash("X"), PrevHash: fakeHash("unknown")}
		err := s.Insert(orphan)
		require.ErrorIs(t, err, ErrOrphanHeader)

		assert.Equal(t, before, s.Document())
		assert.False(t, s.Dirty())
		_, ok := s.Best()
		assert.False(t, ok)
	})

	t.Run("zero parent is orphan", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		err := s.Insert(&Record{Hash: fakeHash("genesis-like")})
		require.ErrorIs(t, err, ErrOrphanHeader)
	})

	t.Run("inconsistent height", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		rec := chainFrom(testCheckpoint(), "H", 1)[0]
		rec.Height = cpHeight + 5
		require.ErrorIs(t, s.Insert(rec), ErrHeaderInconsistent)
		assert.False(t, s.Has(rec.Hash))
	})

	t.Run("competing child overwrites next link", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		main := chainFrom(testCheckpoint(), "H", 2)
		for _, r := range main {
			require.NoError(t, s.Insert(r))
		}

		// A sibling of H2 at the same height replaces the link but not the tip.
		sibling := chainFrom(*main[0], "S", 1)[0]
		require.NoError(t, s.Insert(sibling))

		h1, _ := s.Get(main[0].Hash)
		assert.Equal(t, sibling.Hash, h1.NextHash)
		best, _ := s.Best()
		assert.Equal(t, main[1].Hash, best)

		// Extending the sibling branch makes it the tip.
		ext := chainFrom(*sibling, "S2-", 1)[0]
		require.NoError(t, s.Insert(ext))
		best, _ = s.Best()
		assert.Equal(t, ext.Hash, best)
	})
}

func TestAttachBackwardWalk(t *testing.T) {
	s := NewStore(testCheckpoint())
	recs := chainFrom(testCheckpoint(), "H", 3)

	// Arrival order of a backward walk: H3, H2, H1.
	require.NoError(t, s.Attach(recs[2]))
	_, ok := s.Best()
	assert.False(t, ok, "disconnected run must not become tip")

	require.NoError(t, s.Attach(recs[1]))
	require.NoError(t, s.Attach(recs[0]))

	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, recs[2].Hash, best)

	want := map[chainhash.Hash]chainhash.Hash{
		testCheckpoint().Hash: recs[0].Hash,
		recs[0].Hash:          recs[1].Hash,
		recs[1].Hash:          recs[2].Hash,
	}
	for parent, child := range want {
		rec, err := s.Get(parent)
		require.NoError(t, err)
		assert.Equal(t, child, rec.NextHash)
	}
	assert.Empty(t, s.waiting)

	require.ErrorIs(t, s.Attach(recs[1]), ErrDuplicateHeader)
}

func TestAttachResumesAfterReload(t *testing.T) {
	s := NewStore(testCheckpoint())
	recs := chainFrom(testCheckpoint(), "H", 3)
	require.NoError(t, s.Attach(recs[2]))
	require.NoError(t, s.Attach(recs[1]))
	s.SetPendingWant(recs[0].Hash)

	reloaded, err := StoreFromDocument(s.Document())
	require.NoError(t, err)

	want, ok := reloaded.PendingWant()
	require.True(t, ok)
	assert.Equal(t, recs[0].Hash, want)

	require.NoError(t, reloaded.Attach(recs[0]))
	best, _ := reloaded.Best()
	assert.Equal(t, recs[2].Hash, best)
	h1, _ := reloaded.Get(recs[0].Hash)
	assert.Equal(t, recs[1].Hash, h1.NextHash)
}

func TestDropRun(t *testing.T) {
	s := NewStore(testCheckpoint())
	assert.False(t, s.Dirty(), "a fresh store has nothing to save")

	foreign := Record{Hash: fakeHash("F0"), Height: cpHeight}
	recs := chainFrom(foreign, "F", 3)
	require.NoError(t, s.Attach(recs[2]))
	require.NoError(t, s.Attach(recs[1]))
	require.NoError(t, s.Attach(recs[0]))
	s.ClearDirty()

	assert.Equal(t, 0, s.DropRun(fakeHash("nothing waits on this")))
	assert.False(t, s.Dirty())

	assert.Equal(t, 3, s.DropRun(foreign.Hash))
	assert.True(t, s.Dirty())
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.waiting)
	_, ok := s.Best()
	assert.False(t, ok)

	// The accepted chain is untouched.
	main := chainFrom(testCheckpoint(), "H", 2)
	require.NoError(t, s.Insert(main[0]))
	require.NoError(t, s.Insert(main[1]))
	assert.Equal(t, 0, s.DropRun(testCheckpoint().Hash))
	assert.Equal(t, 3, s.Len())
}

func TestAttachInconsistentHeight(t *testing.T) {
	s := NewStore(testCheckpoint())
	rec := chainFrom(testCheckpoint(), "H", 1)[0]
	rec.Height = 7
	require.ErrorIs(t, s.Attach(rec), ErrHeaderInconsistent)
}

func TestWalkBackward(t *testing.T) {
	s := NewStore(testCheckpoint())
	recs := chainFrom(testCheckpoint(), "H", 5)
	for _, r := range recs {
		require.NoError(t, s.Insert(r))
	}

	got := s.WalkBackward(recs[4].Hash, 3)
	assert.Equal(t, []chainhash.Hash{recs[4].Hash, recs[3].Hash, recs[2].Hash}, got)

	got = s.WalkBackward(recs[1].Hash, 10)
	assert.Equal(t, []chainhash.Hash{recs[1].Hash, recs[0].Hash, testCheckpoint().Hash}, got)

	assert.Empty(t, s.WalkBackward(fakeHash("nope"), 10))
}

func TestWalkForward(t *testing.T) {
	s := NewStore(testCheckpoint())
	recs := chainFrom(testCheckpoint(), "H", 4)
	for _, r := range recs[:2] {
		require.NoError(t, s.Insert(r))
	}

	it := s.WalkForward(testCheckpoint().Hash)
	var seen []chainhash.Hash
	for it.Next() {
		seen = append(seen, it.Record().Hash)
	}
	assert.Equal(t, []chainhash.Hash{recs[0].Hash, recs[1].Hash}, seen)
	assert.False(t, it.Gap())

	// Records linked later are visible after a restart.
	for _, r := range recs[2:] {
		require.NoError(t, s.Insert(r))
	}
	it.Restart(recs[1].Hash)
	seen = seen[:0]
	for it.Next() {
		seen = append(seen, it.Record().Hash)
	}
	assert.Equal(t, []chainhash.Hash{recs[2].Hash, recs[3].Hash}, seen)

	t.Run("gap", func(t *testing.T) {
		s := NewStore(testCheckpoint())
		run := chainFrom(testCheckpoint(), "G", 2)
		require.NoError(t, s.Attach(run[1]))
		// Pretend the tip was announced before the gap is filled.
		s.best = run[1].Hash

		it := s.WalkForward(testCheckpoint().Hash)
		assert.False(t, it.Next())
		assert.True(t, it.Gap())
	})
}

func TestBlockLocator(t *testing.T) {
	s := NewStore(testCheckpoint())
	recs := chainFrom(testCheckpoint(), "H", 40)
	for _, r := range recs {
		require.NoError(t, s.Insert(r))
	}

	loc := s.BlockLocator(recs[39].Hash)
	require.NotEmpty(t, loc)

	heights := make([]int32, 0, len(loc))
	for _, h := range loc {
		rec, err := s.Get(*h)
		require.NoError(t, err)
		heights = append(heights, rec.Height)
	}

	assert.Equal(t, int32(cpHeight+40), heights[0])
	// Dense for the first entries.
	for i := 1; i <= 10; i++ {
		assert.Equal(t, heights[0]-int32(i), heights[i])
	}
	// Then sparse, strictly decreasing.
	for i := 1; i < len(heights); i++ {
		assert.Less(t, heights[i], heights[i-1])
	}
	assert.Equal(t, testCheckpoint().Hash, *loc[len(loc)-1])

	t.Run("from checkpoint", func(t *testing.T) {
		loc := s.BlockLocator(testCheckpoint().Hash)
		require.Len(t, loc, 1)
		assert.Equal(t, testCheckpoint().Hash, *loc[0])
	})

	t.Run("unknown start", func(t *testing.T) {
		loc := s.BlockLocator(fakeHash("nope"))
		require.Len(t, loc, 1)
		assert.Equal(t, testCheckpoint().Hash, *loc[0])
	})
}

func TestDocumentRoundTrip(t *testing.T) {
	s := NewStore(testCheckpoint())
	for _, r := range chainFrom(testCheckpoint(), "H", 3) {
		require.NoError(t, s.Insert(r))
	}

	doc := s.Document()
	reloaded, err := StoreFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, reloaded.Document())
	assert.False(t, reloaded.Dirty())

	t.Run("rejects bad version", func(t *testing.T) {
		bad := *doc
		bad.Version = 99
		_, err := StoreFromDocument(&bad)
		require.Error(t, err)
	})

	t.Run("rejects missing checkpoint", func(t *testing.T) {
		bad := *doc
		bad.Headers = bad.Headers[1:]
		_, err := StoreFromDocument(&bad)
		require.Error(t, err)
	})
}

func TestDefaultCheckpoint(t *testing.T) {
	main := DefaultCheckpoint(&chaincfg.MainNetParams)
	assert.Equal(t, int32(423000), main.Height)
	assert.Equal(t, "000000000000000001910d9f594aea0950d580d08c07ec324d0573bd3272ae86", main.Hash.String())

	reg := DefaultCheckpoint(&chaincfg.RegressionNetParams)
	assert.Equal(t, int32(0), reg.Height)
	assert.Equal(t, *chaincfg.RegressionNetParams.GenesisHash, reg.Hash)
}

func TestFastLog2Floor(t *testing.T) {
	tests := map[uint32]uint8{1: 0, 2: 1, 3: 1, 4: 2, 1023: 9, 1024: 10, 1 << 20: 20}
	for n, want := range tests {
		assert.Equal(t, want, fastLog2Floor(n), "n=%d", n)
	}
}
