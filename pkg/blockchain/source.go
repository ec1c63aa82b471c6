package blockchain

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"btc-walletscan/pkg/headers"
)

var (
	// ErrNotFound is returned by a source that does not know the hash.
	ErrNotFound = errors.New("not found at source")

	// ErrSyncTimeout is returned when a header request outlives its deadline.
	ErrSyncTimeout = errors.New("header sync timed out")

	// ErrNoCommonAncestor is returned when a backward walk passes the
	// checkpoint height without meeting a known header.
	ErrNoCommonAncestor = errors.New("no common ancestor above checkpoint")
)

// TipSource serves single headers by hash, with heights. The JSON-RPC
// backend implements it.
type TipSource interface {
	GetTipHash(ctx context.Context) (chainhash.Hash, error)
	GetHeader(ctx context.Context, hash chainhash.Hash) (*headers.Record, error)
}

// HeaderBatchSource serves up to wire.MaxBlockHeadersPerMsg headers following
// the first locator hash it recognizes. The peer-wire backend implements it.
type HeaderBatchSource interface {
	GetHeadersSince(ctx context.Context, locator headers.BlockLocator) ([]*wire.BlockHeader, error)
}

type BlockSource interface {
	GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error)
}
