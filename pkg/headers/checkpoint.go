package headers

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// mainnetCheckpoint is block 423000. Nothing before it is ever scanned on
// mainnet, which keeps first-run syncs short.
var mainnetCheckpoint = Record{
	Hash:       mustHash("000000000000000001910d9f594aea0950d580d08c07ec324d0573bd3272ae86"),
	Height:     423000,
	Time:       1469961500,
	MerkleRoot: mustHash("9ea055f22d0906eb8492985b7b5350de95b4942278d00d234108e39ad8c509b3"),
}

// DefaultCheckpoint returns the record a fresh header store is seeded with.
// Networks without a hard-coded checkpoint start at their genesis block.
func DefaultCheckpoint(params *chaincfg.Params) Record {
	if params.Net == wire.MainNet {
		return mainnetCheckpoint
	}

	genesis := params.GenesisBlock.Header
	return Record{
		Hash:       *params.GenesisHash,
		Height:     0,
		Time:       genesis.Timestamp.Unix(),
		MerkleRoot: genesis.MerkleRoot,
	}
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}
