package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"

	"btc-walletscan/pkg/headers"
)

type RPCConfig struct {
	Host       string
	User       string
	Pass       string
	DisableTLS bool
}

// RPCSource reads headers and blocks from a bitcoind-compatible JSON-RPC
// endpoint. It is a TipSource and a BlockSource.
type RPCSource struct {
	client *rpcclient.Client
}

func NewRPCSource(cfg RPCConfig) (*RPCSource, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	return &RPCSource{client: client}, nil
}

func (r *RPCSource) GetTipHash(ctx context.Context) (chainhash.Hash, error) {
	hash, err := receive(ctx, r.client.GetBestBlockHashAsync().Receive)
	if err != nil {
		return chainhash.Hash{}, mapRPCError(err)
	}
	return *hash, nil
}

func (r *RPCSource) GetHeader(ctx context.Context, hash chainhash.Hash) (*headers.Record, error) {
	res, err := receive(ctx, r.client.GetBlockHeaderVerboseAsync(&hash).Receive)
	if err != nil {
		return nil, mapRPCError(err)
	}
	return recordFromVerbose(res)
}

func (r *RPCSource) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	blk, err := receive(ctx, r.client.GetBlockAsync(&hash).Receive)
	if err != nil {
		return nil, mapRPCError(err)
	}
	return blk, nil
}

func (r *RPCSource) Close() {
	r.client.Shutdown()
}

// receive waits for an rpcclient future, giving up when ctx is done.
func receive[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func mapRPCError(err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCBlockNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, rpcErr.Message)
	}
	return err
}

func recordFromVerbose(res *btcjson.GetBlockHeaderVerboseResult) (*headers.Record, error) {
	rec := &headers.Record{
		Height: res.Height,
		Time:   res.Time,
	}

	hash, err := chainhash.NewHashFromStr(res.Hash)
	if err != nil {
		return nil, fmt.Errorf("header hash: %w", err)
	}
	rec.Hash = *hash

	merkle, err := chainhash.NewHashFromStr(res.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("header %s merkle root: %w", res.Hash, err)
	}
	rec.MerkleRoot = *merkle

	if res.PreviousHash != "" {
		prev, err := chainhash.NewHashFromStr(res.PreviousHash)
		if err != nil {
			return nil, fmt.Errorf("header %s prev hash: %w", res.Hash, err)
		}
		rec.PrevHash = *prev
	}
	return rec, nil
}
