package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"btc-walletscan/config"
	"btc-walletscan/pkg/blockchain"
	"btc-walletscan/pkg/keys"
	"btc-walletscan/pkg/metrics"
	"btc-walletscan/pkg/scanner"
	"btc-walletscan/pkg/wallet"
)

func create(c *cli.Context, e *env) error {
	now := time.Now()
	k, err := keys.Create(e.params, now)
	if err != nil {
		return err
	}
	if err := e.caches.SetKeys(k); err != nil {
		return err
	}

	addr, meta, err := k.NewAddress("", false, now)
	if err != nil {
		return err
	}
	if err := e.caches.Wallet.Watch(addr, meta); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "created wallet on %s\nfirst address: %s\n", e.params.Name, addr)
	return nil
}

func check(c *cli.Context, e *env) error {
	k, err := e.caches.Keys()
	if err != nil {
		return err
	}
	if err := k.Check(); err != nil {
		return err
	}
	if _, err := e.caches.Wallet.Balances(); err != nil {
		return err
	}

	best := e.caches.Headers.BestRecord()
	cursor := "unset"
	if h, ok := e.caches.Wallet.LastScanned(); ok {
		cursor = h.String()
	}
	fmt.Fprintf(c.App.Writer, "keychain ok, %d accounts\nheaders: %d, tip %s at %d\nwatched: %d, utxos: %d\nscan cursor: %s\n",
		len(k.Accounts()), e.caches.Headers.Len(), best.Hash, best.Height,
		e.caches.Wallet.WatchCount(), len(e.caches.Wallet.UnspentOutputs()), cursor)
	return nil
}

func accountNew(c *cli.Context, e *env) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("account name required")
	}
	k, err := e.caches.Keys()
	if err != nil {
		return err
	}
	return k.NewAccount(name, time.Now())
}

func accountDefault(c *cli.Context, e *env) error {
	k, err := e.caches.Keys()
	if err != nil {
		return err
	}
	return k.SetDefaultAccount(c.Args().First())
}

func accountList(c *cli.Context, e *env) error {
	k, err := e.caches.Keys()
	if err != nil {
		return err
	}
	balances, err := e.caches.Wallet.Balances()
	if err != nil {
		return err
	}

	for _, a := range k.Accounts() {
		marker := " "
		if a.Name == k.DefaultAccount() {
			marker = "*"
		}
		fmt.Fprintf(c.App.Writer, "%s %-16s #%-3d %d\n", marker, a.Name, a.Index, balances[a.Name])
	}
	return nil
}

func addressNew(c *cli.Context, e *env) error {
	k, err := e.caches.Keys()
	if err != nil {
		return err
	}
	addr, meta, err := k.NewAddress(c.String("account"), c.Bool("change"), time.Now())
	if err != nil {
		return err
	}
	if err := e.caches.Wallet.Watch(addr, meta); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, addr)
	return nil
}

func addressLast(c *cli.Context, e *env) error {
	k, err := e.caches.Keys()
	if err != nil {
		return err
	}
	if k.LastAddress() == "" {
		return fmt.Errorf("no address derived yet")
	}
	fmt.Fprintln(c.App.Writer, k.LastAddress())
	return nil
}

func txList(c *cli.Context, e *env) error {
	for _, id := range e.caches.Wallet.TxIDs() {
		rec, _ := e.caches.Wallet.Tx(id)
		where := "unconfirmed"
		if rec.BlockHash != (chainhash.Hash{}) {
			where = rec.BlockHash.String()
			if h, err := e.caches.Headers.Get(rec.BlockHash); err == nil {
				where = fmt.Sprintf("%d %s", h.Height, rec.BlockHash)
			}
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n", id, where)
	}
	return nil
}

func seedNet(c *cli.Context, e *env) error {
	added, err := e.caches.Peers.Seed(c.Context, net.DefaultResolver, e.params, e.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d new peers, %d known\n", added, e.caches.Peers.Len())
	return nil
}

func syncHeaders(c *cli.Context, e *env) error {
	_, err := runSync(c.Context, e)
	return err
}

func runSync(ctx context.Context, e *env) (blockchain.SyncResult, error) {
	s := blockchain.NewSynchronizer(e.caches.Headers, e.log, blockchain.Options{
		Timeout:   e.cfg.Sync.Timeout.Duration,
		MaxRounds: e.cfg.Sync.MaxRounds,
		Metrics:   e.metrics,
	})

	var (
		res blockchain.SyncResult
		err error
	)
	switch e.cfg.Sync.Strategy {
	case config.StrategyP2P:
		ps, perr := e.peerSource(ctx)
		if perr != nil {
			return res, perr
		}
		defer ps.Close()
		res, err = s.SyncForward(ctx, ps)
	default:
		rs, rerr := e.rpcSource()
		if rerr != nil {
			return res, rerr
		}
		defer rs.Close()
		res, err = s.SyncBackward(ctx, rs)
	}

	best := e.caches.Headers.BestRecord()
	e.log.Info("header sync finished",
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("orphans", res.Orphans),
		zap.Int32("height", best.Height),
		zap.Stringer("tip", best.Hash))
	return res, err
}

func scanBlocks(c *cli.Context, e *env) error {
	stats, err := runScan(c.Context, e)
	fmt.Fprintf(c.App.Writer, "scanned %d blocks (%d txs, %d skipped), %d wallet txs, height %d\n",
		stats.Blocks, stats.Txs, stats.Skipped, stats.Matched, stats.Height)
	return err
}

func runScan(ctx context.Context, e *env) (scanner.Stats, error) {
	k, err := e.caches.Keys()
	if err != nil {
		return scanner.Stats{}, err
	}
	src, closeSrc, err := e.blockSource(ctx)
	if err != nil {
		return scanner.Stats{}, err
	}
	defer closeSrc()

	return e.newScanner(src, k.CreateTime()).Scan(ctx)
}

func (e *env) newScanner(src blockchain.BlockSource, birthday int64) *scanner.Scanner {
	return scanner.New(e.caches.Headers, e.caches.Wallet, e.params, src, e.log, scanner.Options{
		Birthday:         birthday,
		BirthdayMargin:   e.cfg.Scan.BirthdayMargin.Duration,
		ProgressInterval: e.cfg.Scan.ProgressInterval.Duration,
		Metrics:          e.metrics,
	})
}

func rescanPtr(c *cli.Context, e *env) error {
	hash, err := chainhash.NewHashFromStr(c.Args().First())
	if err != nil {
		return fmt.Errorf("block hash: %w", err)
	}
	return e.newScanner(nil, 0).Reset(*hash)
}

// follow alternates header sync and block scan until SIGINT or SIGTERM.
// Source failures are logged and retried next round.
func follow(c *cli.Context, e *env) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e.metrics = metrics.New()
	if addr := e.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := e.metrics.Serve(ctx, addr, e.log); err != nil {
				e.log.Error("metrics server", zap.Error(err))
			}
		}()
	}

	interval := c.Duration("interval")
	for {
		if _, err := runSync(ctx, e); err != nil && ctx.Err() == nil {
			e.log.Warn("header sync failed", zap.Error(err))
		}

		stats, err := runScan(ctx, e)
		if errors.Is(err, wallet.ErrIntegrity) {
			return err
		}
		if err != nil && ctx.Err() == nil {
			e.log.Warn("block scan failed", zap.Error(err))
		} else if stats.Blocks > 0 {
			e.log.Info("scan round", zap.Int("blocks", stats.Blocks), zap.Int32("height", stats.Height))
		}

		if err := e.caches.Flush(context.WithoutCancel(ctx)); err != nil {
			e.log.Error("flush caches", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			e.log.Info("shutting down")
			return nil
		case <-time.After(interval):
		}
	}
}
