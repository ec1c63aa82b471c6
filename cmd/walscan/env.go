package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"btc-walletscan/config"
	"btc-walletscan/database"
	path "btc-walletscan/internal"
	"btc-walletscan/pkg/blockchain"
	"btc-walletscan/pkg/cache"
	"btc-walletscan/pkg/logger"
	"btc-walletscan/pkg/metrics"
	"btc-walletscan/pkg/wallet"
)

// env is everything one command needs, built from the config file.
type env struct {
	cfg     *config.Config
	log     *logger.CustomLogger
	params  *chaincfg.Params
	backend database.Backend
	caches  *cache.Manager
	metrics *metrics.Metrics
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.LoadConfig(path.ConfigPath(c.String("config")))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLoggerWithOptions(cfg.Logger.Level, &logger.Options{
		LogBackTraceEnabled: cfg.Logger.LogBackTraceEnabled,
	})

	params, err := blockchain.Params(blockchain.ChainType(cfg.Chain.Network))
	if err != nil {
		return nil, err
	}

	backend, err := database.Open(c.Context, database.Config{
		Backend:       cfg.Cache.Backend,
		Dir:           cfg.Cache.Dir,
		MongoURI:      cfg.DB.URI,
		MongoDatabase: cfg.DB.Database,
	})
	if err != nil {
		return nil, err
	}

	caches, err := cache.Load(c.Context, backend, params, log)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	log.Debug("setup complete",
		zap.String("network", params.Name),
		zap.String("backend", cfg.Cache.Backend))

	return &env{cfg: cfg, log: log, params: params, backend: backend, caches: caches}, nil
}

// action wraps a command so caches are flushed after it runs, even when it
// fails part-way. Progress made before a fetch failure is kept. An integrity
// violation skips the flush so a suspect state never reaches disk.
func action(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		defer func() {
			_ = e.backend.Close()
			_ = e.log.Sync()
		}()

		runErr := fn(c, e)
		if runErr != nil {
			e.log.Error("command failed", zap.String("command", c.Command.Name), zap.Error(runErr))
		}
		if errors.Is(runErr, wallet.ErrIntegrity) {
			return runErr
		}

		if err := e.caches.Flush(context.WithoutCancel(c.Context)); err != nil {
			e.log.Error("flush caches", zap.Error(err))
			return errors.Join(runErr, err)
		}
		return runErr
	}
}

func (e *env) rpcSource() (*blockchain.RPCSource, error) {
	return blockchain.NewRPCSource(blockchain.RPCConfig{
		Host:       e.cfg.RPC.Host,
		User:       e.cfg.RPC.User,
		Pass:       e.cfg.RPC.Pass,
		DisableTLS: e.cfg.RPC.DisableTLS,
	})
}

// peerSource connects to the configured peer, or to a random cached one,
// seeding the cache from DNS when it is empty.
func (e *env) peerSource(ctx context.Context) (*blockchain.PeerSource, error) {
	addr := e.cfg.P2P.Peer
	if addr == "" {
		if e.caches.Peers.Len() == 0 {
			if _, err := e.caches.Peers.Seed(ctx, net.DefaultResolver, e.params, e.log); err != nil {
				return nil, err
			}
		}
		var err error
		if addr, err = e.caches.Peers.RandomPeer(); err != nil {
			return nil, err
		}
	}
	return blockchain.NewPeerSource(e.params, addr, e.cfg.Sync.Timeout.Duration, e.log), nil
}

// blockSource returns the configured BlockSource and its closer.
func (e *env) blockSource(ctx context.Context) (blockchain.BlockSource, func(), error) {
	if e.cfg.Sync.Strategy == config.StrategyP2P {
		ps, err := e.peerSource(ctx)
		if err != nil {
			return nil, nil, err
		}
		return ps, ps.Close, nil
	}
	rs, err := e.rpcSource()
	if err != nil {
		return nil, nil, err
	}
	return rs, rs.Close, nil
}
