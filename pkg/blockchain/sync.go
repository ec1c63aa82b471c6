package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"btc-walletscan/pkg/headers"
	"btc-walletscan/pkg/logger"
	"btc-walletscan/pkg/metrics"
)

type State int32

const (
	StateIdle State = iota
	StateQueryingTip
	StateFillingGap
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueryingTip:
		return "querying-tip"
	case StateFillingGap:
		return "filling-gap"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const (
	defaultTimeout   = 15 * time.Second
	defaultMaxRounds = 8
)

type Options struct {
	// Timeout bounds each header round-trip of a forward sync.
	Timeout time.Duration
	// MaxRounds bounds how often the tip is re-queried in one run.
	MaxRounds int
	Metrics   *metrics.Metrics
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Fetched  int
	Inserted int
	Orphans  int
	Rounds   int
}

// Synchronizer extends a header Store from a remote source. It is not safe
// for concurrent use.
type Synchronizer struct {
	store   *headers.Store
	logger  *logger.CustomLogger
	metrics *metrics.Metrics

	timeout   time.Duration
	maxRounds int

	state State
}

func NewSynchronizer(store *headers.Store, log *logger.CustomLogger, opts Options) *Synchronizer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	return &Synchronizer{
		store:     store,
		logger:    log,
		metrics:   opts.Metrics,
		timeout:   opts.Timeout,
		maxRounds: opts.MaxRounds,
	}
}

func (s *Synchronizer) State() State { return s.state }

// SyncBackward walks single headers from the source tip back to the first
// known header. An interrupted walk, recorded as the store's pending want, is
// resumed first. Fetch errors leave the pending want in place so the next
// run continues where this one stopped.
func (s *Synchronizer) SyncBackward(ctx context.Context, src TipSource) (SyncResult, error) {
	var res SyncResult
	defer func() { s.state = StateIdle }()

	if want, ok := s.store.PendingWant(); ok {
		s.logger.Info("resuming interrupted header walk", zap.Stringer("want", want))
		s.state = StateFillingGap
		if err := s.fill(ctx, src, want, &res); err != nil {
			return res, err
		}
	}

	for res.Rounds < s.maxRounds {
		res.Rounds++

		s.state = StateQueryingTip
		tip, err := src.GetTipHash(ctx)
		if err != nil {
			return res, fmt.Errorf("query tip: %w", err)
		}

		if best, ok := s.store.Best(); ok && best == tip {
			s.logger.Debug("header store at source tip", zap.Stringer("tip", tip))
			return res, nil
		}

		if !s.store.Has(tip) {
			s.store.SetPendingWant(tip)
			s.state = StateFillingGap
			if err := s.fill(ctx, src, tip, &res); err != nil {
				return res, err
			}
		}

		// The source's tip wins even when its branch is not higher.
		if err := s.store.SetBest(tip); err != nil {
			return res, err
		}
		s.reportTip()
	}

	s.logger.Warn("tip still moving after max rounds", zap.Int("rounds", res.Rounds))
	return res, nil
}

func (s *Synchronizer) fill(ctx context.Context, src TipSource, want chainhash.Hash, res *SyncResult) error {
	cp, err := s.store.Get(s.store.Checkpoint())
	if err != nil {
		return err
	}

	for {
		if s.store.Has(want) {
			s.store.ClearPendingWant()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := src.GetHeader(ctx, want)
		if err != nil {
			return fmt.Errorf("fetch header %s: %w", want, err)
		}
		res.Fetched++

		if rec.Height <= cp.Height {
			s.store.ClearPendingWant()
			dropped := s.store.DropRun(rec.Hash)
			res.Inserted -= dropped
			return fmt.Errorf("%w: reached %s at height %d, dropped %d headers",
				ErrNoCommonAncestor, rec.Hash, rec.Height, dropped)
		}

		if err := s.store.Attach(rec); err != nil && !errors.Is(err, headers.ErrDuplicateHeader) {
			return err
		}
		res.Inserted++
		s.metrics.HeaderInserted()

		want = rec.PrevHash
		s.store.SetPendingWant(want)
		if res.Fetched%500 == 0 {
			s.logger.Info("walking headers back", zap.Int32("height", rec.Height), zap.Int("fetched", res.Fetched))
		}
	}
}

// SyncForward requests header batches after the current tip's locator until
// a short batch arrives. A round that times out fails with ErrSyncTimeout
// and leaves the store as it was before that round.
func (s *Synchronizer) SyncForward(ctx context.Context, src HeaderBatchSource) (SyncResult, error) {
	var res SyncResult
	defer func() { s.state = StateIdle }()

	for {
		res.Rounds++
		s.state = StateQueryingTip

		locator := s.store.BlockLocator(s.store.BestRecord().Hash)

		roundCtx, cancel := context.WithTimeout(ctx, s.timeout)
		batch, err := src.GetHeadersSince(roundCtx, locator)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return res, fmt.Errorf("%w after %s", ErrSyncTimeout, s.timeout)
			}
			return res, fmt.Errorf("fetch headers: %w", err)
		}
		res.Fetched += len(batch)

		s.state = StateFillingGap
		inserted := 0
		for _, hdr := range batch {
			err := s.store.Insert(headers.RecordFromHeader(hdr))
			switch {
			case err == nil:
				inserted++
				s.metrics.HeaderInserted()
			case errors.Is(err, headers.ErrDuplicateHeader):
			case errors.Is(err, headers.ErrOrphanHeader):
				res.Orphans++
				s.metrics.HeaderOrphaned()
				s.logger.Warn("skipping orphan header", zap.Error(err))
			default:
				return res, err
			}
		}
		res.Inserted += inserted
		s.reportTip()

		s.logger.Info("received headers",
			zap.Int("count", len(batch)),
			zap.Int("inserted", inserted),
			zap.Int32("height", s.store.BestRecord().Height))

		if len(batch) < wire.MaxBlockHeadersPerMsg || inserted == 0 {
			return res, nil
		}
	}
}

func (s *Synchronizer) reportTip() {
	s.metrics.SetBestHeight(s.store.BestRecord().Height)
}
