// Package scanner walks the header chain from the wallet's scan cursor to the
// tip, fetching each block and handing it to the transaction matcher.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"btc-walletscan/pkg/blockchain"
	"btc-walletscan/pkg/headers"
	"btc-walletscan/pkg/logger"
	"btc-walletscan/pkg/metrics"
	"btc-walletscan/pkg/wallet"
)

// ErrFetchFailure wraps any error from the block source. The cursor is left
// on the last block that was fully matched.
var ErrFetchFailure = errors.New("block fetch failed")

const (
	defaultBirthdayMargin   = 2 * time.Hour
	defaultProgressInterval = 7 * time.Second
)

type Options struct {
	// Birthday is the wallet creation time in unix seconds. Zero disables
	// skip-ahead.
	Birthday         int64
	BirthdayMargin   time.Duration
	ProgressInterval time.Duration
	Metrics          *metrics.Metrics

	now func() time.Time
}

// Stats reports one Scan call.
type Stats struct {
	Blocks  int
	Txs     int
	Skipped int
	Height  int32
	Matched int
	// CaughtUp is true when the cursor ended on the accepted tip.
	CaughtUp bool
	// Gap is true when the walk stopped at a header whose successor is not
	// indexed yet. It is informational; a later sync fills it.
	Gap bool
}

type Scanner struct {
	store   *headers.Store
	state   *wallet.State
	matcher *wallet.Matcher
	source  blockchain.BlockSource
	logger  *logger.CustomLogger
	opts    Options
}

func New(store *headers.Store, state *wallet.State, params *chaincfg.Params, source blockchain.BlockSource, log *logger.CustomLogger, opts Options) *Scanner {
	if opts.BirthdayMargin <= 0 {
		opts.BirthdayMargin = defaultBirthdayMargin
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Scanner{
		store:   store,
		state:   state,
		matcher: wallet.NewMatcher(state, params),
		source:  source,
		logger:  log,
		opts:    opts,
	}
}

// Reset moves the scan cursor to hash, which must be indexed. The next Scan
// rescans every block after it, with no birthday skip.
func (s *Scanner) Reset(hash chainhash.Hash) error {
	if !s.store.Has(hash) {
		return fmt.Errorf("%w: %s", headers.ErrUnknownHash, hash)
	}
	s.state.SetLastScanned(hash)
	return nil
}

// Scan matches every block between the cursor and the tip. The cursor moves
// one block at a time and only after the block is matched, so an error
// leaves all earlier progress in place.
func (s *Scanner) Scan(ctx context.Context) (Stats, error) {
	var stats Stats

	// An unset cursor starts past the blocks that predate the wallet. It is
	// only stored once the skip moved it, so a scan run before the first
	// header sync still skips later.
	cursor, ok := s.state.LastScanned()
	if !ok {
		cursor, stats.Skipped = s.skipAhead()
		if stats.Skipped > 0 {
			s.state.SetLastScanned(cursor)
		}
	}

	cur, err := s.store.Get(cursor)
	if err != nil {
		return stats, fmt.Errorf("scan cursor: %w", err)
	}
	stats.Height = cur.Height

	lastLog := s.opts.now()
	it := s.store.WalkForward(cursor)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec := it.Record()

		blk, err := s.source.GetBlock(ctx, rec.Hash)
		if err != nil {
			return stats, fmt.Errorf("%w: block %s at height %d: %w", ErrFetchFailure, rec.Hash, rec.Height, err)
		}
		if got := blk.BlockHash(); got != rec.Hash {
			return stats, fmt.Errorf("%w: asked for %s, got %s", ErrFetchFailure, rec.Hash, got)
		}

		match, err := s.matcher.MatchBlock(blk)
		if err != nil {
			return stats, fmt.Errorf("match block %s: %w", rec.Hash, err)
		}
		s.state.SetLastScanned(rec.Hash)

		stats.Blocks++
		stats.Txs += match.Txs
		stats.Matched += len(match.Matches)
		stats.Height = rec.Height
		s.opts.Metrics.BlockScanned(rec.Height, match.Txs, match.Created(), match.Spent())

		for _, m := range match.Matches {
			s.logger.Info("wallet transaction",
				zap.Stringer("txid", m.TxID),
				zap.Int32("height", rec.Height),
				zap.Int("created", len(m.Created)),
				zap.Int("spent", len(m.Spent)))
		}

		if now := s.opts.now(); now.Sub(lastLog) >= s.opts.ProgressInterval {
			lastLog = now
			s.logger.Info("scanning",
				zap.Int32("height", rec.Height),
				zap.Int32("tip", s.store.BestRecord().Height),
				zap.Int("blocks", stats.Blocks))
		}
	}

	stats.Gap = it.Gap()
	if best, ok := s.store.Best(); ok && !stats.Gap {
		last, _ := s.state.LastScanned()
		stats.CaughtUp = last == best
	}
	if stats.Gap {
		s.logger.Info("scan stopped at header gap, sync headers to continue", zap.Int32("height", stats.Height))
	}

	return stats, nil
}

// skipAhead moves from the checkpoint past every header whose successor is
// older than the wallet birthday minus the margin. Blocks that old cannot pay
// an address that did not exist yet.
func (s *Scanner) skipAhead() (chainhash.Hash, int) {
	cursor := s.store.Checkpoint()
	if s.opts.Birthday == 0 {
		return cursor, 0
	}
	cutoff := s.opts.Birthday - int64(s.opts.BirthdayMargin/time.Second)

	skipped := 0
	it := s.store.WalkForward(cursor)
	for it.Next() {
		rec := it.Record()
		if rec.Time >= cutoff {
			break
		}
		cursor = rec.Hash
		skipped++
	}
	if skipped > 0 {
		s.logger.Info("skipped blocks before wallet birthday", zap.Int("count", skipped))
	}
	return cursor, skipped
}
