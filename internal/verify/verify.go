// Package verify reconciles a correlation group against the lagging indexer.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletTracker/internal/etherscan"
	"walletTracker/internal/format"
	"walletTracker/internal/merge"
	"walletTracker/internal/metrics"
	"walletTracker/internal/model"
	"walletTracker/internal/retry"
)

// ErrBudgetExhausted means no kind of the group resolved within the attempt budget.
var ErrBudgetExhausted = errors.New("verify: attempt budget exhausted")

// Failure is returned when a group has to be abandoned.
type Failure struct {
	TxHash   string
	Target   string
	Attempts int
	LastErr  error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("verify %s for %s: no kind resolved after %d attempts", f.TxHash, f.Target, f.Attempts)
	if f.LastErr != nil {
		msg += ": last error: " + f.LastErr.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return ErrBudgetExhausted
}

// Indexer lists a wallet's transfers of one kind.
type Indexer interface {
	FetchTransfers(ctx context.Context, network model.Network, address string, kind model.AssetKind, startBlock uint64) ([]model.RawRecord, error)
}

// Balances reports the latest balances used to enrich facets.
type Balances interface {
	WalletBalance(ctx context.Context, network model.Network, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, network model.Network, address, contract string) (*big.Int, error)
}

// Options tunes the polling loop. MaxAttempts of 0 polls until the context is cancelled.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Location    *time.Location
	Balances    Balances
	Prices      *PriceCache
	Metrics     *metrics.Metrics
}

// Verifier polls the indexer for every kind a group has seen.
type Verifier struct {
	indexer Indexer
	opts    Options
	logger  *zap.Logger
}

func New(indexer Indexer, opts Options, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Verifier{indexer: indexer, opts: opts, logger: logger}
}

// Verify resolves the group and merges the resolved facets.
func (v *Verifier) Verify(ctx context.Context, group model.CorrelationGroup) (model.MergedTransaction, error) {
	facets, err := v.Resolve(ctx, group)
	if err != nil {
		return model.MergedTransaction{}, err
	}
	return merge.Merge(facets, group.KindsSeen, group.Network, v.logger)
}

// Resolve polls every pending kind concurrently once per round, on one shared cadence,
// until all kinds resolve or the budget runs out. It returns a *Failure when nothing resolved,
// and ctx.Err() when cancelled.
func (v *Verifier) Resolve(ctx context.Context, group model.CorrelationGroup) (map[model.AssetKind]model.TransactionFacet, error) {
	log := v.logger.With(
		zap.String("group", group.ID),
		zap.String("tx_hash", group.TxHash),
		zap.String("target", group.TargetAddress),
	)

	pending := group.KindsSeen
	records := make(map[model.AssetKind]model.RawRecord, pending.Len())
	var lastErr error
	attempts := 0

	for !pending.Empty() {
		attempts++
		v.opts.Metrics.ObserveRound()

		found, err := v.round(ctx, group, pending, log)
		if err != nil {
			lastErr = err
		}
		for kind, rec := range found {
			records[kind] = rec
			pending = pending.Remove(kind)
			log.Debug("kind resolved", zap.Stringer("kind", kind), zap.Int("attempt", attempts))
		}

		if pending.Empty() {
			break
		}
		if v.opts.MaxAttempts > 0 && attempts >= v.opts.MaxAttempts {
			log.Info("attempt budget exhausted",
				zap.Int("attempts", attempts),
				zap.Stringer("missing", pending),
			)
			break
		}
		if !retry.Sleep(ctx, v.opts.Interval) {
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &Failure{TxHash: group.TxHash, Target: group.TargetAddress, Attempts: attempts, LastErr: lastErr}
	}
	return v.facets(ctx, group, records, log), nil
}

// round queries each pending kind in its own goroutine and returns the kinds found.
func (v *Verifier) round(ctx context.Context, group model.CorrelationGroup, pending model.KindSet, log *zap.Logger) (map[model.AssetKind]model.RawRecord, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		found   = make(map[model.AssetKind]model.RawRecord)
		lastErr error
	)

	for _, kind := range pending.Kinds() {
		wg.Add(1)
		go func(kind model.AssetKind) {
			defer wg.Done()

			rec, err := v.lookup(ctx, group, kind)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				if errors.Is(err, etherscan.ErrNotFound) {
					v.opts.Metrics.IndexerMiss("not_found")
				} else {
					v.opts.Metrics.IndexerMiss("transport")
					log.Debug("indexer query failed", zap.Stringer("kind", kind), zap.Error(err))
				}
				return
			}
			found[kind] = rec
		}(kind)
	}
	wg.Wait()

	return found, lastErr
}

func (v *Verifier) lookup(ctx context.Context, group model.CorrelationGroup, kind model.AssetKind) (model.RawRecord, error) {
	records, err := v.indexer.FetchTransfers(ctx, group.Network, group.TargetAddress, kind, group.BlockNum)
	if err != nil {
		return model.RawRecord{}, err
	}

	var match *model.RawRecord
	for i := range records {
		rec := &records[i]
		if !strings.EqualFold(rec.Hash, group.TxHash) {
			continue
		}
		if involves(*rec, group.TargetAddress) {
			return *rec, nil
		}
		if match == nil {
			match = rec
		}
	}
	if match != nil {
		return *match, nil
	}
	return model.RawRecord{}, etherscan.ErrNotFound
}

func involves(rec model.RawRecord, address string) bool {
	return strings.EqualFold(rec.From, address) || strings.EqualFold(rec.To, address)
}

// facets enriches and formats the resolved records. Enrichment is best effort.
func (v *Verifier) facets(ctx context.Context, group model.CorrelationGroup, records map[model.AssetKind]model.RawRecord, log *zap.Logger) map[model.AssetKind]model.TransactionFacet {
	base := format.Context{
		Network:  group.Network,
		Target:   group.TargetAddress,
		Location: v.opts.Location,
	}
	base.EthUSD = v.ethPrice(ctx, log)
	base.WalletBalance = v.walletBalance(ctx, group, log)

	out := make(map[model.AssetKind]model.TransactionFacet, len(records))
	for kind, rec := range records {
		fctx := base
		if kind == model.KindFungible {
			fctx.TokenBalance = v.tokenBalance(ctx, group, rec.ContractAddress, log)
		}
		facet := format.Facet(rec, kind, fctx)
		facet.Hash = group.TxHash
		out[kind] = facet
	}
	return out
}

func (v *Verifier) ethPrice(ctx context.Context, log *zap.Logger) decimal.Decimal {
	if v.opts.Prices == nil {
		return decimal.Zero
	}
	price, err := v.opts.Prices.Get(ctx)
	if err != nil {
		log.Warn("eth price unavailable", zap.Error(err))
		return decimal.Zero
	}
	return price
}

func (v *Verifier) walletBalance(ctx context.Context, group model.CorrelationGroup, log *zap.Logger) *big.Int {
	if v.opts.Balances == nil {
		return nil
	}
	balance, err := v.opts.Balances.WalletBalance(ctx, group.Network, group.TargetAddress)
	if err != nil {
		log.Warn("wallet balance unavailable", zap.Error(err))
		return nil
	}
	return balance
}

func (v *Verifier) tokenBalance(ctx context.Context, group model.CorrelationGroup, contract string, log *zap.Logger) *big.Int {
	if v.opts.Balances == nil || contract == "" {
		return nil
	}
	balance, err := v.opts.Balances.TokenBalance(ctx, group.Network, group.TargetAddress, contract)
	if err != nil {
		log.Warn("token balance unavailable", zap.String("contract", contract), zap.Error(err))
		return nil
	}
	return balance
}
