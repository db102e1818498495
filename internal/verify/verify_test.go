package verify

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletTracker/internal/etherscan"
	"walletTracker/internal/model"
)

const (
	txHash = "0xfeedbeef"
	target = "0x1111111111111111111111111111111111111111"
)

// scriptedIndexer answers ErrNotFound until a kind's readyAt call, then returns its record.
type scriptedIndexer struct {
	mu      sync.Mutex
	calls   map[model.AssetKind]int
	readyAt map[model.AssetKind]int
	err     error
}

func newScripted(readyAt map[model.AssetKind]int) *scriptedIndexer {
	return &scriptedIndexer{calls: make(map[model.AssetKind]int), readyAt: readyAt}
}

func (s *scriptedIndexer) FetchTransfers(ctx context.Context, network model.Network, address string, kind model.AssetKind, startBlock uint64) ([]model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[kind]++
	ready, ok := s.readyAt[kind]
	if !ok || s.calls[kind] < ready {
		if s.err != nil {
			return nil, s.err
		}
		return nil, etherscan.ErrNotFound
	}
	return []model.RawRecord{
		{Hash: "0xother", From: target, Value: "1"},
		recordFor(kind),
	}, nil
}

func (s *scriptedIndexer) callCount(kind model.AssetKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func recordFor(kind model.AssetKind) model.RawRecord {
	rec := model.RawRecord{
		Hash:      "0xFEEDBEEF",
		TimeStamp: "1700000000",
		From:      target,
		To:        "0x2222222222222222222222222222222222222222",
		GasPrice:  "20000000000",
		GasUsed:   "50000",
		Value:     "1000000000000000000",
	}
	switch kind {
	case model.KindFungible:
		rec.TokenSymbol, rec.TokenDecimal, rec.ContractAddress = "USDC", "6", "0x3333333333333333333333333333333333333333"
		rec.Value = "2500000"
	case model.KindNFT:
		rec.TokenName, rec.TokenID = "Azuki", "42"
	}
	return rec
}

func group(kinds ...model.AssetKind) model.CorrelationGroup {
	return model.CorrelationGroup{
		ID:            "g-1",
		TxHash:        txHash,
		Network:       model.Mainnet,
		BlockNum:      19000000,
		TargetAddress: target,
		KindsSeen:     model.NewKindSet(kinds...),
		Recipients:    []string{"alice"},
		State:         model.StateVerifying,
	}
}

func fastOptions(maxAttempts int) Options {
	return Options{Interval: 5 * time.Millisecond, MaxAttempts: maxAttempts}
}

func TestVerifyAllKindsResolve(t *testing.T) {
	indexer := newScripted(map[model.AssetKind]int{model.KindNative: 1, model.KindFungible: 3})
	v := New(indexer, fastOptions(10), nil)

	tx, err := v.Verify(context.Background(), group(model.KindNative, model.KindFungible))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryNativeFungible, tx.Category)
	assert.Equal(t, txHash, tx.Hash)
	assert.Equal(t, "2.5", tx.Token.Amount)
	assert.Equal(t, "1 ETH", tx.SpendLabel)
	assert.True(t, tx.KindsMissing.Empty())

	// resolved kinds leave the retry set
	assert.Equal(t, 1, indexer.callCount(model.KindNative))
	assert.Equal(t, 3, indexer.callCount(model.KindFungible))
}

// One kind never shows up; the rest is merged and the gap recorded.
func TestVerifyPartialResolution(t *testing.T) {
	indexer := newScripted(map[model.AssetKind]int{model.KindNative: 2})
	v := New(indexer, fastOptions(4), nil)

	tx, err := v.Verify(context.Background(), group(model.KindNative, model.KindFungible))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryNative, tx.Category)
	assert.Equal(t, model.NewKindSet(model.KindFungible), tx.KindsMissing)
	assert.Equal(t, 4, indexer.callCount(model.KindFungible))
}

// Nothing resolves within the budget.
func TestVerifyBudgetExhausted(t *testing.T) {
	indexer := newScripted(nil)
	indexer.err = errors.New("502 bad gateway")
	v := New(indexer, fastOptions(3), nil)

	_, err := v.Verify(context.Background(), group(model.KindNFT))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, txHash, failure.TxHash)
	assert.Equal(t, target, failure.Target)
	assert.EqualError(t, failure.LastErr, "502 bad gateway")
}

func TestResolveStopsOnCancel(t *testing.T) {
	v := New(newScripted(nil), Options{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := v.Resolve(ctx, group(model.KindNative))
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("resolve did not return after cancel")
	}
}

// barrierIndexer fails unless every pending kind is queried concurrently.
type barrierIndexer struct {
	wg sync.WaitGroup
}

func (b *barrierIndexer) FetchTransfers(ctx context.Context, network model.Network, address string, kind model.AssetKind, startBlock uint64) ([]model.RawRecord, error) {
	b.wg.Done()
	released := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(released)
	}()
	select {
	case <-released:
		return []model.RawRecord{recordFor(kind)}, nil
	case <-time.After(time.Second):
		return nil, errors.New("kinds were not polled concurrently")
	}
}

func TestRoundPollsKindsConcurrently(t *testing.T) {
	indexer := &barrierIndexer{}
	indexer.wg.Add(3)
	v := New(indexer, fastOptions(1), nil)

	facets, err := v.Resolve(context.Background(), group(model.KindNative, model.KindFungible, model.KindNFT))
	require.NoError(t, err)
	assert.Len(t, facets, 3)
}

type fakeBalances struct{}

func (fakeBalances) WalletBalance(ctx context.Context, network model.Network, address string) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)), nil
}

func (fakeBalances) TokenBalance(ctx context.Context, network model.Network, address, contract string) (*big.Int, error) {
	return nil, errors.New("rate limited")
}

type fixedPrice struct {
	calls int
}

func (f *fixedPrice) EtherPrice(ctx context.Context) (decimal.Decimal, error) {
	f.calls++
	return decimal.NewFromInt(2000), nil
}

func TestResolveEnrichesFacets(t *testing.T) {
	prices := &fixedPrice{}
	opts := fastOptions(1)
	opts.Balances = fakeBalances{}
	opts.Prices = NewPriceCache(prices, time.Minute)

	indexer := newScripted(map[model.AssetKind]int{model.KindNative: 1, model.KindFungible: 1})
	facets, err := New(indexer, opts, nil).Resolve(context.Background(), group(model.KindNative, model.KindFungible))
	require.NoError(t, err)

	native := facets[model.KindNative]
	assert.Equal(t, "3", native.WalletBalanceAfter)
	// 50000 gas * 20 gwei = 0.001 ETH at 2000 USD
	assert.Equal(t, "2.00", native.GasFeeFiat)
	assert.Equal(t, "Send", native.Native.Action)

	fungible := facets[model.KindFungible]
	assert.Equal(t, "-", fungible.Token.BalanceAfter, "enrichment failure leaves a placeholder")
	assert.Equal(t, 1, prices.calls)
}

func TestPriceCacheTTL(t *testing.T) {
	prices := &fixedPrice{}
	cache := NewPriceCache(prices, time.Minute)
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, prices.calls)

	now = now.Add(2 * time.Minute)
	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, prices.calls)
}

// cancellingIndexer cancels the verification context while answering.
type cancellingIndexer struct {
	cancel context.CancelFunc
}

func (c cancellingIndexer) FetchTransfers(ctx context.Context, network model.Network, address string, kind model.AssetKind, startBlock uint64) ([]model.RawRecord, error) {
	c.cancel()
	return nil, etherscan.ErrNotFound
}

func TestResolveCancelledInLastRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v := New(cancellingIndexer{cancel: cancel}, fastOptions(1), nil)

	_, err := v.Resolve(ctx, group(model.KindNative, model.KindNFT))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBudgetExhausted)
}
