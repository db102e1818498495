package main

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"walletTracker/internal/chain"
	"walletTracker/internal/correlate"
	"walletTracker/internal/model"
)

type fixedCaller struct{ balance int64 }

func (f fixedCaller) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(f.balance), nil
}

func (f fixedCaller) TokenBalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(f.balance + 1), nil
}

type fixedBalances struct{ balance int64 }

func (f fixedBalances) WalletBalance(context.Context, model.Network, string) (*big.Int, error) {
	return big.NewInt(f.balance), nil
}

func (f fixedBalances) TokenBalance(context.Context, model.Network, string, string) (*big.Int, error) {
	return big.NewInt(f.balance + 1), nil
}

func TestBalanceRouter(t *testing.T) {
	callers := map[model.Network]chain.BalanceCaller{model.Mainnet: fixedCaller{balance: 10}}
	router := &balanceRouter{
		rpc:      chain.NewBalances(callers, 0, time.Millisecond, nil),
		networks: callers,
		fallback: fixedBalances{balance: 20},
	}
	ctx := context.Background()
	address := "0x00000000000000000000000000000000000000aa"
	contract := "0x00000000000000000000000000000000000000bb"

	got, err := router.WalletBalance(ctx, model.Mainnet, address)
	if err != nil || got.Int64() != 10 {
		t.Fatalf("mainnet wallet balance = %v, %v; want 10 from rpc", got, err)
	}
	got, err = router.WalletBalance(ctx, model.Testnet, address)
	if err != nil || got.Int64() != 20 {
		t.Fatalf("testnet wallet balance = %v, %v; want 20 from fallback", got, err)
	}
	got, err = router.TokenBalance(ctx, model.Mainnet, address, contract)
	if err != nil || got.Int64() != 11 {
		t.Fatalf("mainnet token balance = %v, %v; want 11 from rpc", got, err)
	}
	got, err = router.TokenBalance(ctx, model.Testnet, address, contract)
	if err != nil || got.Int64() != 21 {
		t.Fatalf("testnet token balance = %v, %v; want 21 from fallback", got, err)
	}
}

func TestReplaySummary(t *testing.T) {
	s := &replaySummary{}
	s.record(correlate.Outcome{
		Group:  model.CorrelationGroup{State: model.StateNotified},
		Record: &model.NotificationRecord{Delivered: 2, Failed: 1},
	})
	s.record(correlate.Outcome{Group: model.CorrelationGroup{State: model.StateAbandoned}})
	s.record(correlate.Outcome{Group: model.CorrelationGroup{State: model.StateVerifying}, Err: context.Canceled})

	if s.notified != 1 || s.abandoned != 1 || s.cancelled != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/1", s.notified, s.abandoned, s.cancelled)
	}
	if s.delivered != 2 || s.failed != 1 {
		t.Fatalf("deliveries = %d/%d, want 2/1", s.delivered, s.failed)
	}
}
