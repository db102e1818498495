package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"walletTracker/internal/model"
)

type fakeCaller struct {
	failures int
	calls    int
	token    common.Address
	holder   common.Address
}

func (f *fakeCaller) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return big.NewInt(7), nil
}

func (f *fakeCaller) TokenBalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	f.calls++
	f.token, f.holder = token, holder
	return big.NewInt(99), nil
}

const (
	wallet = "0x1111111111111111111111111111111111111111"
	token  = "0x2222222222222222222222222222222222222222"
)

func TestWalletBalanceRetries(t *testing.T) {
	caller := &fakeCaller{failures: 1}
	b := NewBalances(map[model.Network]BalanceCaller{model.Mainnet: caller}, 2, time.Millisecond, nil)

	got, err := b.WalletBalance(context.Background(), model.Mainnet, wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 7 || caller.calls != 2 {
		t.Fatalf("balance=%s calls=%d", got, caller.calls)
	}
}

func TestTokenBalanceArgumentOrder(t *testing.T) {
	caller := &fakeCaller{}
	b := NewBalances(map[model.Network]BalanceCaller{model.Testnet: caller}, 0, time.Millisecond, nil)

	got, err := b.TokenBalance(context.Background(), model.Testnet, wallet, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 99 {
		t.Fatalf("balance = %s", got)
	}
	if caller.token != common.HexToAddress(token) || caller.holder != common.HexToAddress(wallet) {
		t.Fatalf("token/holder swapped: %s %s", caller.token.Hex(), caller.holder.Hex())
	}
}

func TestBalancesUnknownNetwork(t *testing.T) {
	b := NewBalances(map[model.Network]BalanceCaller{}, 0, time.Millisecond, nil)
	if _, err := b.WalletBalance(context.Background(), model.Mainnet, wallet); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}

func TestERC20ABIHasBalanceOf(t *testing.T) {
	parsed, err := erc20ABIInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	if _, ok := parsed.Methods["balanceOf"]; !ok {
		t.Fatalf("balanceOf missing from abi")
	}
}
