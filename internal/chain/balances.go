package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"walletTracker/internal/model"
	"walletTracker/internal/retry"
)

// BalanceCaller is the subset of Client used for balance lookups.
type BalanceCaller interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Balances resolves wallet and token balances over per-network RPC endpoints.
type Balances struct {
	clients      map[model.Network]BalanceCaller
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewBalances builds a Balances over the given per-network callers.
func NewBalances(clients map[model.Network]BalanceCaller, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *Balances {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Balances{
		clients:      clients,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

func (b *Balances) client(network model.Network) (BalanceCaller, error) {
	c, ok := b.clients[network]
	if !ok || c == nil {
		return nil, fmt.Errorf("no rpc endpoint for network %q", network)
	}
	return c, nil
}

// WalletBalance returns the latest ether balance in wei.
func (b *Balances) WalletBalance(ctx context.Context, network model.Network, address string) (*big.Int, error) {
	c, err := b.client(network)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	var balance *big.Int
	err = retry.Do(ctx, b.maxRetries, b.retryBackoff, func(ctx context.Context) error {
		value, err := c.BalanceAt(ctx, common.HexToAddress(address))
		if err != nil {
			b.logger.Debug("balance call failed", zap.String("address", address), zap.Error(err))
			return err
		}
		balance = value
		return nil
	})
	return balance, err
}

// TokenBalance returns the latest ERC-20 balance in the token's smallest unit.
func (b *Balances) TokenBalance(ctx context.Context, network model.Network, address, contract string) (*big.Int, error) {
	c, err := b.client(network)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(address) || !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid address %q or contract %q", address, contract)
	}

	var balance *big.Int
	err = retry.Do(ctx, b.maxRetries, b.retryBackoff, func(ctx context.Context) error {
		value, err := c.TokenBalanceOf(ctx, common.HexToAddress(contract), common.HexToAddress(address))
		if err != nil {
			b.logger.Debug("balanceOf call failed", zap.String("token", contract), zap.Error(err))
			return err
		}
		balance = value
		return nil
	})
	return balance, err
}
