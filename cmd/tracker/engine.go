package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"walletTracker/internal/chain"
	"walletTracker/internal/config"
	"walletTracker/internal/correlate"
	"walletTracker/internal/etherscan"
	"walletTracker/internal/metrics"
	"walletTracker/internal/model"
	"walletTracker/internal/notify"
	"walletTracker/internal/registry"
	"walletTracker/internal/storage"
	"walletTracker/internal/storage/postgres"
	"walletTracker/internal/verify"
)

var expectedChainID = map[model.Network]int64{
	model.Mainnet: 1,
	model.Testnet: 11155111,
}

// engine is the wired correlation pipeline shared by serve and replay.
type engine struct {
	registry   *registry.Registry
	correlator *correlate.Correlator
	metrics    *metrics.Metrics
	closers    []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func buildEngine(ctx context.Context, cfg config.Config, onSettled func(correlate.Outcome), logger *zap.Logger) (*engine, error) {
	e := &engine{}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		return nil, err
	}
	e.registry = reg

	if cfg.MetricsEnabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		e.metrics = metrics.New(promRegistry)
	}

	indexer := etherscan.NewClient(etherscan.Config{
		APIKey:       cfg.EtherscanKey,
		RateLimit:    cfg.EtherscanRate,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger.Named("etherscan"))

	balances, err := e.balances(ctx, cfg, indexer, logger)
	if err != nil {
		return nil, err
	}

	verifier := verify.New(indexer, verify.Options{
		Interval:    cfg.RetryInterval,
		MaxAttempts: cfg.MaxAttempts,
		Location:    cfg.Location,
		Balances:    balances,
		Prices:      verify.NewPriceCache(indexer, cfg.PriceTTL),
		Metrics:     e.metrics,
	}, logger.Named("verify"))

	transport, err := e.transport(cfg, logger)
	if err != nil {
		return nil, err
	}
	sink, err := e.sink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher(transport, sink, e.metrics, logger.Named("notify"))
	e.correlator = correlate.New(verifier, dispatcher, correlate.Options{
		Window:    cfg.CollectWindow,
		OnSettled: onSettled,
		Metrics:   e.metrics,
	}, logger.Named("correlate"))

	ok = true
	return e, nil
}

// balances prefers RPC where an endpoint is configured and falls back to Etherscan.
func (e *engine) balances(ctx context.Context, cfg config.Config, fallback verify.Balances, logger *zap.Logger) (verify.Balances, error) {
	endpoints := map[model.Network]string{model.Mainnet: cfg.RPCMainnet, model.Testnet: cfg.RPCTestnet}
	callers := map[model.Network]chain.BalanceCaller{}

	for network, url := range endpoints {
		if url == "" {
			continue
		}
		client, err := chain.NewClient(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("connect %s rpc: %w", network, err)
		}
		e.closers = append(e.closers, client.Close)

		chainID, err := client.GetChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s chain id: %w", network, err)
		}
		if chainID.Cmp(big.NewInt(expectedChainID[network])) != 0 {
			logger.Warn("rpc chain id does not match network",
				zap.String("network", string(network)),
				zap.String("chain_id", chainID.String()),
			)
		}
		callers[network] = client
	}

	if len(callers) == 0 {
		return fallback, nil
	}
	return &balanceRouter{
		rpc:      chain.NewBalances(callers, cfg.MaxRetries, cfg.RetryBackoff, logger.Named("chain")),
		networks: callers,
		fallback: fallback,
	}, nil
}

func (e *engine) transport(cfg config.Config, logger *zap.Logger) (notify.Transport, error) {
	switch cfg.Transport {
	case config.TransportLine:
		return notify.NewLineTransport(cfg.LineEndpoint, 5*time.Second), nil
	case config.TransportKafka:
		t := notify.NewKafkaTransport(cfg.KafkaBrokers, cfg.KafkaTopic)
		e.closers = append(e.closers, func() { _ = t.Close() })
		return t, nil
	case config.TransportAMQP:
		t, err := notify.NewAMQPTransport(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = t.Close() })
		return t, nil
	default:
		return notify.NewLogTransport(logger.Named("delivery")), nil
	}
}

func (e *engine) sink(ctx context.Context, cfg config.Config) (storage.Sink, error) {
	if cfg.PGDSN == "" {
		return storage.NewJsonlStorage(cfg.Ledger), nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	e.closers = append(e.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return store, nil
}

// balanceRouter sends lookups for RPC-backed networks to the chain client and the rest to the fallback.
type balanceRouter struct {
	rpc      *chain.Balances
	networks map[model.Network]chain.BalanceCaller
	fallback verify.Balances
}

func (b *balanceRouter) WalletBalance(ctx context.Context, network model.Network, address string) (*big.Int, error) {
	if _, ok := b.networks[network]; ok {
		return b.rpc.WalletBalance(ctx, network, address)
	}
	return b.fallback.WalletBalance(ctx, network, address)
}

func (b *balanceRouter) TokenBalance(ctx context.Context, network model.Network, address, contract string) (*big.Int, error) {
	if _, ok := b.networks[network]; ok {
		return b.rpc.TokenBalance(ctx, network, address, contract)
	}
	return b.fallback.TokenBalance(ctx, network, address, contract)
}
