package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletTracker/internal/correlate"
	"walletTracker/internal/model"
	"walletTracker/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, logSettled(logger), logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	handler := webhook.NewHandler(eng.registry, eng.correlator, eng.metrics, logger.Named("webhook"))
	opts := webhook.RouterOptions{
		Health: func() interface{} { return eng.correlator.Stats() },
	}
	if cfg.MetricsEnabled {
		opts.Metrics = eng.metrics.Handler()
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           webhook.NewRouter(handler, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("tracker start",
		zap.String("listen", cfg.Listen),
		zap.String("transport", cfg.Transport),
		zap.Duration("collect_window", cfg.CollectWindow),
		zap.Duration("retry_interval", cfg.RetryInterval),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int("mainnet_wallets", len(eng.registry.List(model.Mainnet))),
		zap.Int("testnet_wallets", len(eng.registry.List(model.Testnet))),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := eng.correlator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("correlator shutdown", zap.Error(err))
	}
	return nil
}

func logSettled(logger *zap.Logger) func(correlate.Outcome) {
	return func(o correlate.Outcome) {
		fields := []zap.Field{
			zap.String("group_id", o.Group.ID),
			zap.String("tx_hash", o.Group.TxHash),
			zap.String("state", o.Group.State.String()),
		}
		if o.Tx != nil {
			fields = append(fields, zap.String("category", o.Tx.Category.String()))
		}
		if o.Err != nil {
			fields = append(fields, zap.Error(o.Err))
			logger.Warn("group settled without notification", fields...)
			return
		}
		logger.Info("group settled", fields...)
	}
}
