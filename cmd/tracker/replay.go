package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletTracker/internal/config"
	"walletTracker/internal/correlate"
	"walletTracker/internal/model"
	"walletTracker/internal/webhook"
)

const idlePoll = 200 * time.Millisecond

type replaySummary struct {
	mu        sync.Mutex
	notified  int
	abandoned int
	cancelled int
	delivered int
	failed    int
}

func (s *replaySummary) record(o correlate.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case o.Record != nil:
		s.notified++
		s.delivered += o.Record.Delivered
		s.failed += o.Record.Failed
	case o.Group.State == model.StateAbandoned:
		s.abandoned++
	default:
		s.cancelled++
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.In == "" {
		return fmt.Errorf("--in is required")
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.Transport = config.TransportLog
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

	summary := &replaySummary{}
	settled := logSettled(logger)
	eng, err := buildEngine(ctx, cfg, func(o correlate.Outcome) {
		summary.record(o)
		settled(o)
	}, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	handler := webhook.NewHandler(eng.registry, eng.correlator, eng.metrics, logger.Named("webhook"))

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("transport", cfg.Transport),
		zap.Duration("collect_window", cfg.CollectWindow),
	)

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, accepted, failed int
	skipped := map[string]int{}
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var payload webhook.Payload
		if err := json.Unmarshal(line, &payload); err != nil {
			failed++
			logger.Warn("bad payload line", zap.Int("line", total), zap.Error(err))
			continue
		}
		n, skips, err := handler.Accept(payload)
		if err != nil {
			failed++
			logger.Warn("payload rejected", zap.Int("line", total), zap.Error(err))
			continue
		}
		accepted += n
		for reason, count := range skips {
			skipped[reason] += count
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	waitIdle(ctx, eng.correlator)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := eng.correlator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("correlator shutdown", zap.Error(err))
	}

	summary.mu.Lock()
	defer summary.mu.Unlock()
	logger.Info("replay complete",
		zap.Int("payloads", total),
		zap.Int("failed_payloads", failed),
		zap.Int("events", accepted),
		zap.Any("skipped", skipped),
		zap.Int("notified", summary.notified),
		zap.Int("abandoned", summary.abandoned),
		zap.Int("cancelled", summary.cancelled),
		zap.Int("delivered", summary.delivered),
		zap.Int("delivery_failures", summary.failed),
	)
	return nil
}

// waitIdle blocks until the correlator holds no groups or ctx is done.
func waitIdle(ctx context.Context, c *correlate.Correlator) {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for {
		s := c.Stats()
		if s.Collecting == 0 && s.InFlight == 0 && s.Parked == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
