package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"walletTracker/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "tracker",
		Short:        "Ethereum wallet activity tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("registry", "./data/wallets.json", "tracked wallet registry file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive webhooks and notify recipients",
		RunE:  runServe,
	}
	addEngineFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("metrics", true, "expose /metrics")
	root.AddCommand(serveCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed captured webhook payloads (JSONL) through the engine",
		RunE:  runReplay,
	}
	addEngineFlags(replayCmd)
	replayCmd.Flags().String("in", "", "input webhook payloads JSONL")
	replayCmd.Flags().Bool("dry-run", false, "log notifications instead of delivering them")
	root.AddCommand(replayCmd)

	root.AddCommand(newWalletsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("etherscan-key", "", "Etherscan API key")
	cmd.Flags().Float64("etherscan-rate", 5, "Etherscan requests per second")
	cmd.Flags().String("rpc-mainnet", "", "mainnet RPC URL for balance lookups (optional)")
	cmd.Flags().String("rpc-testnet", "", "testnet RPC URL for balance lookups (optional)")
	cmd.Flags().Duration("collect-window", 2*time.Second, "how long sibling events are collected")
	cmd.Flags().Duration("retry-interval", 5*time.Second, "indexer polling interval")
	cmd.Flags().Int("max-attempts", 120, "indexer polling rounds per group, 0 means unbounded")
	cmd.Flags().Duration("price-ttl", time.Minute, "ETH price cache ttl")
	cmd.Flags().String("timezone", "UTC", "time zone for notification timestamps")
	cmd.Flags().String("transport", config.TransportLog, "delivery transport (log, line, kafka, amqp)")
	cmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers (comma-separated)")
	cmd.Flags().String("kafka-topic", "wallet-notifications", "Kafka topic")
	cmd.Flags().String("amqp-url", "", "AMQP broker URL")
	cmd.Flags().String("amqp-exchange", "wallet-notifications", "AMQP topic exchange")
	cmd.Flags().String("line-endpoint", "", "LINE Notify endpoint override")
	cmd.Flags().String("ledger", "./data/notifications.jsonl", "notification ledger JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the notification ledger (overrides --ledger)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
