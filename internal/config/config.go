package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Transport names accepted by the transport key.
const (
	TransportLog   = "log"
	TransportLine  = "line"
	TransportKafka = "kafka"
	TransportAMQP  = "amqp"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen         string
	EtherscanKey   string
	EtherscanRate  float64
	RPCMainnet     string
	RPCTestnet     string
	CollectWindow  time.Duration
	RetryInterval  time.Duration
	MaxAttempts    int
	MaxRetries     int
	RetryBackoff   time.Duration
	PriceTTL       time.Duration
	Timezone       string
	Location       *time.Location
	Registry       string
	Transport      string
	KafkaBrokers   []string
	KafkaTopic     string
	AMQPURL        string
	AMQPExchange   string
	LineEndpoint   string
	Ledger         string
	PGDSN          string
	MetricsEnabled bool
	In             string
	LogLevel       string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("etherscan-rate", 5.0)
	v.SetDefault("collect-window", 2*time.Second)
	v.SetDefault("retry-interval", 5*time.Second)
	v.SetDefault("max-attempts", 120)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("price-ttl", time.Minute)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("registry", "./data/wallets.json")
	v.SetDefault("transport", TransportLog)
	v.SetDefault("kafka-topic", "wallet-notifications")
	v.SetDefault("amqp-exchange", "wallet-notifications")
	v.SetDefault("ledger", "./data/notifications.jsonl")
	v.SetDefault("metrics", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Listen:         v.GetString("listen"),
		EtherscanKey:   v.GetString("etherscan-key"),
		EtherscanRate:  v.GetFloat64("etherscan-rate"),
		RPCMainnet:     v.GetString("rpc-mainnet"),
		RPCTestnet:     v.GetString("rpc-testnet"),
		CollectWindow:  v.GetDuration("collect-window"),
		RetryInterval:  v.GetDuration("retry-interval"),
		MaxAttempts:    v.GetInt("max-attempts"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		PriceTTL:       v.GetDuration("price-ttl"),
		Timezone:       v.GetString("timezone"),
		Registry:       v.GetString("registry"),
		Transport:      strings.ToLower(v.GetString("transport")),
		KafkaBrokers:   getStringSlice(v, "kafka-brokers"),
		KafkaTopic:     v.GetString("kafka-topic"),
		AMQPURL:        v.GetString("amqp-url"),
		AMQPExchange:   v.GetString("amqp-exchange"),
		LineEndpoint:   v.GetString("line-endpoint"),
		Ledger:         v.GetString("ledger"),
		PGDSN:          v.GetString("pg-dsn"),
		MetricsEnabled: v.GetBool("metrics"),
		In:             v.GetString("in"),
		LogLevel:       v.GetString("log-level"),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks the settings the serve and replay commands depend on.
func (c Config) Validate() error {
	if c.CollectWindow <= 0 {
		return fmt.Errorf("collect-window must be positive")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry-interval must be positive")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max-attempts must not be negative")
	}
	if c.EtherscanRate <= 0 {
		return fmt.Errorf("etherscan-rate must be positive")
	}

	switch c.Transport {
	case TransportLog, TransportLine:
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("kafka transport requires kafka-brokers and kafka-topic")
		}
	case TransportAMQP:
		if c.AMQPURL == "" || c.AMQPExchange == "" {
			return fmt.Errorf("amqp transport requires amqp-url and amqp-exchange")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
