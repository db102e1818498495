// Package etherscan is a typed client for the Etherscan account and stats APIs.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"walletTracker/internal/model"
	"walletTracker/internal/retry"
)

// ErrNotFound is returned when the indexer has no record for the query yet.
var ErrNotFound = errors.New("etherscan: no records found")

const (
	defaultMainnetURL = "https://api.etherscan.io/api"
	defaultTestnetURL = "https://api-sepolia.etherscan.io/api"
	pageSize          = 100
)

// Config holds client settings.
type Config struct {
	APIKey       string
	BaseURLs     map[model.Network]string
	RateLimit    float64
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client queries Etherscan. It is safe for concurrent use; all requests share one rate limiter.
type Client struct {
	cfg        Config
	baseURLs   map[model.Network]string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient builds a Client. Missing base URLs fall back to the public endpoints.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	baseURLs := map[model.Network]string{
		model.Mainnet: defaultMainnetURL,
		model.Testnet: defaultTestnetURL,
	}
	for network, u := range cfg.BaseURLs {
		if u != "" {
			baseURLs[network] = u
		}
	}

	return &Client{
		cfg:        cfg,
		baseURLs:   baseURLs,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:     logger,
	}
}

func actionFor(kind model.AssetKind) (string, error) {
	switch kind {
	case model.KindNative:
		return "txlist", nil
	case model.KindInternal:
		return "txlistinternal", nil
	case model.KindFungible:
		return "tokentx", nil
	case model.KindNFT:
		return "tokennfttx", nil
	default:
		return "", fmt.Errorf("etherscan: unsupported asset kind %s", kind)
	}
}

// FetchTransfers lists the address's records of the given kind from startBlock onwards.
// It returns ErrNotFound when the indexer has nothing yet; any other error is a transport or parse failure.
func (c *Client) FetchTransfers(ctx context.Context, network model.Network, address string, kind model.AssetKind, startBlock uint64) ([]model.RawRecord, error) {
	action, err := actionFor(kind)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("startblock", strconv.FormatUint(startBlock, 10))
	params.Set("endblock", "99999999")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(pageSize))
	params.Set("sort", "asc")

	var records []model.RawRecord
	if err := c.call(ctx, network, "account", action, params, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// WalletBalance returns the latest ether balance in wei.
func (c *Client) WalletBalance(ctx context.Context, network model.Network, address string) (*big.Int, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("tag", "latest")
	return c.bigIntWithRetry(ctx, network, "balance", params)
}

// TokenBalance returns the latest ERC-20 balance in the token's smallest unit.
func (c *Client) TokenBalance(ctx context.Context, network model.Network, address, contract string) (*big.Int, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("contractaddress", contract)
	params.Set("tag", "latest")
	return c.bigIntWithRetry(ctx, network, "tokenbalance", params)
}

type ethPrice struct {
	EthUSD string `json:"ethusd"`
}

// EtherPrice returns the last ETH/USD price reported by mainnet stats.
func (c *Client) EtherPrice(ctx context.Context) (decimal.Decimal, error) {
	var price ethPrice
	err := retry.Do(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		return c.call(ctx, model.Mainnet, "stats", "ethprice", url.Values{}, &price)
	})
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(price.EthUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("etherscan: parse ethusd %q: %w", price.EthUSD, err)
	}
	return value, nil
}

func (c *Client) bigIntWithRetry(ctx context.Context, network model.Network, action string, params url.Values) (*big.Int, error) {
	var raw string
	err := retry.Do(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		err := c.call(ctx, network, "account", action, params, &raw)
		if err != nil {
			c.logger.Debug("etherscan call failed", zap.String("action", action), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("etherscan: %s: invalid integer %q", action, raw)
	}
	return value, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, network model.Network, module, action string, params url.Values, out interface{}) error {
	base, ok := c.baseURLs[network]
	if !ok {
		return fmt.Errorf("etherscan: no endpoint for network %q", network)
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("module", module)
	query.Set("action", action)
	if c.cfg.APIKey != "" {
		query.Set("apikey", c.cfg.APIKey)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("etherscan: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("etherscan: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("etherscan: %s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("etherscan: %s: read body: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("etherscan: %s: http status %d", action, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("etherscan: %s: decode envelope: %w", action, err)
	}
	if env.Status != "1" {
		if isNoRecords(env) {
			return ErrNotFound
		}
		return fmt.Errorf("etherscan: %s: %s: %s", action, env.Message, resultText(env.Result))
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("etherscan: %s: decode result: %w", action, err)
	}
	return nil
}

func isNoRecords(env envelope) bool {
	msg := strings.ToLower(env.Message)
	if strings.HasPrefix(msg, "no transactions found") || strings.HasPrefix(msg, "no records found") {
		return true
	}
	trimmed := strings.TrimSpace(string(env.Result))
	return msg == "ok" && (trimmed == "[]" || trimmed == "")
}

func resultText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}
