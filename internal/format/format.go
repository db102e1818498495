// Package format turns indexer records into display-ready transaction facets.
package format

import (
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"walletTracker/internal/model"
)

// Unknown is shown for any value that could not be derived.
const Unknown = "-"

const (
	weiDecimals  = 18
	gweiDecimals = 9
)

var explorerTxBase = map[model.Network]string{
	model.Mainnet: "https://etherscan.io/tx/",
	model.Testnet: "https://sepolia.etherscan.io/tx/",
}

// ExplorerTxURL returns the block explorer page of a transaction.
func ExplorerTxURL(network model.Network, hash string) string {
	base, ok := explorerTxBase[network]
	if !ok {
		base = explorerTxBase[model.Mainnet]
	}
	return base + hash
}

// Context is the enrichment available when formatting one record.
// Nil balances and a zero price render as Unknown.
type Context struct {
	Network       model.Network
	Target        string
	EthUSD        decimal.Decimal
	WalletBalance *big.Int
	TokenBalance  *big.Int
	Location      *time.Location
}

// Facet formats rec as a facet of the given kind. It has no side effects,
// so formatting the same inputs twice yields equal facets.
func Facet(rec model.RawRecord, kind model.AssetKind, ctx Context) model.TransactionFacet {
	hash := strings.ToLower(rec.Hash)
	facet := model.TransactionFacet{
		Kind:               kind,
		Hash:               hash,
		From:               strings.ToLower(rec.From),
		To:                 strings.ToLower(rec.To),
		Time:               Timestamp(rec.TimeStamp, ctx.Location),
		GasPriceGwei:       GasPriceGwei(rec.GasPrice),
		GasUsed:            orUnknown(rec.GasUsed),
		GasFeeFiat:         GasFeeFiat(rec.GasUsed, rec.GasPrice, ctx.EthUSD),
		ExplorerURL:        ExplorerTxURL(ctx.Network, hash),
		WalletBalanceAfter: EthAmount(ctx.WalletBalance),
	}

	switch kind {
	case model.KindNative, model.KindInternal:
		wei := parseBig(rec.Value)
		facet.Native = &model.NativeDetail{
			EthValue: EthAmount(wei),
			ValueWei: wei,
			Action:   Action(rec, kind, ctx.Target),
		}
	case model.KindFungible:
		decimals := parseDecimals(rec.TokenDecimal)
		facet.Token = &model.TokenDetail{
			Symbol:       orUnknown(rec.TokenSymbol),
			Amount:       TokenAmount(parseBig(rec.Value), decimals),
			BalanceAfter: TokenAmount(ctx.TokenBalance, decimals),
			Contract:     strings.ToLower(rec.ContractAddress),
		}
	case model.KindNFT:
		facet.NFT = &model.NFTDetail{
			Collection: orUnknown(rec.TokenName),
			TokenID:    orUnknown(rec.TokenID),
			Contract:   strings.ToLower(rec.ContractAddress),
		}
	}
	return facet
}

// Timestamp renders unix seconds as RFC 3339 in loc (UTC when nil).
func Timestamp(unix string, loc *time.Location) string {
	secs, err := strconv.ParseInt(strings.TrimSpace(unix), 10, 64)
	if err != nil {
		return Unknown
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(secs, 0).In(loc).Format(time.RFC3339)
}

// GasPriceGwei converts a wei gas price to whole gwei.
func GasPriceGwei(wei string) string {
	value := parseBig(wei)
	if value == nil {
		return Unknown
	}
	return decimal.NewFromBigInt(value, -gweiDecimals).Round(0).String()
}

// GasFeeFiat is gasUsed * gasPrice in ether, priced at ethUSD and rounded to cents.
func GasFeeFiat(gasUsed, gasPrice string, ethUSD decimal.Decimal) string {
	used, price := parseBig(gasUsed), parseBig(gasPrice)
	if used == nil || price == nil || !ethUSD.IsPositive() {
		return Unknown
	}
	feeWei := new(big.Int).Mul(used, price)
	return decimal.NewFromBigInt(feeWei, -weiDecimals).Mul(ethUSD).Round(2).StringFixed(2)
}

// EthAmount converts wei to ether rounded to four places.
func EthAmount(wei *big.Int) string {
	if wei == nil {
		return Unknown
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).Round(4).String()
}

// TokenAmount scales a raw token amount by its decimals, rounded to four places.
func TokenAmount(raw *big.Int, decimals int32) string {
	if raw == nil {
		return Unknown
	}
	return decimal.NewFromBigInt(raw, -decimals).Round(4).String()
}

// Action labels what the target wallet did in an ether movement.
func Action(rec model.RawRecord, kind model.AssetKind, target string) string {
	target = strings.ToLower(target)
	if kind == model.KindInternal {
		if strings.ToLower(rec.To) == target {
			return "Receive"
		}
		return "Send"
	}

	if name := functionLabel(rec.FunctionName); name != "" {
		return name
	}
	if strings.ToLower(rec.From) == target {
		return "Send"
	}
	return "Receive"
}

// functionLabel turns "swapExactETHForTokens(uint256 amountOutMin, ...)" into "SwapExactETHForTokens".
func functionLabel(signature string) string {
	name := strings.TrimSpace(signature)
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(first)) + name[size:]
}

func parseBig(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return value
}

func parseDecimals(s string) int32 {
	d, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || d < 0 {
		return 0
	}
	return int32(d)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
