package model

import (
	"fmt"
	"strings"
)

// Network identifies the chain an activity was observed on.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ParseNetwork accepts the canonical names used in config and the registry file.
func ParseNetwork(input string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "mainnet", "eth", "eth_mainnet":
		return Mainnet, nil
	case "testnet", "sepolia", "goerli", "eth_sepolia", "eth_goerli":
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network: %q", input)
	}
}

// AssetKind is the kind of asset movement a webhook activity reports.
type AssetKind int

const (
	KindNative AssetKind = iota + 1
	KindInternal
	KindFungible
	KindNFT
)

// AllKinds lists every kind in rule-table order.
var AllKinds = []AssetKind{KindNative, KindInternal, KindFungible, KindNFT}

func (k AssetKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindInternal:
		return "internal"
	case KindFungible:
		return "erc20"
	case KindNFT:
		return "erc721"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name for JSON ledgers.
func (k AssetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *AssetKind) UnmarshalText(text []byte) error {
	for _, kind := range AllKinds {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown asset kind: %q", string(text))
}

// ActivityEvent is one webhook-delivered asset movement, already resolved against the wallet registry.
type ActivityEvent struct {
	Network       Network
	TxHash        string
	BlockNum      uint64
	TargetAddress string
	Kind          AssetKind
	Recipients    []string
}
