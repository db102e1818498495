// Package webhook adapts Alchemy address-activity webhooks into activity events.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"walletTracker/internal/model"
)

const (
	typeAddressActivity = "ADDRESS_ACTIVITY"
	testEventDetails    = "<EVENT_DETAILS>"
	nativeAsset         = "ETH"
)

// ErrUnsupportedNetwork is returned for networks the tracker does not watch.
var ErrUnsupportedNetwork = errors.New("webhook: unsupported network")

// Payload is the envelope Alchemy posts for a webhook.
type Payload struct {
	WebhookID string `json:"webhookId"`
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	Type      string `json:"type"`
	Event     Event  `json:"event"`
}

type Event struct {
	Network      string     `json:"network"`
	EventDetails string     `json:"eventDetails"`
	Activity     []Activity `json:"activity"`
}

// Activity is one asset movement inside a transaction.
type Activity struct {
	FromAddress     string          `json:"fromAddress"`
	ToAddress       string          `json:"toAddress"`
	BlockNum        string          `json:"blockNum"`
	Hash            string          `json:"hash"`
	Value           json.Number     `json:"value"`
	Asset           string          `json:"asset"`
	Category        string          `json:"category"`
	ERC721TokenID   *string         `json:"erc721TokenId"`
	ERC1155Metadata json.RawMessage `json:"erc1155Metadata"`
	RawContract     RawContract     `json:"rawContract"`
}

type RawContract struct {
	RawValue string `json:"rawValue"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// Recipients resolves the recipients tracking an address.
type Recipients interface {
	Recipients(network model.Network, address string) []string
}

// IsTest reports whether the payload is a dashboard test notification.
func (p Payload) IsTest() bool {
	return p.Event.EventDetails == testEventDetails
}

// ParseNetwork maps Alchemy network names onto tracker networks.
func ParseNetwork(name string) (model.Network, error) {
	switch strings.ToUpper(name) {
	case "ETH_MAINNET":
		return model.Mainnet, nil
	case "ETH_SEPOLIA", "ETH_GOERLI":
		return model.Testnet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, name)
	}
}

// InferKind classifies an activity by its shape. ERC-1155 activities are not supported.
func InferKind(a Activity) (model.AssetKind, bool) {
	switch {
	case strings.EqualFold(a.Category, "internal"):
		return model.KindInternal, true
	case a.ERC721TokenID != nil && *a.ERC721TokenID != "":
		return model.KindNFT, true
	case hasValue(a.ERC1155Metadata):
		return 0, false
	case strings.EqualFold(a.Asset, nativeAsset):
		return model.KindNative, true
	default:
		return model.KindFungible, true
	}
}

func hasValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// Skip reasons reported by Events.
const (
	SkipUnsupportedKind = "unsupported_kind"
	SkipUntracked       = "untracked"
	SkipMalformed       = "malformed"
)

// Events converts the payload's activities into activity events for tracked wallets.
// Non address-activity and test payloads yield nothing. skipped counts dropped activities by reason.
func (p Payload) Events(registry Recipients) (events []model.ActivityEvent, skipped map[string]int, err error) {
	skipped = map[string]int{}
	if p.Type != typeAddressActivity || p.IsTest() {
		return nil, skipped, nil
	}
	network, err := ParseNetwork(p.Event.Network)
	if err != nil {
		return nil, skipped, err
	}

	for _, a := range p.Event.Activity {
		kind, ok := InferKind(a)
		if !ok {
			skipped[SkipUnsupportedKind]++
			continue
		}
		block, err := hexutil.DecodeUint64(a.BlockNum)
		if err != nil || a.Hash == "" {
			skipped[SkipMalformed]++
			continue
		}

		from := strings.ToLower(a.FromAddress)
		to := strings.ToLower(a.ToAddress)
		fromRecipients := registry.Recipients(network, from)
		toRecipients := registry.Recipients(network, to)

		target := ""
		switch {
		case len(fromRecipients) > 0:
			target = from
		case len(toRecipients) > 0:
			target = to
		default:
			skipped[SkipUntracked]++
			continue
		}

		events = append(events, model.ActivityEvent{
			Network:       network,
			TxHash:        strings.ToLower(a.Hash),
			BlockNum:      block,
			TargetAddress: target,
			Kind:          kind,
			Recipients:    union(fromRecipients, toRecipients),
		})
	}
	return events, skipped, nil
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, r := range list {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
