// Package merge folds the per-kind facets of one transaction into a single view.
package merge

import (
	"errors"

	"go.uber.org/zap"

	"walletTracker/internal/model"
)

// ErrNoFacets is returned when there is nothing to merge.
var ErrNoFacets = errors.New("merge: no facets")

const transferLabel = "Transfer"

var (
	setNative                 = model.NewKindSet(model.KindNative)
	setInternal               = model.NewKindSet(model.KindInternal)
	setFungible               = model.NewKindSet(model.KindFungible)
	setNFT                    = model.NewKindSet(model.KindNFT)
	setNativeFungible         = model.NewKindSet(model.KindNative, model.KindFungible)
	setNativeNFT              = model.NewKindSet(model.KindNative, model.KindNFT)
	setFungibleNFT            = model.NewKindSet(model.KindFungible, model.KindNFT)
	setInternalNFT            = model.NewKindSet(model.KindInternal, model.KindNFT)
	setNativeInternal         = model.NewKindSet(model.KindNative, model.KindInternal)
	setNativeFungibleNFT      = model.NewKindSet(model.KindNative, model.KindFungible, model.KindNFT)
	setNativeInternalFungible = model.NewKindSet(model.KindNative, model.KindInternal, model.KindFungible)
)

// richness orders the fallback base choice.
var richness = []model.AssetKind{model.KindNFT, model.KindFungible, model.KindNative, model.KindInternal}

// Merge combines the resolved facets of one transaction. seen is the set of kinds the
// webhook reported; kinds in seen without a facet are recorded as missing.
// Every non-empty subset of kinds yields a result.
func Merge(facets map[model.AssetKind]model.TransactionFacet, seen model.KindSet, network model.Network, logger *zap.Logger) (model.MergedTransaction, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var present model.KindSet
	for kind := range facets {
		present = present.Add(kind)
	}
	if present.Empty() {
		return model.MergedTransaction{}, ErrNoFacets
	}

	native, hasNative := facets[model.KindNative]
	internal, hasInternal := facets[model.KindInternal]
	fungible := facets[model.KindFungible]
	nft := facets[model.KindNFT]

	var tx model.MergedTransaction
	switch present {
	case setNative:
		tx = fromFacet(native, model.CategoryNative)
		tx.SpendLabel = transferLabel
	case setInternal:
		tx = fromFacet(internal, model.CategoryInternal)
		tx.ReceiveValue = internal.Native.EthValue
	case setFungible:
		tx = fromFacet(fungible, model.CategoryFungible)
		tx.SpendLabel = transferLabel
	case setNFT:
		tx = fromFacet(nft, model.CategoryNFT)
		tx.SpendLabel = transferLabel
	case setNativeFungible:
		tx = fromFacet(fungible, model.CategoryNativeFungible)
		tx.Native = native.Native
		tx.SpendLabel = spendLabel(native)
	case setNativeNFT:
		tx = fromFacet(native, model.CategoryNativeNFT)
		tx.To = nft.To
		tx.NFT = nft.NFT
		tx.SpendLabel = spendLabel(native)
	case setFungibleNFT:
		tx = fromFacet(fungible, model.CategoryFungibleNFT)
		tx.NFT = nft.NFT
	case setInternalNFT:
		tx = fromFacet(nft, model.CategoryInternalNFT)
		tx.Native = internal.Native
		tx.ReceiveValue = internal.Native.EthValue
	case setNativeInternal:
		tx = fromFacet(native, model.CategoryNativeInternal)
		tx.ReceiveValue = internal.Native.EthValue
	case setNativeFungibleNFT:
		tx = fromFacet(nft, model.CategoryNativeFungibleNFT)
		tx.Native = native.Native
		tx.Token = fungible.Token
		tx.SpendLabel = spendLabel(native)
	case setNativeInternalFungible:
		tx = fromFacet(fungible, model.CategoryNativeInternalFungible)
		tx.Native = native.Native
		tx.SpendLabel = spendLabel(native)
		tx.ReceiveValue = internal.Native.EthValue
	default:
		tx = novel(facets, hasNative, native, hasInternal, internal)
		logger.Warn("novel combination",
			zap.String("tx_hash", tx.Hash),
			zap.Stringer("kinds", present),
		)
	}

	tx.Network = network
	tx.KindsPresent = present
	tx.KindsMissing = seen &^ present
	return tx, nil
}

func novel(facets map[model.AssetKind]model.TransactionFacet, hasNative bool, native model.TransactionFacet, hasInternal bool, internal model.TransactionFacet) model.MergedTransaction {
	var tx model.MergedTransaction
	for _, kind := range richness {
		if base, ok := facets[kind]; ok {
			tx = fromFacet(base, model.CategoryNovel)
			break
		}
	}
	for _, kind := range richness {
		f, ok := facets[kind]
		if !ok {
			continue
		}
		if tx.Token == nil && f.Token != nil {
			tx.Token = f.Token
		}
		if tx.NFT == nil && f.NFT != nil {
			tx.NFT = f.NFT
		}
	}
	if hasNative {
		tx.Native = native.Native
		tx.SpendLabel = spendLabel(native)
	} else if hasInternal {
		tx.Native = internal.Native
	}
	if hasInternal {
		tx.ReceiveValue = internal.Native.EthValue
	}
	return tx
}

func fromFacet(f model.TransactionFacet, category model.Category) model.MergedTransaction {
	return model.MergedTransaction{
		Category:           category,
		Hash:               f.Hash,
		From:               f.From,
		To:                 f.To,
		Time:               f.Time,
		GasPriceGwei:       f.GasPriceGwei,
		GasUsed:            f.GasUsed,
		GasFeeFiat:         f.GasFeeFiat,
		ExplorerURL:        f.ExplorerURL,
		WalletBalanceAfter: f.WalletBalanceAfter,
		Native:             f.Native,
		Token:              f.Token,
		NFT:                f.NFT,
	}
}

// spendLabel is "Transfer" when no ether moved, else the ether spent.
func spendLabel(native model.TransactionFacet) string {
	if native.Native.IsZero() {
		return transferLabel
	}
	return native.Native.EthValue + " ETH"
}
