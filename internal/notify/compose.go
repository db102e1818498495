package notify

import (
	"fmt"
	"strings"

	"walletTracker/internal/model"
)

const rule = "------------------------------------"

// Compose renders the message for a merged transaction. It is a pure function of tx.
// A template that needs a detail its merge rule did not populate panics.
func Compose(tx model.MergedTransaction) string {
	m := &message{}
	if tx.Network == model.Testnet {
		m.text("[Testnet]")
	}

	switch tx.Category {
	case model.CategoryNative:
		native := mustNative(tx)
		m.text("New Transaction Found!")
		m.parties(tx)
		m.field("Value", native.EthValue+" ETH")
		m.field("Type", tx.SpendLabel)
		m.field("Action", native.Action)
		m.gas(tx)
		m.footer(tx, nil)
	case model.CategoryInternal:
		mustNative(tx)
		m.text("New Internal Transaction Found!")
		m.parties(tx)
		m.field("Received", tx.ReceiveValue+" ETH")
		m.footer(tx, nil)
	case model.CategoryFungible:
		token := mustToken(tx)
		m.text("New Token Transfer Found!")
		m.parties(tx)
		m.field("Amount", token.Amount+" "+token.Symbol)
		m.field("Action", tx.SpendLabel)
		m.gas(tx)
		m.footer(tx, token)
	case model.CategoryNFT:
		nft := mustNFT(tx)
		m.text("New NFT Transaction Found!")
		m.parties(tx)
		m.nft(nft)
		m.field("Price", tx.SpendLabel)
		m.gas(tx)
		m.footer(tx, nil)
	case model.CategoryNativeFungible:
		token, native := mustToken(tx), mustNative(tx)
		m.text("New Token Transaction Found!")
		m.parties(tx)
		m.field("Amount", token.Amount+" "+token.Symbol)
		m.field("Paid", tx.SpendLabel)
		m.field("Action", native.Action)
		m.gas(tx)
		m.footer(tx, token)
	case model.CategoryNativeNFT:
		nft, native := mustNFT(tx), mustNative(tx)
		m.text("New NFT Transaction Found!")
		m.parties(tx)
		m.nft(nft)
		m.field("Price", tx.SpendLabel)
		m.field("Action", native.Action)
		m.gas(tx)
		m.footer(tx, nil)
	case model.CategoryFungibleNFT:
		nft, token := mustNFT(tx), mustToken(tx)
		m.text("New NFT Transaction Found!")
		m.parties(tx)
		m.nft(nft)
		m.field("Price", token.Amount+" "+token.Symbol)
		m.gas(tx)
		m.footer(tx, token)
	case model.CategoryInternalNFT:
		nft := mustNFT(tx)
		mustNative(tx)
		m.text("New NFT Sale Found!")
		m.parties(tx)
		m.nft(nft)
		m.field("Received", tx.ReceiveValue+" ETH")
		m.gas(tx)
		m.footer(tx, nil)
	case model.CategoryNativeInternal:
		native := mustNative(tx)
		m.text("New Swap Found!")
		m.parties(tx)
		m.field("Paid", native.EthValue+" ETH")
		m.field("Received", tx.ReceiveValue+" ETH")
		m.field("Action", native.Action)
		m.gas(tx)
		m.footer(tx, nil)
	case model.CategoryNativeFungibleNFT:
		nft, token, native := mustNFT(tx), mustToken(tx), mustNative(tx)
		m.text("New NFT Transaction Found!")
		m.parties(tx)
		m.nft(nft)
		m.field("Price", tx.SpendLabel)
		m.field("Token", token.Amount+" "+token.Symbol)
		m.field("Action", native.Action)
		m.gas(tx)
		m.footer(tx, token)
	case model.CategoryNativeInternalFungible:
		token, native := mustToken(tx), mustNative(tx)
		m.text("New Swap Found!")
		m.parties(tx)
		m.field("Paid", tx.SpendLabel)
		m.field("Received", tx.ReceiveValue+" ETH")
		m.field("Token", token.Amount+" "+token.Symbol)
		m.field("Action", native.Action)
		m.gas(tx)
		m.footer(tx, token)
	case model.CategoryNovel:
		m.text("New Transaction Found!")
		m.parties(tx)
		m.field("Kinds", tx.KindsPresent.String())
		if tx.NFT != nil {
			m.nft(tx.NFT)
		}
		if tx.Token != nil {
			m.field("Token", tx.Token.Amount+" "+tx.Token.Symbol)
		}
		if tx.SpendLabel != "" {
			m.field("Paid", tx.SpendLabel)
		}
		if tx.ReceiveValue != "" {
			m.field("Received", tx.ReceiveValue+" ETH")
		}
		if tx.Native != nil {
			m.field("Action", tx.Native.Action)
		}
		m.gas(tx)
		m.footer(tx, tx.Token)
	default:
		panic(fmt.Sprintf("compose %s: unknown category %s", tx.Hash, tx.Category))
	}

	return m.String()
}

type message struct {
	strings.Builder
}

func (m *message) text(s string) {
	m.WriteString(s)
	m.WriteByte('\n')
}

func (m *message) field(label, value string) {
	m.text(label + ": " + value)
}

func (m *message) parties(tx model.MergedTransaction) {
	m.text(rule)
	m.field("From", tx.From)
	m.field("To", tx.To)
	m.field("Time", tx.Time)
}

func (m *message) nft(nft *model.NFTDetail) {
	m.text(nft.Collection + " #" + nft.TokenID)
}

func (m *message) gas(tx model.MergedTransaction) {
	m.field("Gas Price", tx.GasPriceGwei+" Gwei")
	m.field("Gas Fee", tx.GasFeeFiat+" USD")
}

func (m *message) footer(tx model.MergedTransaction, token *model.TokenDetail) {
	m.text(rule)
	if !tx.KindsMissing.Empty() {
		m.field("Unverified", tx.KindsMissing.String())
	}
	m.field("Current Balance", tx.WalletBalanceAfter+" ETH")
	if token != nil {
		m.field("Current Token Balance", token.BalanceAfter+" "+token.Symbol)
	}
	m.WriteString(tx.ExplorerURL)
}

func mustNative(tx model.MergedTransaction) *model.NativeDetail {
	if tx.Native == nil {
		panic(fmt.Sprintf("compose %s (%s): missing native detail", tx.Hash, tx.Category))
	}
	return tx.Native
}

func mustToken(tx model.MergedTransaction) *model.TokenDetail {
	if tx.Token == nil {
		panic(fmt.Sprintf("compose %s (%s): missing token detail", tx.Hash, tx.Category))
	}
	return tx.Token
}

func mustNFT(tx model.MergedTransaction) *model.NFTDetail {
	if tx.NFT == nil {
		panic(fmt.Sprintf("compose %s (%s): missing nft detail", tx.Hash, tx.Category))
	}
	return tx.NFT
}
