package model

import "math/big"

// TransactionFacet is the verified, formatted view of one asset kind's part of a transaction.
// Exactly one of Native, Token or NFT is set, matching Kind.
type TransactionFacet struct {
	Kind               AssetKind
	Hash               string
	From               string
	To                 string
	Time               string
	GasPriceGwei       string
	GasUsed            string
	GasFeeFiat         string
	ExplorerURL        string
	WalletBalanceAfter string

	Native *NativeDetail
	Token  *TokenDetail
	NFT    *NFTDetail
}

// NativeDetail carries ether movements (NATIVE and INTERNAL kinds).
type NativeDetail struct {
	EthValue string
	ValueWei *big.Int
	Action   string
}

// IsZero reports whether no ether moved.
func (d *NativeDetail) IsZero() bool {
	return d == nil || d.ValueWei == nil || d.ValueWei.Sign() == 0
}

// TokenDetail carries an ERC-20 transfer.
type TokenDetail struct {
	Symbol       string
	Amount       string
	BalanceAfter string
	Contract     string
}

// NFTDetail carries an ERC-721 transfer.
type NFTDetail struct {
	Collection string
	TokenID    string
	Contract   string
}
