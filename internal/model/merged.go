package model

import "fmt"

// Category is the merge category of a MergedTransaction; it selects the notification template.
type Category int

const (
	CategoryNative Category = iota + 1
	CategoryInternal
	CategoryFungible
	CategoryNFT
	CategoryNativeFungible
	CategoryNativeNFT
	CategoryFungibleNFT
	CategoryInternalNFT
	CategoryNativeInternal
	CategoryNativeFungibleNFT
	CategoryNativeInternalFungible
	// CategoryNovel covers kind combinations with no dedicated rule.
	CategoryNovel
)

var categoryNames = map[Category]string{
	CategoryNative:                 "native",
	CategoryInternal:               "internal",
	CategoryFungible:               "erc20",
	CategoryNFT:                    "erc721",
	CategoryNativeFungible:         "native_erc20",
	CategoryNativeNFT:              "native_erc721",
	CategoryFungibleNFT:            "erc20_erc721",
	CategoryInternalNFT:            "internal_erc721",
	CategoryNativeInternal:         "native_internal",
	CategoryNativeFungibleNFT:      "native_erc20_erc721",
	CategoryNativeInternalFungible: "native_internal_erc20",
	CategoryNovel:                  "novel",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// MergedTransaction is the single coherent view of a logical transaction passed to notification.
type MergedTransaction struct {
	Category     Category
	KindsPresent KindSet
	KindsMissing KindSet

	Hash               string
	Network            Network
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

	SpendLabel   string
	ReceiveValue string
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(text []byte) error {
	for category, name := range categoryNames {
		if name == string(text) {
			*c = category
			return nil
		}
	}
	return fmt.Errorf("unknown category: %q", string(text))
}
