package model

import "strings"

// KindSet is a small bit set of asset kinds.
type KindSet uint8

func kindBit(k AssetKind) KindSet {
	return 1 << uint(k)
}

// NewKindSet builds a set from kinds.
func NewKindSet(kinds ...AssetKind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s = s.Add(k)
	}
	return s
}

func (s KindSet) Add(k AssetKind) KindSet {
	return s | kindBit(k)
}

func (s KindSet) Remove(k AssetKind) KindSet {
	return s &^ kindBit(k)
}

func (s KindSet) Has(k AssetKind) bool {
	return s&kindBit(k) != 0
}

func (s KindSet) Empty() bool {
	return s == 0
}

func (s KindSet) Union(other KindSet) KindSet {
	return s | other
}

// Kinds returns members in rule-table order.
func (s KindSet) Kinds() []AssetKind {
	out := make([]AssetKind, 0, len(AllKinds))
	for _, k := range AllKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) Len() int {
	return len(s.Kinds())
}

func (s KindSet) String() string {
	kinds := s.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
