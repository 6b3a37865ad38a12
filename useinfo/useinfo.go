// Package useinfo carries the (asset, network) pair attached to an
// HDKey, plus the private/public KeyType tag.
package useinfo

// Asset identifies the coin an HDKey is scoped to. Only Bitcoin is
// modeled; the type exists so the wire format can elide the common
// case per BCR-2020-007.
type Asset int

const (
	BTC Asset = iota
)

func (a Asset) String() string {
	switch a {
	case BTC:
		return "btc"
	default:
		return "unknown"
	}
}

// Network selects the BIP32 version-byte family.
type Network int

const (
	MainNet Network = iota
	TestNet
)

func (n Network) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet:
		return "testnet"
	default:
		return "unknown"
	}
}

// UseInfo is the (asset, network) pair. Default is the canonical
// sentinel elided from the wire form.
type UseInfo struct {
	Asset   Asset
	Network Network
}

// Default is (btc, mainnet), the value omitted from encoded HDKeys.
var Default = UseInfo{Asset: BTC, Network: MainNet}

// IsDefault reports whether u equals Default.
func (u UseInfo) IsDefault() bool {
	return u == Default
}

// KeyType discriminates private and public HDKeys.
type KeyType int

const (
	Private KeyType = iota
	Public
)

// IsPrivate reports whether t is Private.
func (t KeyType) IsPrivate() bool { return t == Private }

func (t KeyType) String() string {
	if t.IsPrivate() {
		return "private"
	}
	return "public"
}
