// Package account builds BIP380-style output descriptors and the
// BCR-2020-010 account output-descriptor bundle from a master HDKey,
// generalizing the teacher's bc/urtypes output-descriptor machinery
// away from a fixed QR-coordinator's hardcoded mainnet/watch-only
// assumption to an arbitrary (network, account) pair.
package account

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/bcfoundation/hdkeycore/bip32"
	"github.com/bcfoundation/hdkeycore/hdkey"
	"github.com/bcfoundation/hdkeycore/useinfo"
)

// ScriptType names an output script template, following the teacher's
// Script enum (bc/urtypes.go) verbatim.
type ScriptType int

const (
	UnknownScript ScriptType = iota
	P2SH
	P2SH_P2WSH
	P2SH_P2WPKH
	P2PKH
	P2WSH
	P2WPKH
	P2TR
)

func (s ScriptType) String() string {
	switch s {
	case P2SH:
		return "Legacy (P2SH)"
	case P2SH_P2WSH:
		return "Nested Segwit (P2SH-P2WSH)"
	case P2SH_P2WPKH:
		return "Nested Segwit (P2SH-P2WPKH)"
	case P2PKH:
		return "Legacy (P2PKH)"
	case P2WSH:
		return "Segwit (P2WSH)"
	case P2WPKH:
		return "Segwit (P2WPKH)"
	case P2TR:
		return "Taproot (P2TR)"
	default:
		return "Unknown"
	}
}

// KeyDescriptor pairs a derived HDKey with the descriptor's place for
// it; provenance (master fingerprint, derivation path) lives on the
// HDKey itself rather than being duplicated here.
type KeyDescriptor struct {
	Key *hdkey.HDKey
}

// OutputDescriptor is a BIP380 descriptor: a script template over one
// or more keys, with an optional multisig threshold.
type OutputDescriptor struct {
	Type      ScriptType
	Threshold int
	Sorted    bool
	Keys      []KeyDescriptor
}

func coinType(network useinfo.Network) uint32 {
	if network == useinfo.TestNet {
		return 1
	}
	return 0
}

// StandardPath returns the BIP44/49/84/86/45/48 standard account-level
// derivation path for (scriptType, network, account, multisig), or an
// error if the combination has no standard path (as
// OutputDescriptor.DerivationPath does in the teacher).
func StandardPath(t ScriptType, network useinfo.Network, account uint32, multisig bool) (bip32.Path, error) {
	coin := coinType(network)
	h := func(v uint32) bip32.DerivationStep { return bip32.Step(v, true) }
	switch {
	case t == P2WPKH && !multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(84), h(coin), h(account)}}, nil
	case t == P2PKH && !multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(44), h(coin), h(account)}}, nil
	case t == P2SH_P2WPKH && !multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(49), h(coin), h(account)}}, nil
	case t == P2TR && !multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(86), h(coin), h(account)}}, nil
	case t == P2SH && multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(45)}}, nil
	case t == P2SH_P2WSH && multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(48), h(coin), h(account), h(1)}}, nil
	case t == P2WSH && multisig:
		return bip32.Path{Steps: []bip32.DerivationStep{h(48), h(coin), h(account), h(2)}}, nil
	}
	return bip32.Path{}, fmt.Errorf("account: no standard path for %s (multisig=%v)", t, multisig)
}

// receiveChangeWildcard is the conventional <0;1>/* children template
// applied to account-level xpubs, per BIP380 multi-path descriptors.
func receiveChangeWildcard() bip32.Path {
	zero, _ := bip32.NewChildIndex(0)
	one, _ := bip32.NewChildIndex(1)
	rangeStep := bip32.DerivationStep{Index: zero, End: &one}
	return bip32.Path{Steps: []bip32.DerivationStep{rangeStep, bip32.WildcardStep(false)}}
}

// accountDescriptor derives the account-level public key for
// (scriptType, network, account) below masterKey and wraps it as a
// one-key OutputDescriptor.
func accountDescriptor(masterKey *hdkey.HDKey, network useinfo.Network, account uint32, t ScriptType) (OutputDescriptor, error) {
	path, err := StandardPath(t, network, account, false)
	if err != nil {
		return OutputDescriptor{}, err
	}
	pub := useinfo.Public
	children := receiveChangeWildcard()
	derived, err := hdkey.DerivePath(masterKey, &pub, path, true, nil, nil, &children)
	if err != nil {
		return OutputDescriptor{}, fmt.Errorf("account: deriving %s: %w", t, err)
	}
	return OutputDescriptor{
		Type:      t,
		Threshold: 1,
		Keys:      []KeyDescriptor{{Key: derived}},
	}, nil
}

// Bundle is the decoded/encoded form of an AccountOutputDescriptorBundle
// (§3.3, §4.6): every requested output descriptor for one master key,
// collected into an ordered list and a by-type index.
type Bundle struct {
	MasterFingerprint uint32
	Descriptors       []OutputDescriptor
	ByType            map[ScriptType]OutputDescriptor
}

// NewAccountBundle builds the descriptor set for every script type in
// types. It fails if masterKey isn't a master key, or if any requested
// type has no standard singlesig path.
func NewAccountBundle(masterKey *hdkey.HDKey, network useinfo.Network, account uint32, types []ScriptType) (*Bundle, error) {
	if !masterKey.IsMaster() {
		return nil, fmt.Errorf("account: bundle requires a master key")
	}
	fp, err := masterKey.KeyFingerprint()
	if err != nil {
		return nil, fmt.Errorf("account: master fingerprint: %w", err)
	}
	b := &Bundle{MasterFingerprint: fp, ByType: make(map[ScriptType]OutputDescriptor, len(types))}
	for _, t := range types {
		d, err := accountDescriptor(masterKey, network, account, t)
		if err != nil {
			return nil, err
		}
		b.Descriptors = append(b.Descriptors, d)
		b.ByType[t] = d
	}
	return b, nil
}

// NewMultisigDescriptor builds a sorted or unsorted multisig descriptor
// of the given script type from a set of cosigner master keys, each
// derived along the script type's standard multisig path. Supplemental
// to AccountOutputDescriptorBundle: the teacher's urtypes.go supports
// multisig descriptors directly and nothing in this spec's non-goals
// excludes them.
func NewMultisigDescriptor(masterKeys []*hdkey.HDKey, network useinfo.Network, account uint32, t ScriptType, threshold int, sorted bool) (OutputDescriptor, error) {
	if threshold <= 0 || threshold > len(masterKeys) {
		return OutputDescriptor{}, fmt.Errorf("account: invalid threshold %d of %d keys", threshold, len(masterKeys))
	}
	path, err := StandardPath(t, network, account, true)
	if err != nil {
		return OutputDescriptor{}, err
	}
	pub := useinfo.Public
	children := receiveChangeWildcard()
	keys := make([]KeyDescriptor, 0, len(masterKeys))
	for _, mk := range masterKeys {
		if !mk.IsMaster() {
			return OutputDescriptor{}, fmt.Errorf("account: multisig cosigner must be a master key")
		}
		derived, err := hdkey.DerivePath(mk, &pub, path, true, nil, nil, &children)
		if err != nil {
			return OutputDescriptor{}, fmt.Errorf("account: deriving cosigner: %w", err)
		}
		keys = append(keys, KeyDescriptor{Key: derived})
	}
	desc := OutputDescriptor{Type: t, Threshold: threshold, Sorted: sorted, Keys: keys}
	if sorted {
		if err := SortKeys(desc.Keys); err != nil {
			return OutputDescriptor{}, err
		}
	}
	return desc, nil
}

// SortKeys orders keys lexicographically by compressed public key, per
// BIP383, the way bc/urtypes.SortKeys does for the teacher's
// OutputDescriptor.
func SortKeys(keys []KeyDescriptor) error {
	pubs := make([][33]byte, len(keys))
	for i, k := range keys {
		pub, err := k.Key.ECPublicKey()
		if err != nil {
			return fmt.Errorf("account: sorting keys: %w", err)
		}
		pubs[i] = pub
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return bytes.Compare(pubs[idx[i]][:], pubs[idx[j]][:]) < 0
	})
	sorted := make([]KeyDescriptor, len(keys))
	for i, j := range idx {
		sorted[i] = keys[j]
	}
	copy(keys, sorted)
	return nil
}
