// Package cryptokernel is the abstract boundary between the HD-key
// core and the elliptic-curve/base58 primitives it relies on but does
// not implement itself. The production Kernel wraps
// github.com/btcsuite/btcd/btcutil/hdkeychain; a deterministic test
// double can be substituted for fixture generation.
package cryptokernel

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/bcfoundation/hdkeycore/useinfo"
)

// Version bytes for the four BIP32 extended-key flavors.
const (
	VersionMainPrivate uint32 = 0x0488ADE4
	VersionMainPublic  uint32 = 0x0488B21E
	VersionTestPrivate uint32 = 0x04358394
	VersionTestPublic  uint32 = 0x043587CF
)

// VersionFor returns the 4-byte version prefix for (keyType, network).
func VersionFor(isPrivate bool, network useinfo.Network) [4]byte {
	var v uint32
	switch {
	case isPrivate && network == useinfo.MainNet:
		v = VersionMainPrivate
	case !isPrivate && network == useinfo.MainNet:
		v = VersionMainPublic
	case isPrivate && network == useinfo.TestNet:
		v = VersionTestPrivate
	default:
		v = VersionTestPublic
	}
	var b [4]byte
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
	return b
}

// NetworkFor recovers the Network implied by a version prefix. It
// fails if the bytes don't match a known BIP32 version.
func NetworkFor(version [4]byte) (network useinfo.Network, isPrivate bool, err error) {
	v := uint32(version[0])<<24 | uint32(version[1])<<16 | uint32(version[2])<<8 | uint32(version[3])
	switch v {
	case VersionMainPrivate:
		return useinfo.MainNet, true, nil
	case VersionMainPublic:
		return useinfo.MainNet, false, nil
	case VersionTestPrivate:
		return useinfo.TestNet, true, nil
	case VersionTestPublic:
		return useinfo.TestNet, false, nil
	default:
		return 0, false, fmt.Errorf("cryptokernel: unknown version bytes %x", version)
	}
}

// ExtKey is the wire-level extended-key structure the core reconstitutes
// for every kernel call: depth, child number, chain code, key material,
// parent fingerprint, and the network/privacy flags that the version
// bytes encode.
type ExtKey struct {
	Depth             uint8
	ChildNum          uint32
	ChainCode         []byte // 32 bytes, or nil if not derivable
	PrivKey           []byte // 33 bytes (0x00 prefix) when private, nil when public
	PubKey            []byte // 33-byte SEC1-compressed point
	ParentFingerprint [4]byte
	IsPrivate         bool
	Network           useinfo.Network
}

// IsMaster reports whether the key sits at BIP32 depth 0.
func (k ExtKey) IsMaster() bool { return k.Depth == 0 }

// Kernel is every elliptic-curve/base58 capability the HD-key core
// calls into. It is assumed stateless and safe for concurrent use.
type Kernel interface {
	MasterKeyFromSeed(seed []byte, network useinfo.Network) (ExtKey, error)
	ParseBase58(s string) (ExtKey, error)
	SerializeBase58(k ExtKey, isPrivate bool) (string, error)
	DeriveChild(k ExtKey, childNum uint32, wantPrivate bool) (ExtKey, error)
	PublicFromPrivate(k ExtKey) ([]byte, error)
	Hash160(pubKey33 []byte) [20]byte
	Fingerprint(pubKey33 []byte) [4]byte
}

// Default is the production Kernel backed by btcsuite/btcd.
var Default Kernel = btcKernel{}

type btcKernel struct{}

func netParams(n useinfo.Network) *chaincfg.Params {
	if n == useinfo.TestNet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

func (btcKernel) MasterKeyFromSeed(seed []byte, network useinfo.Network) (ExtKey, error) {
	k, err := hdkeychain.NewMaster(seed, netParams(network))
	if err != nil {
		return ExtKey{}, fmt.Errorf("cryptokernel: invalid seed: %w", err)
	}
	return fromHD(k, network)
}

func (btcKernel) ParseBase58(s string) (ExtKey, error) {
	k, err := hdkeychain.NewKeyFromString(s)
	if err != nil {
		return ExtKey{}, fmt.Errorf("cryptokernel: invalid base58: %w", err)
	}
	network, _, err := NetworkFor([4]byte(k.Version()))
	if err != nil {
		return ExtKey{}, fmt.Errorf("cryptokernel: invalid base58: %w", err)
	}
	return fromHD(k, network)
}

func (btcKernel) SerializeBase58(k ExtKey, isPrivate bool) (string, error) {
	hd, err := toHD(k)
	if err != nil {
		return "", err
	}
	if isPrivate && !hd.IsPrivate() {
		return "", fmt.Errorf("cryptokernel: cannot serialize private form of a public-only key")
	}
	if !isPrivate && hd.IsPrivate() {
		neutered, err := hd.Neuter()
		if err != nil {
			return "", fmt.Errorf("cryptokernel: neuter: %w", err)
		}
		hd = neutered
	}
	return hd.String(), nil
}

func (btcKernel) DeriveChild(k ExtKey, childNum uint32, wantPrivate bool) (ExtKey, error) {
	hd, err := toHD(k)
	if err != nil {
		return ExtKey{}, err
	}
	if wantPrivate && !hd.IsPrivate() {
		return ExtKey{}, fmt.Errorf("cryptokernel: cannot derive a private child from a public key")
	}
	child, err := hd.Child(childNum)
	if err != nil {
		return ExtKey{}, fmt.Errorf("cryptokernel: derivation failed: %w", err)
	}
	if hd.IsPrivate() && !wantPrivate {
		child, err = child.Neuter()
		if err != nil {
			return ExtKey{}, fmt.Errorf("cryptokernel: neuter: %w", err)
		}
	}
	return fromHD(child, k.Network)
}

func (btcKernel) PublicFromPrivate(k ExtKey) ([]byte, error) {
	hd, err := toHD(k)
	if err != nil {
		return nil, err
	}
	pub, err := hd.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("cryptokernel: %w", err)
	}
	return pub.SerializeCompressed(), nil
}

func (btcKernel) Hash160(pubKey33 []byte) [20]byte {
	var out [20]byte
	copy(out[:], btcutil.Hash160(pubKey33))
	return out
}

func (btcKernel) Fingerprint(pubKey33 []byte) [4]byte {
	h := btcutil.Hash160(pubKey33)
	var fp [4]byte
	copy(fp[:], h[:4])
	return fp
}

// toHD reconstitutes an hdkeychain.ExtendedKey from k, recomputing the
// public key from the private scalar when needed, exactly as spec.md
// §4.3 describes for wallyExtKey reconstitution.
func toHD(k ExtKey) (*hdkeychain.ExtendedKey, error) {
	version := VersionFor(k.IsPrivate, k.Network)
	keyMaterial := k.PrivKey
	if len(keyMaterial) == 33 && keyMaterial[0] == 0x00 {
		// hdkeychain holds the bare 32-byte scalar.
		keyMaterial = keyMaterial[1:]
	}
	if !k.IsPrivate {
		keyMaterial = k.PubKey
	}
	chainCode := k.ChainCode
	if chainCode == nil {
		chainCode = make([]byte, 32)
	}
	parentFP := make([]byte, 4)
	copy(parentFP, k.ParentFingerprint[:])
	return hdkeychain.NewExtendedKey(
		version[:], keyMaterial, chainCode, parentFP,
		k.Depth, k.ChildNum, k.IsPrivate,
	), nil
}

func fromHD(k *hdkeychain.ExtendedKey, network useinfo.Network) (ExtKey, error) {
	out := ExtKey{
		Depth:     k.Depth(),
		ChildNum:  k.ChildIndex(),
		IsPrivate: k.IsPrivate(),
		Network:   network,
	}
	if cc := k.ChainCode(); len(cc) == 32 {
		out.ChainCode = append([]byte(nil), cc...)
	}
	copy(out.ParentFingerprint[:], parentFPBytes(k.ParentFingerprint()))
	if k.IsPrivate() {
		priv, err := k.ECPrivKey()
		if err != nil {
			return ExtKey{}, fmt.Errorf("cryptokernel: %w", err)
		}
		scalar := priv.Serialize()
		out.PrivKey = append([]byte{0x00}, scalar...)
		pub, err := k.ECPubKey()
		if err != nil {
			return ExtKey{}, fmt.Errorf("cryptokernel: %w", err)
		}
		out.PubKey = pub.SerializeCompressed()
	} else {
		pub, err := k.ECPubKey()
		if err != nil {
			return ExtKey{}, fmt.Errorf("cryptokernel: %w", err)
		}
		out.PubKey = pub.SerializeCompressed()
	}
	return out, nil
}

func parentFPBytes(fp uint32) []byte {
	return []byte{byte(fp >> 24), byte(fp >> 16), byte(fp >> 8), byte(fp)}
}
