// Package hdkey implements the BIP32 HD-key core: construction from a
// BIP39 seed, serialized base58, or raw extended-key material;
// derivation along a path; public/private projection; base58 and
// tagged-CBOR codecs; and full provenance tracking (origin
// fingerprint, depth, parent path, child-template path).
package hdkey

import (
	"github.com/bcfoundation/hdkeycore/bip32"
	"github.com/bcfoundation/hdkeycore/cryptokernel"
	"github.com/bcfoundation/hdkeycore/useinfo"
)

// HDKey is an immutable BIP32 extended key with full provenance. Every
// operation that would "mutate" a key instead returns a new one.
type HDKey struct {
	isMaster bool
	keyType  useinfo.KeyType
	keyData  [33]byte
	// chainCode is nil when the key is not usable as a derivation
	// parent.
	chainCode *[32]byte
	useInfo   useinfo.UseInfo
	// parent is this key's provenance path from its origin source.
	parent bip32.Path
	// children is a template path of intended descendants; it may
	// contain wildcards.
	children bip32.Path
	// parentFingerprint is absent for master keys.
	parentFingerprint *[4]byte

	kernel cryptokernel.Kernel
}

// new_ builds an HDKey by copying every field explicitly. Absent parent
// or children become empty paths, matching spec.md's "non-optional
// field whose empty value denotes unknown/none" modeling choice.
func new_(
	isMaster bool,
	keyType useinfo.KeyType,
	keyData [33]byte,
	chainCode *[32]byte,
	use useinfo.UseInfo,
	parent, children bip32.Path,
	parentFingerprint *[4]byte,
	kernel cryptokernel.Kernel,
) *HDKey {
	if kernel == nil {
		kernel = cryptokernel.Default
	}
	return &HDKey{
		isMaster:          isMaster,
		keyType:           keyType,
		keyData:           keyData,
		chainCode:         chainCode,
		useInfo:           use,
		parent:            parent,
		children:          children,
		parentFingerprint: parentFingerprint,
		kernel:            kernel,
	}
}

// IsMaster reports whether k is the master key derived directly from a
// seed: depth 0 and private.
func (k *HDKey) IsMaster() bool { return k.isMaster }

// KeyType reports whether k holds private or public key material.
func (k *HDKey) KeyType() useinfo.KeyType { return k.keyType }

// IsPrivate reports whether k holds a private scalar.
func (k *HDKey) IsPrivate() bool { return k.keyType.IsPrivate() }

// KeyData returns the 33-byte key material: 0x00‖scalar for private
// keys, a SEC1-compressed point for public keys.
func (k *HDKey) KeyData() [33]byte { return k.keyData }

// ChainCode returns the 32-byte chain code and true, or false if k is
// not derivable.
func (k *HDKey) ChainCode() ([32]byte, bool) {
	if k.chainCode == nil {
		return [32]byte{}, false
	}
	return *k.chainCode, true
}

// IsDerivable reports whether k carries a chain code and can parent
// further derivation.
func (k *HDKey) IsDerivable() bool { return k.chainCode != nil }

// UseInfo returns the (asset, network) pair k is scoped to.
func (k *HDKey) UseInfo() useinfo.UseInfo { return k.useInfo }

// Parent returns the provenance path from k's origin source.
func (k *HDKey) Parent() bip32.Path { return k.parent }

// Children returns the template path of intended descendants.
func (k *HDKey) Children() bip32.Path { return k.children }

// RequiresWildcardChildNum reports whether k's children template
// contains an unresolved wildcard.
func (k *HDKey) RequiresWildcardChildNum() bool { return k.children.HasWildcard() }

// ParentFingerprint returns the first 4 bytes of HASH160 of the
// parent's public key, and true, or false for a master key.
func (k *HDKey) ParentFingerprint() ([4]byte, bool) {
	if k.parentFingerprint == nil {
		return [4]byte{}, false
	}
	return *k.parentFingerprint, true
}

// OriginFingerprint propagates parent.OriginFingerprint(); it is never
// recomputed.
func (k *HDKey) OriginFingerprint() (uint32, bool) {
	return k.parent.OriginFingerprint()
}

// KeyFingerprintData returns the first 4 bytes of HASH160(pubkey).
func (k *HDKey) KeyFingerprintData() ([4]byte, error) {
	pub, err := k.publicKeyBytes()
	if err != nil {
		return [4]byte{}, err
	}
	return k.kernel.Fingerprint(pub), nil
}

// KeyFingerprint is KeyFingerprintData as a big-endian uint32.
func (k *HDKey) KeyFingerprint() (uint32, error) {
	fp, err := k.KeyFingerprintData()
	if err != nil {
		return 0, err
	}
	return beUint32(fp), nil
}

func (k *HDKey) publicKeyBytes() ([]byte, error) {
	if !k.IsPrivate() {
		kd := k.keyData
		return kd[:], nil
	}
	ext, err := k.toExtKey()
	if err != nil {
		return nil, err
	}
	return k.kernel.PublicFromPrivate(ext)
}

// ECPublicKey returns the 33-byte compressed point.
func (k *HDKey) ECPublicKey() ([33]byte, error) {
	pub, err := k.publicKeyBytes()
	if err != nil {
		return [33]byte{}, err
	}
	var out [33]byte
	copy(out[:], pub)
	return out, nil
}

// ECPrivateKey returns the 32-byte scalar and true, or false when
// k.KeyType() is Public.
func (k *HDKey) ECPrivateKey() ([32]byte, bool) {
	if !k.IsPrivate() {
		return [32]byte{}, false
	}
	var out [32]byte
	copy(out[:], k.keyData[1:])
	return out, true
}

func beUint32(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
