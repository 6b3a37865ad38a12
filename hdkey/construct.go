package hdkey

import (
	"fmt"
	"strings"

	"github.com/bcfoundation/hdkeycore/bip32"
	"github.com/bcfoundation/hdkeycore/cryptokernel"
	"github.com/bcfoundation/hdkeycore/useinfo"
)

func keyTypeOf(isPrivate bool) useinfo.KeyType {
	if isPrivate {
		return useinfo.Private
	}
	return useinfo.Public
}

func u32(v uint32) *uint32 { return &v }

// FromSeed builds the master key from BIP39 seed bytes (the mnemonic's
// own wordlist→entropy mapping is out of this core's scope; callers
// supply the 64-byte seed directly, e.g. via golang.org/x/crypto/pbkdf2
// or github.com/tyler-smith/go-bip39's Mnemonic->Seed).
func FromSeed(seed []byte, use *useinfo.UseInfo) (*HDKey, error) {
	ui := useinfo.Default
	if use != nil {
		ui = *use
	}
	ext, err := cryptokernel.Default.MasterKeyFromSeed(seed, ui.Network)
	if err != nil {
		return nil, errKind(InvalidSeed, err)
	}
	fp := cryptokernel.Default.Fingerprint(ext.PubKey)
	var keyData [32 + 1]byte
	copy(keyData[:], ext.PrivKey)
	var cc [32]byte
	copy(cc[:], ext.ChainCode)
	parent := bip32.Path{
		Origin: bip32.FingerprintOrigin(beUint32(fp)),
		Depth:  u32(0),
	}
	return new_(true, useinfo.Private, keyData, &cc, ui, parent, bip32.Path{}, nil, cryptokernel.Default), nil
}

// FromBase58Options carries the optional parameters of FromBase58.
type FromBase58Options struct {
	UseInfo                   *useinfo.UseInfo
	Parent                    *bip32.Path
	Children                  *bip32.Path
	OverrideOriginFingerprint *uint32
}

// FromBase58 parses a serialized extended key and reconstructs the
// HDKey it denotes, synthesizing a provenance path when the caller
// doesn't supply one (see DESIGN.md's open-question decisions:
// the caller-supplied parent path is authoritative; synthesis only
// happens when parent is omitted).
func FromBase58(s string, opts FromBase58Options) (*HDKey, error) {
	ext, err := cryptokernel.Default.ParseBase58(s)
	if err != nil {
		return nil, errKind(InvalidBase58, err)
	}
	ui := useinfo.UseInfo{Asset: useinfo.BTC, Network: ext.Network}
	if opts.UseInfo != nil {
		ui = *opts.UseInfo
	}
	var isMaster bool
	var parent bip32.Path
	if opts.Parent != nil {
		parent = *opts.Parent
		isMaster = parent.IsMaster() && ext.IsPrivate
	} else {
		isMaster = ext.Depth == 0 && ext.IsPrivate
		var steps []bip32.DerivationStep
		if ext.ChildNum != 0 {
			idx, hardened := ext.ChildNum&^bip32.HardenedKeyStart, ext.ChildNum&bip32.HardenedKeyStart != 0
			steps = []bip32.DerivationStep{bip32.Step(idx, hardened)}
		}
		selfFP := cryptokernel.Default.Fingerprint(pubOrDerive(ext))
		fp := beUint32(selfFP)
		if opts.OverrideOriginFingerprint != nil {
			fp = *opts.OverrideOriginFingerprint
		}
		depth := uint32(ext.Depth)
		parent = bip32.Path{Steps: steps, Origin: bip32.FingerprintOrigin(fp), Depth: &depth}
	}
	var children bip32.Path
	if opts.Children != nil {
		children = *opts.Children
	}
	var parentFP *[4]byte
	if !isMaster {
		pfp := ext.ParentFingerprint
		parentFP = &pfp
	}
	keyData, err := extKeyData(ext)
	if err != nil {
		return nil, errKind(InvalidBase58, err)
	}
	var cc *[32]byte
	if len(ext.ChainCode) == 32 {
		var c [32]byte
		copy(c[:], ext.ChainCode)
		cc = &c
	}
	return new_(isMaster, keyTypeOf(ext.IsPrivate), keyData, cc, ui, parent, children, parentFP, cryptokernel.Default), nil
}

// FromExtKeyOptions carries the optional parameters of FromExtKey.
type FromExtKeyOptions struct {
	UseInfo  *useinfo.UseInfo
	Parent   *bip32.Path
	Children *bip32.Path
}

// FromExtKey builds an HDKey directly from raw extended-key material.
// Unlike FromBase58, the chain code is always present.
func FromExtKey(ext cryptokernel.ExtKey, opts FromExtKeyOptions) (*HDKey, error) {
	ui := useinfo.UseInfo{Asset: useinfo.BTC, Network: ext.Network}
	if opts.UseInfo != nil {
		ui = *opts.UseInfo
	}
	var isMaster bool
	var parent bip32.Path
	if opts.Parent != nil {
		parent = *opts.Parent
		isMaster = parent.IsMaster() && ext.IsPrivate
	} else {
		isMaster = ext.Depth == 0 && ext.IsPrivate
		var steps []bip32.DerivationStep
		if ext.ChildNum != 0 {
			idx, hardened := ext.ChildNum&^bip32.HardenedKeyStart, ext.ChildNum&bip32.HardenedKeyStart != 0
			steps = []bip32.DerivationStep{bip32.Step(idx, hardened)}
		}
		depth := uint32(ext.Depth)
		parent = bip32.Path{Steps: steps, Depth: &depth}
	}
	var children bip32.Path
	if opts.Children != nil {
		children = *opts.Children
	}
	var parentFP *[4]byte
	if !isMaster {
		pfp := ext.ParentFingerprint
		parentFP = &pfp
	}
	keyData, err := extKeyData(ext)
	if err != nil {
		return nil, errKind(UnknownDerivationError, err)
	}
	if len(ext.ChainCode) != 32 {
		return nil, errKind(UnknownDerivationError, fmt.Errorf("chain code required"))
	}
	var cc [32]byte
	copy(cc[:], ext.ChainCode)
	return new_(isMaster, keyTypeOf(ext.IsPrivate), keyData, &cc, ui, parent, children, parentFP, cryptokernel.Default), nil
}

func extKeyData(ext cryptokernel.ExtKey) ([33]byte, error) {
	var out [33]byte
	if ext.IsPrivate {
		if len(ext.PrivKey) != 33 {
			return out, fmt.Errorf("malformed private key material")
		}
		copy(out[:], ext.PrivKey)
	} else {
		if len(ext.PubKey) != 33 {
			return out, fmt.Errorf("malformed public key material")
		}
		copy(out[:], ext.PubKey)
	}
	return out, nil
}

func pubOrDerive(ext cryptokernel.ExtKey) []byte {
	if len(ext.PubKey) == 33 {
		return ext.PubKey
	}
	pub, err := cryptokernel.Default.PublicFromPrivate(ext)
	if err != nil {
		return make([]byte, 33)
	}
	return pub
}

// ProjectByKeyType re-projects key to derivedKeyType (defaulting to
// key's own type when nil), optionally clearing the chain code to mark
// the result non-derivable, and optionally overriding parent/children.
func ProjectByKeyType(key *HDKey, derivedKeyType *useinfo.KeyType, isDerivable bool, parent, children *bip32.Path) (*HDKey, error) {
	dt := key.keyType
	if derivedKeyType != nil {
		dt = *derivedKeyType
	}
	if dt.IsPrivate() && !key.IsPrivate() {
		return nil, errKind(CannotDerivePrivateFromPublic, nil)
	}
	keyData := key.keyData
	if key.keyType != dt {
		pub, err := key.publicKeyBytes()
		if err != nil {
			return nil, errKind(UnknownDerivationError, err)
		}
		copy(keyData[:], pub)
	}
	var cc *[32]byte
	if isDerivable {
		if c, ok := key.ChainCode(); ok {
			cc = &c
		}
	}
	p := key.parent
	if parent != nil {
		p = *parent
	}
	ch := key.children
	if children != nil {
		ch = *children
	}
	var pfp *[4]byte
	if f, ok := key.ParentFingerprint(); ok {
		pfp = &f
	}
	isMaster := key.isMaster && dt.IsPrivate()
	return new_(isMaster, dt, keyData, cc, key.useInfo, p, ch, pfp, key.kernel), nil
}

// Public returns the public projection of k. Infallible: a private key
// always yields a valid public projection, and a public key returns
// itself.
func (k *HDKey) Public() *HDKey {
	if !k.IsPrivate() {
		return k
	}
	dt := useinfo.Public
	res, err := ProjectByKeyType(k, &dt, k.IsDerivable(), nil, nil)
	if err != nil {
		panic("hdkey: public projection of a valid private key cannot fail: " + err.Error())
	}
	return res
}

func (k *HDKey) toExtKey() (cryptokernel.ExtKey, error) {
	depth := k.parent.EffectiveDepth()
	if depth > 255 {
		return cryptokernel.ExtKey{}, fmt.Errorf("depth %d exceeds BIP32 maximum", depth)
	}
	var childNum uint32
	if len(k.parent.Steps) > 0 {
		last := k.parent.Steps[len(k.parent.Steps)-1]
		v := last.RawValue(nil)
		if v == nil {
			return cryptokernel.ExtKey{}, errKind(CannotDeriveInspecificStep, nil)
		}
		childNum = *v
	}
	ext := cryptokernel.ExtKey{
		Depth:     uint8(depth),
		ChildNum:  childNum,
		IsPrivate: k.IsPrivate(),
		Network:   k.useInfo.Network,
	}
	if fp, ok := k.ParentFingerprint(); ok {
		ext.ParentFingerprint = fp
	}
	if cc, ok := k.ChainCode(); ok {
		ext.ChainCode = cc[:]
	}
	kd := k.keyData
	if k.IsPrivate() {
		ext.PrivKey = kd[:]
	} else {
		ext.PubKey = kd[:]
	}
	return ext, nil
}

// DeriveOne derives a single child step from parent, optionally
// re-projecting the result to derivedKeyType.
func DeriveOne(parent *HDKey, derivedKeyType *useinfo.KeyType, step bip32.DerivationStep, wildcardChildNum *uint32) (*HDKey, error) {
	dt := parent.keyType
	if derivedKeyType != nil {
		dt = *derivedKeyType
	}
	if parent.keyType == useinfo.Public && dt == useinfo.Private {
		return nil, errKind(CannotDerivePrivateFromPublic, nil)
	}
	if !parent.IsDerivable() {
		return nil, errKind(CannotDeriveFromNonDerivable, nil)
	}
	raw := step.RawValue(wildcardChildNum)
	if raw == nil {
		return nil, errKind(CannotDeriveInspecificStep, nil)
	}
	ext, err := parent.toExtKey()
	if err != nil {
		return nil, err
	}
	childExt, err := parent.kernel.DeriveChild(ext, *raw, parent.IsPrivate())
	if err != nil {
		return nil, errKind(UnknownDerivationError, err)
	}
	parentFP, err := parent.KeyFingerprintData()
	if err != nil {
		return nil, errKind(UnknownDerivationError, err)
	}
	idx, hardened := *raw&^bip32.HardenedKeyStart, *raw&bip32.HardenedKeyStart != 0
	newParentPath := parent.parent.Append(bip32.Step(idx, hardened))
	keyData, err := extKeyData(childExt)
	if err != nil {
		return nil, errKind(UnknownDerivationError, err)
	}
	var cc *[32]byte
	if len(childExt.ChainCode) == 32 {
		var c [32]byte
		copy(c[:], childExt.ChainCode)
		cc = &c
	}
	child := new_(false, keyTypeOf(childExt.IsPrivate), keyData, cc, parent.useInfo, newParentPath, bip32.Path{}, &parentFP, parent.kernel)
	if dt != child.keyType {
		child, err = ProjectByKeyType(child, &dt, true, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	return child, nil
}

// PrivateKeyProvider supplies the private form of a public key, used
// only when hardened derivation from a public key is requested.
type PrivateKeyProvider func(public *HDKey) (*HDKey, error)

// DerivePath derives base along childPath, optionally rebasing the
// path onto base's own provenance when childPath carries an origin,
// requesting a private-key escalation for hardened steps from a public
// key, and finally re-projecting to derivedKeyType.
func DerivePath(
	base *HDKey,
	derivedKeyType *useinfo.KeyType,
	childPath bip32.Path,
	isDerivable bool,
	wildcardChildNum *uint32,
	privateKeyProvider PrivateKeyProvider,
	children *bip32.Path,
) (*HDKey, error) {
	p := childPath
	if childPath.Origin.Kind != bip32.OriginNone {
		rebased, ok := p.DropFirst(int(base.parent.EffectiveDepth()))
		if !ok {
			return nil, errKind(InvalidDepth, nil)
		}
		p = rebased
	}
	cur := base
	if cur.keyType == useinfo.Public && p.IsHardened() {
		if privateKeyProvider == nil {
			return nil, errKind(CannotDeriveHardenedFromPublic, nil)
		}
		priv, err := privateKeyProvider(cur)
		if err != nil || priv == nil || !priv.IsPrivate() {
			return nil, errKind(CannotDeriveHardenedFromPublic, err)
		}
		cur = priv
	}
	for _, step := range p.Steps {
		next, err := DeriveOne(cur, nil, step, wildcardChildNum)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	dt := cur.keyType
	if derivedKeyType != nil {
		dt = *derivedKeyType
	}
	return ProjectByKeyType(cur, &dt, isDerivable, nil, children)
}

// Base58Private serializes k in private form, or reports false if k
// holds no private key material.
func (k *HDKey) Base58Private() (string, bool) {
	if !k.IsPrivate() {
		return "", false
	}
	ext, err := k.toExtKey()
	if err != nil {
		return "", false
	}
	s, err := k.kernel.SerializeBase58(ext, true)
	if err != nil {
		return "", false
	}
	return s, true
}

// Base58Public serializes k's public projection, or reports false if
// that's impossible.
func (k *HDKey) Base58Public() (string, bool) {
	pub := k.Public()
	ext, err := pub.toExtKey()
	if err != nil {
		return "", false
	}
	s, err := pub.kernel.SerializeBase58(ext, false)
	if err != nil {
		return "", false
	}
	return s, true
}

// Base58 serializes k preferring the private form, falling back to
// public, falling back to the literal string "invalid".
func (k *HDKey) Base58() string {
	if s, ok := k.Base58Private(); ok {
		return s
	}
	if s, ok := k.Base58Public(); ok {
		return s
	}
	return "invalid"
}

// Description renders "[parent]base58/children", eliding empty
// parent/children segments.
func (k *HDKey) Description(withParent, withChildren bool) string {
	var b strings.Builder
	if withParent && len(k.parent.Steps) > 0 {
		b.WriteByte('[')
		b.WriteString(k.parent.Format())
		b.WriteByte(']')
	}
	b.WriteString(k.Base58())
	if withChildren && len(k.children.Steps) > 0 {
		b.WriteByte('/')
		b.WriteString(k.children.Format())
	}
	return b.String()
}

// FullDescription is Description(true, true).
func (k *HDKey) FullDescription() string { return k.Description(true, true) }
