package hdkey

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/tyler-smith/go-bip39"

	"github.com/bcfoundation/hdkeycore/bip32"
	"github.com/bcfoundation/hdkeycore/useinfo"
)

func testMaster(t *testing.T) *HDKey {
	t.Helper()
	seed := bip39.NewSeed("fly mule excess resource treat plunge nose soda reflect adult ramp planet", "")
	k, err := FromSeed(seed, nil)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	return k
}

func TestMasterKeyFromSeed(t *testing.T) {
	master := testMaster(t)
	if !master.IsMaster() {
		t.Fatal("master key reports IsMaster() = false")
	}
	if !master.IsPrivate() {
		t.Fatal("master key reports IsPrivate() = false")
	}
	if master.Parent().EffectiveDepth() != 0 {
		t.Fatalf("depth = %d, want 0", master.Parent().EffectiveDepth())
	}
	cc, ok := master.ChainCode()
	if !ok {
		t.Fatal("master key has no chain code")
	}
	if cc == ([32]byte{}) {
		t.Fatal("master key chain code is all zero")
	}
	fp, err := master.KeyFingerprint()
	if err != nil {
		t.Fatalf("KeyFingerprint: %v", err)
	}
	if fp == 0 {
		t.Fatal("master key fingerprint is zero")
	}

	b58, ok := master.Base58Private()
	if !ok {
		t.Fatal("master key has no private base58 form")
	}
	reloaded, err := FromBase58(b58, FromBase58Options{})
	if err != nil {
		t.Fatalf("FromBase58: %v", err)
	}
	if reloaded.KeyData() != master.KeyData() {
		t.Fatal("round-tripped key data differs")
	}
	rcc, _ := reloaded.ChainCode()
	if rcc != cc {
		t.Fatal("round-tripped chain code differs")
	}
	rfp, err := reloaded.KeyFingerprint()
	if err != nil {
		t.Fatalf("KeyFingerprint: %v", err)
	}
	if rfp != fp {
		t.Fatal("round-tripped fingerprint differs")
	}
}

func TestPathDerivation(t *testing.T) {
	master := testMaster(t)
	p, err := bip32.Parse("48'/0'/0'/2'")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	derived, err := DerivePath(master, nil, p, true, nil, nil, nil)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if got := derived.Parent().EffectiveDepth(); got != 4 {
		t.Fatalf("depth = %d, want 4", got)
	}
	if len(derived.Parent().Steps) != 4 {
		t.Fatalf("parent.steps has %d entries, want 4", len(derived.Parent().Steps))
	}
	originFP, ok := derived.OriginFingerprint()
	if !ok {
		t.Fatal("derived key has no origin fingerprint")
	}
	masterFP, err := master.KeyFingerprint()
	if err != nil {
		t.Fatalf("KeyFingerprint: %v", err)
	}
	if originFP != masterFP {
		t.Fatalf("origin fingerprint = %x, want %x", originFP, masterFP)
	}

	// The fingerprint one level up from the final key must match
	// parentFingerprint.
	oneUp, err := DerivePath(master, nil, mustParse(t, "48'/0'/0'"), true, nil, nil, nil)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	oneUpFP, err := oneUp.KeyFingerprint()
	if err != nil {
		t.Fatalf("KeyFingerprint: %v", err)
	}
	gotFP, ok := derived.ParentFingerprint()
	if !ok {
		t.Fatal("derived key has no parentFingerprint")
	}
	if beUint32(gotFP) != oneUpFP {
		t.Fatalf("parentFingerprint = %x, want %x", gotFP, oneUpFP)
	}
}

func mustParse(t *testing.T, s string) bip32.Path {
	t.Helper()
	p, err := bip32.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return p
}

func TestCannotDeriveHardenedFromPublic(t *testing.T) {
	master := testMaster(t)
	pub := master.Public()
	p := mustParse(t, "0'")
	_, err := DerivePath(pub, nil, p, true, nil, nil, nil)
	if !errors.Is(err, Sentinel(CannotDeriveHardenedFromPublic)) {
		t.Fatalf("got error %v, want CannotDeriveHardenedFromPublic", err)
	}
}

func TestWildcardSubstitution(t *testing.T) {
	master := testMaster(t)
	account, err := DerivePath(master, nil, mustParse(t, "84'/0'/0'"), true, nil, nil, nil)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	step := bip32.WildcardStep(false)
	n := uint32(7)
	child, err := DeriveOne(account, nil, step, &n)
	if err != nil {
		t.Fatalf("DeriveOne: %v", err)
	}
	other, err := DeriveOne(account, nil, bip32.Step(7, false), nil)
	if err != nil {
		t.Fatalf("DeriveOne: %v", err)
	}
	if child.KeyData() != other.KeyData() {
		t.Fatal("wildcard substitution produced a different key than the concrete equivalent")
	}

	_, err = DeriveOne(account, nil, step, nil)
	if !errors.Is(err, Sentinel(CannotDeriveInspecificStep)) {
		t.Fatalf("got error %v, want CannotDeriveInspecificStep", err)
	}
}

func TestCBORCanonicalization(t *testing.T) {
	master := testMaster(t)
	child, err := DeriveOne(master, nil, bip32.Step(0, true), nil)
	if err != nil {
		t.Fatalf("DeriveOne: %v", err)
	}
	if !child.useInfo.IsDefault() {
		t.Fatal("derived key does not have default useInfo")
	}
	if len(child.Children().Steps) != 0 {
		t.Fatal("derived key has non-empty children template")
	}
	enc, err := child.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var tag cbor.RawTag
	if err := cbor.Unmarshal(enc, &tag); err != nil {
		t.Fatalf("Unmarshal tag: %v", err)
	}
	var m map[int]cbor.RawMessage
	if err := cbor.Unmarshal(tag.Content, &m); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	want := map[int]bool{2: true, 3: true, 4: true, 6: true, 8: true}
	if len(m) != len(want) {
		t.Fatalf("map has %d keys, want %d: %v", len(m), len(want), keysOf(m))
	}
	for k := range m {
		if !want[k] {
			t.Fatalf("unexpected key %d in encoded map: %v", k, keysOf(m))
		}
	}

	decoded, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.KeyData() != child.KeyData() {
		t.Fatal("decoded key data differs")
	}
}

func keysOf(m map[int]cbor.RawMessage) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestIdentityDigestStability(t *testing.T) {
	master := testMaster(t)
	a, err := DerivePath(master, nil, mustParse(t, "0"), true, nil, nil, nil)
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	b, err := ProjectByKeyType(a, nil, true, &bip32.Path{}, &bip32.Path{Steps: []bip32.DerivationStep{bip32.Step(99, false)}})
	if err != nil {
		t.Fatalf("ProjectByKeyType: %v", err)
	}
	da, err := a.IdentityDigestSource()
	if err != nil {
		t.Fatalf("IdentityDigestSource: %v", err)
	}
	db, err := b.IdentityDigestSource()
	if err != nil {
		t.Fatalf("IdentityDigestSource: %v", err)
	}
	if hex.EncodeToString(da) != hex.EncodeToString(db) {
		t.Fatal("identity digest source changed when only parent/children changed")
	}
}

func TestFromBase58RejectsGarbage(t *testing.T) {
	_, err := FromBase58("not-a-valid-extended-key", FromBase58Options{})
	if !errors.Is(err, Sentinel(InvalidBase58)) {
		t.Fatalf("got error %v, want InvalidBase58", err)
	}
}

func TestDeriveFromNonDerivable(t *testing.T) {
	master := testMaster(t)
	nonDerivable, err := ProjectByKeyType(master, nil, false, nil, nil)
	if err != nil {
		t.Fatalf("ProjectByKeyType: %v", err)
	}
	_, err = DeriveOne(nonDerivable, nil, bip32.Step(0, true), nil)
	if !errors.Is(err, Sentinel(CannotDeriveFromNonDerivable)) {
		t.Fatalf("got error %v, want CannotDeriveFromNonDerivable", err)
	}
}

func TestCannotDerivePrivateFromPublic(t *testing.T) {
	master := testMaster(t)
	pub := master.Public()
	priv := useinfo.Private
	_, err := DeriveOne(pub, &priv, bip32.Step(0, false), nil)
	if !errors.Is(err, Sentinel(CannotDerivePrivateFromPublic)) {
		t.Fatalf("got error %v, want CannotDerivePrivateFromPublic", err)
	}
}
