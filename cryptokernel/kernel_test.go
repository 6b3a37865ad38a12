package cryptokernel

import (
	"testing"

	"github.com/bcfoundation/hdkeycore/useinfo"
)

func TestVersionRoundTrip(t *testing.T) {
	cases := []struct {
		isPrivate bool
		network   useinfo.Network
	}{
		{true, useinfo.MainNet},
		{false, useinfo.MainNet},
		{true, useinfo.TestNet},
		{false, useinfo.TestNet},
	}
	for _, c := range cases {
		v := VersionFor(c.isPrivate, c.network)
		network, isPrivate, err := NetworkFor(v)
		if err != nil {
			t.Fatalf("NetworkFor(%x): %v", v, err)
		}
		if network != c.network || isPrivate != c.isPrivate {
			t.Fatalf("NetworkFor(%x) = (%v, %v), want (%v, %v)", v, network, isPrivate, c.network, c.isPrivate)
		}
	}
}

func TestNetworkForRejectsUnknownVersion(t *testing.T) {
	if _, _, err := NetworkFor([4]byte{0, 0, 0, 0}); err == nil {
		t.Fatal("NetworkFor accepted an unknown version prefix")
	}
}

func TestMasterKeyFromSeedAndDerive(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	master, err := Default.MasterKeyFromSeed(seed, useinfo.MainNet)
	if err != nil {
		t.Fatalf("MasterKeyFromSeed: %v", err)
	}
	if !master.IsMaster() {
		t.Fatal("master key reports IsMaster() = false")
	}
	if len(master.ChainCode) != 32 {
		t.Fatalf("chain code is %d bytes, want 32", len(master.ChainCode))
	}

	child, err := Default.DeriveChild(master, 0x80000000, true)
	if err != nil {
		t.Fatalf("DeriveChild: %v", err)
	}
	if child.Depth != 1 {
		t.Fatalf("child depth = %d, want 1", child.Depth)
	}

	s58, err := Default.SerializeBase58(child, true)
	if err != nil {
		t.Fatalf("SerializeBase58: %v", err)
	}
	reloaded, err := Default.ParseBase58(s58)
	if err != nil {
		t.Fatalf("ParseBase58: %v", err)
	}
	if reloaded.Depth != child.Depth || reloaded.ChildNum != child.ChildNum {
		t.Fatalf("round-tripped ext key differs: got %+v, want %+v", reloaded, child)
	}
}

func TestFingerprintIsFirstFourBytesOfHash160(t *testing.T) {
	pub := make([]byte, 33)
	pub[0] = 0x02
	h := Default.Hash160(pub)
	fp := Default.Fingerprint(pub)
	if fp != [4]byte(h[:4]) {
		t.Fatalf("fingerprint %x != hash160 prefix %x", fp, h[:4])
	}
}
