package bip32

import "testing"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"0", "0"},
		{"0'/1/2'", "0'/1/2'"},
		{"48'/0'/0'/2'", "48'/0'/0'/2'"},
		{"dd4fadee/48'/0'/0'/2'", "dd4fadee/48'/0'/0'/2'"},
		{"@device/0/1", "@device/0/1"},
		{"0/*", "0/*"},
		{"0/<0;5>", "0/<0;5>"},
	}
	for _, tc := range tests {
		p, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got := p.Format(); got != tc.want {
			t.Errorf("Parse(%q).Format() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsOutOfRange(t *testing.T) {
	if _, err := Parse("2147483648"); err == nil {
		t.Fatal("expected error for index >= 2^31")
	}
	if _, err := Parse("2147483648h"); err == nil {
		t.Fatal("expected error for hardened index >= 2^31")
	}
}

func TestEffectiveDepth(t *testing.T) {
	p, err := Parse("0'/1/2'")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.EffectiveDepth(); got != 3 {
		t.Errorf("EffectiveDepth() = %d, want 3", got)
	}
	d := uint32(5)
	p.Depth = &d
	if got := p.EffectiveDepth(); got != 5 {
		t.Errorf("EffectiveDepth() = %d, want 5", got)
	}
}

func TestIsMasterIsHardenedHasWildcard(t *testing.T) {
	master, _ := Parse("")
	if !master.IsMaster() {
		t.Error("empty path should be master")
	}
	withFP, _ := Parse("dd4fadee")
	if withFP.IsMaster() {
		t.Error("fingerprint-origin-only path should not be master")
	}
	hardened, _ := Parse("0'/1")
	if !hardened.IsHardened() {
		t.Error("expected IsHardened")
	}
	wild, _ := Parse("0/*")
	if !wild.HasWildcard() {
		t.Error("expected HasWildcard")
	}
	if hardened.HasWildcard() {
		t.Error("did not expect HasWildcard")
	}
}

func TestDropFirst(t *testing.T) {
	p, _ := Parse("48'/0'/0'/2'")
	rest, ok := p.DropFirst(1)
	if !ok {
		t.Fatal("expected DropFirst to succeed")
	}
	if got := rest.Format(); got != "0'/0'/2'" {
		t.Errorf("DropFirst(1).Format() = %q", got)
	}
	if _, ok := p.DropFirst(10); ok {
		t.Error("expected DropFirst(10) to fail: path too short")
	}
}

func TestRawValue(t *testing.T) {
	step := Step(7, true)
	v := step.RawValue(nil)
	if v == nil || *v != 7|HardenedKeyStart {
		t.Errorf("RawValue = %v, want %d", v, 7|HardenedKeyStart)
	}
	wc := WildcardStep(false)
	if v := wc.RawValue(nil); v != nil {
		t.Errorf("expected nil RawValue for unresolved wildcard, got %v", v)
	}
	sub := uint32(7)
	if v := wc.RawValue(&sub); v == nil || *v != 7 {
		t.Errorf("RawValue with substitution = %v, want 7", v)
	}
}

func TestOriginFingerprint(t *testing.T) {
	p, _ := Parse("dd4fadee/0")
	fp, ok := p.OriginFingerprint()
	if !ok || fp != 0xdd4fadee {
		t.Errorf("OriginFingerprint() = %x, %v", fp, ok)
	}
	named, _ := Parse("@dev/0")
	if _, ok := named.OriginFingerprint(); ok {
		t.Error("named origin should not report a fingerprint")
	}
}
