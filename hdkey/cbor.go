package hdkey

import (
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/bcfoundation/hdkeycore/bip32"
	"github.com/bcfoundation/hdkeycore/useinfo"
)

// Wire tag numbers, fixed at the protocol level (§4.4/§6.2). tagHDKey
// and tagDerivationPath are the teacher's bc/urtypes numbers, reused
// verbatim; tagUseInfo is BCR-2020-007's own use-info tag, adjacent to
// them.
const (
	tagHDKey          = 303
	tagDerivationPath = 304
	tagUseInfo        = 305
)

type wireUseInfo struct {
	Asset   int `cbor:"1,keyasint,omitempty"`
	Network int `cbor:"2,keyasint,omitempty"`
}

type wireDerivationPath struct {
	Components  []any  `cbor:"1,keyasint,omitempty"`
	Fingerprint uint32 `cbor:"2,keyasint,omitempty"`
	Depth       uint8  `cbor:"3,keyasint,omitempty"`
}

type wireHDKey struct {
	IsMaster          bool                `cbor:"1,keyasint,omitempty"`
	// IsPrivate is a pointer so a genuinely-absent key 2 (nil) is
	// distinguishable from an explicit false on decode.
	IsPrivate         *bool               `cbor:"2,keyasint,omitempty"`
	KeyData           []byte              `cbor:"3,keyasint"`
	ChainCode         []byte              `cbor:"4,keyasint,omitempty"`
	UseInfo           *wireUseInfo        `cbor:"5,keyasint,omitempty"`
	Parent            *wireDerivationPath `cbor:"6,keyasint,omitempty"`
	Children          *wireDerivationPath `cbor:"7,keyasint,omitempty"`
	ParentFingerprint uint32              `cbor:"8,keyasint,omitempty"`
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	tags := cbor.NewTagSet()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional}, reflect.TypeOf(wireHDKey{}), tagHDKey))
	must(tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional, EncTag: cbor.EncTagRequired}, reflect.TypeOf(wireDerivationPath{}), tagDerivationPath))
	must(tags.Add(cbor.TagOptions{DecTag: cbor.DecTagOptional, EncTag: cbor.EncTagRequired}, reflect.TypeOf(wireUseInfo{}), tagUseInfo))
	em, err := cbor.CoreDetEncOptions().EncModeWithTags(tags)
	must(err)
	encMode = em
	dm, err := cbor.DecOptions{}.DecModeWithTags(tags)
	must(err)
	decMode = dm
}

func pathToWire(p bip32.Path) *wireDerivationPath {
	if len(p.Steps) == 0 {
		if _, ok := p.OriginFingerprint(); !ok && p.Depth == nil {
			return nil
		}
	}
	w := &wireDerivationPath{}
	for _, s := range p.Steps {
		switch {
		case s.IsRange():
			w.Components = append(w.Components, []any{s.Index.Value(), s.End.Value()}, s.Hardened)
		case s.Index.IsWildcard():
			w.Components = append(w.Components, []any{}, s.Hardened)
		default:
			w.Components = append(w.Components, s.Index.Value(), s.Hardened)
		}
	}
	if fp, ok := p.OriginFingerprint(); ok {
		w.Fingerprint = fp
	}
	if p.Depth != nil {
		w.Depth = uint8(*p.Depth)
	}
	return w
}

func wireToPath(w *wireDerivationPath) (bip32.Path, error) {
	if w == nil {
		return bip32.Path{}, nil
	}
	steps, err := wireToSteps(w.Components)
	if err != nil {
		return bip32.Path{}, err
	}
	p := bip32.Path{Steps: steps}
	if w.Fingerprint != 0 {
		p.Origin = bip32.FingerprintOrigin(w.Fingerprint)
	}
	if w.Depth != 0 {
		d := uint32(w.Depth)
		p.Depth = &d
	}
	return p, nil
}

func wireToSteps(comp []any) ([]bip32.DerivationStep, error) {
	if len(comp)%2 == 1 {
		return nil, fmt.Errorf("hdkey: odd number of path components")
	}
	var steps []bip32.DerivationStep
	for i := 0; i < len(comp); i += 2 {
		v, h := comp[i], comp[i+1]
		hardened, ok := h.(bool)
		if !ok {
			return nil, fmt.Errorf("hdkey: invalid hardened flag in path")
		}
		switch val := v.(type) {
		case uint64:
			if val > math.MaxUint32 {
				return nil, fmt.Errorf("hdkey: path index out of range")
			}
			idx, err := bip32.NewChildIndex(uint32(val))
			if err != nil {
				return nil, fmt.Errorf("hdkey: %w", err)
			}
			steps = append(steps, bip32.DerivationStep{Index: idx, Hardened: hardened})
		case []any:
			switch len(val) {
			case 0:
				steps = append(steps, bip32.WildcardStep(hardened))
			case 2:
				lo, okLo := val[0].(uint64)
				hi, okHi := val[1].(uint64)
				if !okLo || !okHi || lo > math.MaxUint32 || hi > math.MaxUint32 {
					return nil, fmt.Errorf("hdkey: invalid range in path")
				}
				start, err := bip32.NewChildIndex(uint32(lo))
				if err != nil {
					return nil, fmt.Errorf("hdkey: %w", err)
				}
				end, err := bip32.NewChildIndex(uint32(hi))
				if err != nil {
					return nil, fmt.Errorf("hdkey: %w", err)
				}
				steps = append(steps, bip32.DerivationStep{Index: start, End: &end})
			default:
				return nil, fmt.Errorf("hdkey: unsupported range encoding in flat path")
			}
		default:
			return nil, fmt.Errorf("hdkey: unknown path component type %T", v)
		}
	}
	return steps, nil
}

// Encode serializes k as a tagged-CBOR hdKey envelope (§4.4).
func (k *HDKey) Encode() ([]byte, error) {
	w := wireHDKey{}
	if k.isMaster {
		w.IsMaster = true
	}
	if priv := k.IsPrivate(); priv != k.isMaster {
		w.IsPrivate = &priv
	}
	kd := k.keyData
	w.KeyData = append([]byte(nil), kd[:]...)
	if cc, ok := k.ChainCode(); ok {
		w.ChainCode = append([]byte(nil), cc[:]...)
	}
	if !k.useInfo.IsDefault() {
		w.UseInfo = &wireUseInfo{Asset: int(k.useInfo.Asset), Network: int(k.useInfo.Network)}
	}
	w.Parent = pathToWire(k.parent)
	w.Children = pathToWire(k.children)
	if fp, ok := k.ParentFingerprint(); ok {
		w.ParentFingerprint = beUint32(fp)
	}
	enc, err := encMode.Marshal(cbor.Tag{Number: tagHDKey, Content: w})
	if err != nil {
		return nil, errKind(UnknownDerivationError, err)
	}
	return enc, nil
}

// Decode parses a tagged-CBOR hdKey envelope, enforcing §4.4's decode
// rules.
func Decode(enc []byte) (*HDKey, error) {
	var w wireHDKey
	if err := decMode.Unmarshal(enc, &w); err != nil {
		return nil, errKind(InvalidFormat, err)
	}
	// Absent key 2 means isPrivate defaults to isMaster (§4.4).
	isPrivate := w.IsMaster
	if w.IsPrivate != nil {
		isPrivate = *w.IsPrivate
	}
	if w.IsMaster && !isPrivate {
		return nil, errKind(InvalidFormat, fmt.Errorf("master key must be private"))
	}
	if len(w.KeyData) != 33 {
		return nil, errKind(InvalidFormat, fmt.Errorf("key data is %d bytes, expected 33", len(w.KeyData)))
	}
	var keyData [33]byte
	copy(keyData[:], w.KeyData)
	var cc *[32]byte
	if w.ChainCode != nil {
		if len(w.ChainCode) != 32 {
			return nil, errKind(InvalidFormat, fmt.Errorf("chain code is %d bytes, expected 32", len(w.ChainCode)))
		}
		var c [32]byte
		copy(c[:], w.ChainCode)
		cc = &c
	}
	ui := useinfo.Default
	if w.UseInfo != nil {
		ui = useinfo.UseInfo{Asset: useinfo.Asset(w.UseInfo.Asset), Network: useinfo.Network(w.UseInfo.Network)}
	}
	parent, err := wireToPath(w.Parent)
	if err != nil {
		return nil, errKind(InvalidFormat, err)
	}
	children, err := wireToPath(w.Children)
	if err != nil {
		return nil, errKind(InvalidFormat, err)
	}
	var parentFP *[4]byte
	if w.ParentFingerprint != 0 {
		if w.ParentFingerprint > math.MaxUint32 {
			return nil, errKind(InvalidFormat, fmt.Errorf("parent fingerprint out of range"))
		}
		var fp [4]byte
		fp[0] = byte(w.ParentFingerprint >> 24)
		fp[1] = byte(w.ParentFingerprint >> 16)
		fp[2] = byte(w.ParentFingerprint >> 8)
		fp[3] = byte(w.ParentFingerprint)
		parentFP = &fp
	}
	if w.IsMaster && parentFP != nil {
		return nil, errKind(InvalidFormat, fmt.Errorf("master key cannot carry a parent fingerprint"))
	}
	return new_(w.IsMaster, keyTypeOf(isPrivate), keyData, cc, ui, parent, children, parentFP, nil), nil
}

// IdentityDigestSource returns the deterministic CBOR sequence
// [keyData, chainCode-or-null, asset, network] per §4.5, used as the
// input to an external content hash. It depends only on key material,
// chain code, and use-info — never on parent/children/fingerprint.
func (k *HDKey) IdentityDigestSource() ([]byte, error) {
	kd := k.keyData
	var ccField any
	if cc, ok := k.ChainCode(); ok {
		b := cc
		ccField = b[:]
	}
	seq := []any{
		kd[:],
		ccField,
		int(k.useInfo.Asset),
		int(k.useInfo.Network),
	}
	enc, err := encMode.Marshal(seq)
	if err != nil {
		return nil, errKind(UnknownDerivationError, err)
	}
	return enc, nil
}
