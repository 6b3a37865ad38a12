package account

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/bcfoundation/hdkeycore/hdkey"
)

// Wire tag numbers for output descriptors, per BCR-2020-010, reused
// verbatim from the teacher's bc/urtypes.go. tagAccount is this
// project's own addition (§4.6), chosen adjacent to the teacher's
// hdKey/derivationPath tags (303/304).
const (
	tagSH    = 400
	tagWSH   = 401
	tagP2PKH = 403
	tagWPKH  = 404
	tagTR    = 409

	tagMulti       = 406
	tagSortedMulti = 407

	tagAccount = 310
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

type wireMulti struct {
	Threshold int               `cbor:"1,keyasint"`
	Keys      []cbor.RawMessage `cbor:"2,keyasint"`
}

type wireAccountBundle struct {
	MasterFingerprint uint32            `cbor:"1,keyasint"`
	Descriptors       []cbor.RawMessage `cbor:"2,keyasint"`
}

// Encode serializes o in the tagged form described by BCR-2020-010:
// script-type tags wrapping either a bare hdKey tag (singlesig) or a
// multi/sortedmulti map of hdKey tags.
func (o OutputDescriptor) Encode() ([]byte, error) {
	if len(o.Keys) == 0 {
		return nil, errors.New("account: descriptor has no keys")
	}
	var inner any
	if len(o.Keys) > 1 {
		m := wireMulti{Threshold: o.Threshold}
		for _, k := range o.Keys {
			enc, err := k.Key.Encode()
			if err != nil {
				return nil, fmt.Errorf("account: encoding key: %w", err)
			}
			m.Keys = append(m.Keys, cbor.RawMessage(enc))
		}
		tag := uint64(tagMulti)
		if o.Sorted {
			tag = tagSortedMulti
		}
		inner = cbor.Tag{Number: tag, Content: m}
	} else {
		enc, err := o.Keys[0].Key.Encode()
		if err != nil {
			return nil, fmt.Errorf("account: encoding key: %w", err)
		}
		inner = cbor.RawMessage(enc)
	}
	var scriptTags []uint64
	switch o.Type {
	case P2SH:
		scriptTags = []uint64{tagSH}
	case P2SH_P2WSH:
		scriptTags = []uint64{tagSH, tagWSH}
	case P2SH_P2WPKH:
		scriptTags = []uint64{tagSH, tagWPKH}
	case P2PKH:
		scriptTags = []uint64{tagP2PKH}
	case P2WSH:
		scriptTags = []uint64{tagWSH}
	case P2WPKH:
		scriptTags = []uint64{tagWPKH}
	case P2TR:
		scriptTags = []uint64{tagTR}
	default:
		return nil, fmt.Errorf("account: invalid script type %v", o.Type)
	}
	v := inner
	for i := len(scriptTags) - 1; i >= 0; i-- {
		v = cbor.Tag{Number: scriptTags[i], Content: v}
	}
	enc, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("account: marshal: %w", err)
	}
	return enc, nil
}

// DecodeOutputDescriptor parses the tagged form Encode produces.
func DecodeOutputDescriptor(enc []byte) (OutputDescriptor, error) {
	var tags []uint64
	rest := enc
	for {
		var raw cbor.RawTag
		if err := cbor.Unmarshal(rest, &raw); err != nil {
			break
		}
		tags = append(tags, raw.Number)
		rest = raw.Content
	}
	if len(tags) == 0 {
		return OutputDescriptor{}, errors.New("account: missing descriptor tag")
	}
	var desc OutputDescriptor
	first := tags[0]
	tags = tags[1:]
	switch first {
	case tagSH:
		desc.Type = P2SH
		if len(tags) > 0 {
			switch tags[0] {
			case tagWSH:
				desc.Type = P2SH_P2WSH
				tags = tags[1:]
			case tagWPKH:
				desc.Type = P2SH_P2WPKH
				tags = tags[1:]
			}
		}
	case tagP2PKH:
		desc.Type = P2PKH
	case tagTR:
		desc.Type = P2TR
	case tagWSH:
		desc.Type = P2WSH
	case tagWPKH:
		desc.Type = P2WPKH
	default:
		return OutputDescriptor{}, fmt.Errorf("account: unknown script type tag %d", first)
	}
	if len(tags) == 0 {
		return OutputDescriptor{}, errors.New("account: missing descriptor function tag")
	}
	funcNumber := tags[0]
	tags = tags[1:]
	if len(tags) > 0 {
		return OutputDescriptor{}, errors.New("account: extra tags in descriptor")
	}
	// A bare (non-multisig) function tag means it belongs to the hdKey
	// envelope itself rather than naming a multi/sortedmulti wrapper.
	if !isMultiTag(funcNumber) {
		// funcNumber was consumed speculatively above only when it was
		// one of tagMulti/tagSortedMulti; otherwise it belongs to the
		// hdKey tag itself, so put it back.
		rest = prependTag(funcNumber, rest)
		k, err := hdkey.Decode(rest)
		if err != nil {
			return OutputDescriptor{}, err
		}
		desc.Threshold = 1
		desc.Keys = []KeyDescriptor{{Key: k}}
		return desc, nil
	}
	desc.Sorted = funcNumber == tagSortedMulti
	var m wireMulti
	if err := cbor.Unmarshal(rest, &m); err != nil {
		return OutputDescriptor{}, fmt.Errorf("account: decoding multisig body: %w", err)
	}
	desc.Threshold = m.Threshold
	for _, raw := range m.Keys {
		k, err := hdkey.Decode(raw)
		if err != nil {
			return OutputDescriptor{}, err
		}
		desc.Keys = append(desc.Keys, KeyDescriptor{Key: k})
	}
	return desc, nil
}

func isMultiTag(n uint64) bool { return n == tagMulti || n == tagSortedMulti }

func prependTag(n uint64, content []byte) []byte {
	enc, err := cbor.Marshal(cbor.Tag{Number: n, Content: cbor.RawMessage(content)})
	if err != nil {
		panic(err)
	}
	return enc
}

// Encode serializes the bundle as tag(310, {1: masterFingerprint, 2:
// [descriptor, ...]}) per §4.6.
func (b *Bundle) Encode() ([]byte, error) {
	w := wireAccountBundle{MasterFingerprint: b.MasterFingerprint}
	for _, d := range b.Descriptors {
		enc, err := d.Encode()
		if err != nil {
			return nil, err
		}
		w.Descriptors = append(w.Descriptors, cbor.RawMessage(enc))
	}
	enc, err := encMode.Marshal(cbor.Tag{Number: tagAccount, Content: w})
	if err != nil {
		return nil, fmt.Errorf("account: marshal bundle: %w", err)
	}
	return enc, nil
}

// DecodeBundle parses the tagged form Bundle.Encode produces.
func DecodeBundle(enc []byte) (*Bundle, error) {
	var raw cbor.RawTag
	if err := cbor.Unmarshal(enc, &raw); err != nil {
		return nil, fmt.Errorf("account: decoding bundle tag: %w", err)
	}
	if raw.Number != tagAccount {
		return nil, fmt.Errorf("account: unexpected bundle tag %d", raw.Number)
	}
	var w wireAccountBundle
	if err := cbor.Unmarshal(raw.Content, &w); err != nil {
		return nil, fmt.Errorf("account: decoding bundle body: %w", err)
	}
	b := &Bundle{MasterFingerprint: w.MasterFingerprint, ByType: make(map[ScriptType]OutputDescriptor, len(w.Descriptors))}
	for _, raw := range w.Descriptors {
		d, err := DecodeOutputDescriptor(raw)
		if err != nil {
			return nil, err
		}
		b.Descriptors = append(b.Descriptors, d)
		b.ByType[d.Type] = d
	}
	return b, nil
}
