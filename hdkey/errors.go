package hdkey

import "fmt"

// Kind discriminates the ways an HDKey operation can fail.
type Kind int

const (
	InvalidSeed Kind = iota
	InvalidBase58
	CannotDerivePrivateFromPublic
	CannotDeriveHardenedFromPublic
	CannotDeriveFromNonDerivable
	CannotDeriveInspecificStep
	InvalidDepth
	UnknownDerivationError
	InvalidFormat
)

func (k Kind) String() string {
	switch k {
	case InvalidSeed:
		return "invalid seed"
	case InvalidBase58:
		return "invalid base58"
	case CannotDerivePrivateFromPublic:
		return "cannot derive private key from public key"
	case CannotDeriveHardenedFromPublic:
		return "cannot derive hardened child from public key"
	case CannotDeriveFromNonDerivable:
		return "parent key is not derivable (no chain code)"
	case CannotDeriveInspecificStep:
		return "wildcard step has no substitution"
	case InvalidDepth:
		return "invalid depth"
	case UnknownDerivationError:
		return "unknown derivation error"
	case InvalidFormat:
		return "invalid format"
	default:
		return "unknown error"
	}
}

// Error wraps a Kind with its underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "hdkey: " + e.Kind.String()
	}
	return fmt.Sprintf("hdkey: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errKind(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Is supports errors.Is(err, SomeKind) by comparing Kind values when
// target is itself a Kind-shaped sentinel produced by errKind(kind, nil).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel lets callers write errors.Is(err, hdkey.Sentinel(hdkey.InvalidFormat)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}
