// Package data holds the payloads that travel through executor ports.
//
// The set of kinds is closed: Scalar, Numbers and Matrix. Every Data value
// carries an "initialized" flag and supports O(1) ownership exchange with a
// value of the same kind, which is how results move from a node's internal
// buffer into an output port without copying.
package data

import (
	"errors"
	"fmt"
	"strings"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Kind identifies the payload type of a port. The zero value is not a
// kind; catalogs must name one.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindNumbers
	KindMatrix
)

var (
	// ErrPortKindMismatch is returned when two payloads of different kinds are exchanged or copied.
	ErrPortKindMismatch = errors.New("port kind mismatch")

	// ErrTooLargeArray is returned when dimensions overflow the addressable size.
	ErrTooLargeArray = errors.New("too large array")

	// ErrDimensionMismatch is returned when a buffer does not match its declared shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

func init() {
	daedaluserrors.RegisterCategory(ErrPortKindMismatch, daedaluserrors.CategoryContract)
	daedaluserrors.RegisterCategory(ErrTooLargeArray, daedaluserrors.CategoryResource)
	daedaluserrors.RegisterCategory(ErrDimensionMismatch, daedaluserrors.CategoryResource)
}

// String returns the catalog spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindNumbers:
		return "numbers"
	case KindMatrix:
		return "matrix"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindScalar && k <= KindMatrix
}

// ParseKind converts catalog text into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scalar":
		return KindScalar, nil
	case "numbers":
		return KindNumbers, nil
	case "mat", "matrix":
		return KindMatrix, nil
	default:
		return 0, fmt.Errorf("unknown data kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Data is the sealed sum type over Scalar, Numbers and Matrix.
type Data interface {
	// Kind returns the payload kind; it never changes for a given value.
	Kind() Kind
	// IsInitialized reports whether a payload is present.
	IsInitialized() bool
	// Clear drops the payload and marks the value uninitialized.
	Clear()
	// Clone returns an independent deep copy.
	Clone() Data
	// CopyFrom replaces the payload with a deep copy of other's payload.
	CopyFrom(other Data) error
	// Exchange swaps payloads with other in O(1).
	Exchange(other Data) error

	sealed()
}

// New returns an empty, uninitialized payload of the given kind.
func New(kind Kind) Data {
	switch kind {
	case KindNumbers:
		return &Numbers{}
	case KindMatrix:
		return &Matrix{}
	default:
		return &Scalar{}
	}
}

func mismatch(a, b Data) error {
	return fmt.Errorf("%w: %s vs %s", ErrPortKindMismatch, a.Kind(), b.Kind())
}
