package data

import (
	"fmt"
	"math/bits"
	"strings"
)

// ElementType is the primitive type of matrix elements.
type ElementType int

const (
	Uint8 ElementType = iota
	Int8
	Uint16
	Int16
	Int32
	Int64
	Float32
	Float64
)

// Size returns the number of bytes per element.
func (t ElementType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("element(%d)", int(t))
	}
}

// ParseElementType converts text such as "float32" into an ElementType.
func ParseElementType(s string) (ElementType, error) {
	for t := Uint8; t <= Float64; t++ {
		if t.String() == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

// maxPayload bounds a single payload allocation. The runtime refuses
// slices above 2^48 bytes on 64-bit platforms, so the bound stays below
// that and below MaxInt.
const maxPayload = min(uint64(1)<<47, uint64(^uint(0)>>1))

// Matrix is a multi-dimensional, multi-channel array stored as raw bytes.
type Matrix struct {
	dims        []int64
	elementType ElementType
	channels    int
	payload     []byte
}

// NewMatrix allocates a zeroed matrix. At least two dimensions are required.
func NewMatrix(elementType ElementType, channels int, dims ...int64) (*Matrix, error) {
	size, err := PayloadSize(elementType, channels, dims...)
	if err != nil {
		return nil, err
	}
	return &Matrix{
		dims:        append([]int64(nil), dims...),
		elementType: elementType,
		channels:    channels,
		payload:     make([]byte, size),
	}, nil
}

// PayloadSize computes product(dims) * channels * elementSize, reporting
// ErrTooLargeArray instead of wrapping around.
func PayloadSize(elementType ElementType, channels int, dims ...int64) (int, error) {
	if len(dims) < 2 {
		return 0, fmt.Errorf("%w: matrix needs at least 2 dimensions, got %d", ErrDimensionMismatch, len(dims))
	}
	if channels < 1 {
		return 0, fmt.Errorf("%w: channel count %d < 1", ErrDimensionMismatch, channels)
	}
	if elementType.Size() == 0 {
		return 0, fmt.Errorf("%w: unknown element type %d", ErrDimensionMismatch, int(elementType))
	}
	total := uint64(channels)
	factors := append(append([]int64(nil), dims...), int64(elementType.Size()))
	for _, d := range factors {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrDimensionMismatch, d)
		}
		hi, lo := bits.Mul64(total, uint64(d))
		if hi != 0 || lo > maxPayload {
			return 0, fmt.Errorf("%w: %v x %d channels of %s", ErrTooLargeArray, dims, channels, elementType)
		}
		total = lo
	}
	return int(total), nil
}

func (m *Matrix) sealed() {}

// Kind returns KindMatrix.
func (m *Matrix) Kind() Kind { return KindMatrix }

// IsInitialized reports whether the matrix has a shape.
func (m *Matrix) IsInitialized() bool { return len(m.dims) > 0 }

// Clear drops shape and payload.
func (m *Matrix) Clear() {
	*m = Matrix{}
}

// Dimensions returns a copy of the dimensions.
func (m *Matrix) Dimensions() []int64 { return append([]int64(nil), m.dims...) }

// ElementType returns the element type.
func (m *Matrix) ElementType() ElementType { return m.elementType }

// Channels returns the channel count.
func (m *Matrix) Channels() int { return m.channels }

// Payload returns the raw bytes.
func (m *Matrix) Payload() []byte { return m.payload }

// SetPayload replaces the bytes; the length must match the shape.
func (m *Matrix) SetPayload(payload []byte) error {
	if !m.IsInitialized() {
		return fmt.Errorf("%w: matrix has no shape", ErrDimensionMismatch)
	}
	want, err := PayloadSize(m.elementType, m.channels, m.dims...)
	if err != nil {
		return err
	}
	if len(payload) != want {
		return fmt.Errorf("%w: payload %d bytes, shape needs %d", ErrDimensionMismatch, len(payload), want)
	}
	m.payload = payload
	return nil
}

// Clone returns a deep copy.
func (m *Matrix) Clone() Data {
	c := &Matrix{elementType: m.elementType, channels: m.channels}
	if m.dims != nil {
		c.dims = append([]int64(nil), m.dims...)
	}
	if m.payload != nil {
		c.payload = append([]byte(nil), m.payload...)
	}
	return c
}

// CopyFrom deep-copies other.
func (m *Matrix) CopyFrom(other Data) error {
	o, ok := other.(*Matrix)
	if !ok {
		return mismatch(m, other)
	}
	*m = *o.Clone().(*Matrix)
	return nil
}

// Exchange swaps contents with other.
func (m *Matrix) Exchange(other Data) error {
	o, ok := other.(*Matrix)
	if !ok {
		return mismatch(m, other)
	}
	*m, *o = *o, *m
	return nil
}
