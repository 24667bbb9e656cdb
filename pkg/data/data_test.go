package data

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func TestNumbersRoundTrip(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i) * 1.5
	}
	expected := append([]float64(nil), values...)

	port := NewPort("x", Output, KindNumbers)
	n, err := port.Numbers()
	require.NoError(t, err)
	require.NoError(t, n.SetTo(values, 3))

	back, err := port.Numbers()
	require.NoError(t, err)
	assert.Equal(t, 10, back.RecordCount())
	assert.Equal(t, 3, back.RecordWidth())
	assert.Equal(t, expected, back.Values())
	assert.Equal(t, []float64{4.5, 6, 7.5}, back.Record(1))
}

func TestNumbersRejectsRaggedBuffer(t *testing.T) {
	n := &Numbers{}
	err := n.SetTo([]float64{1, 2, 3, 4}, 3)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.False(t, n.IsInitialized())

	err = n.SetTo([]float64{1}, 0)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestExchangeSwapsPayloads(t *testing.T) {
	a := NewPort("a", Output, KindScalar)
	b := NewPort("b", Input, KindScalar)
	sa, _ := a.Scalar()
	sa.Set("hello")

	require.NoError(t, a.Exchange(b))
	assert.False(t, a.IsInitialized())
	v, ok := b.Data().(*Scalar).Value()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestExchangeKindMismatch(t *testing.T) {
	a := NewPort("a", Output, KindScalar)
	b := NewPort("b", Input, KindNumbers)
	err := a.Exchange(b)
	require.ErrorIs(t, err, ErrPortKindMismatch)
	assert.Equal(t, daedaluserrors.CategoryContract, daedaluserrors.CategoryOf(err))

	_, err = a.Numbers()
	require.ErrorIs(t, err, ErrPortKindMismatch)
}

func TestCopyFromLeavesSourceIntact(t *testing.T) {
	src := NewPort("src", Output, KindNumbers)
	n, _ := src.Numbers()
	require.NoError(t, n.SetTo([]float64{1, 2}, 1))

	dst := NewPort("dst", Input, KindNumbers)
	require.NoError(t, dst.CopyFrom(src))

	dn, _ := dst.Numbers()
	dn.Values()[0] = 99
	assert.Equal(t, []float64{1, 2}, n.Values())
}

func TestReadingUninitializedPort(t *testing.T) {
	p := NewPort("p", Input, KindScalar)
	assert.False(t, p.IsInitialized())
	s, err := p.Scalar()
	require.NoError(t, err)
	_, ok := s.Value()
	assert.False(t, ok)
	assert.False(t, s.Bool())
}

func TestMatrixAllocation(t *testing.T) {
	m, err := NewMatrix(Float32, 3, 4, 5)
	require.NoError(t, err)
	assert.Len(t, m.Payload(), 4*5*3*4)
	assert.Equal(t, []int64{4, 5}, m.Dimensions())

	err = m.SetPayload(make([]byte, 7))
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMatrixOverflowIsReported(t *testing.T) {
	_, err := NewMatrix(Float64, 4, math.MaxInt64/2, 4)
	require.ErrorIs(t, err, ErrTooLargeArray)
	assert.True(t, daedaluserrors.IsResource(err))

	_, err = NewMatrix(Uint8, 1, 10)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMatrixAboveAllocationLimitIsReported(t *testing.T) {
	require.NotPanics(t, func() {
		_, err := NewMatrix(Uint8, 1, 1<<30, 1<<30)
		require.ErrorIs(t, err, ErrTooLargeArray)
	})

	size, err := PayloadSize(Uint8, 1, 1<<20, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, 1<<40, size)
}

func TestNumbersResize(t *testing.T) {
	n := &Numbers{}
	require.NoError(t, n.Resize(3, 2))
	assert.Equal(t, 3, n.RecordCount())
	assert.Equal(t, 2, n.RecordWidth())
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, n.Values())

	require.NotPanics(t, func() {
		require.ErrorIs(t, n.Resize(1<<60, 1), ErrTooLargeArray)
		require.ErrorIs(t, n.Resize(math.MaxInt, 3), ErrTooLargeArray)
	})
	require.ErrorIs(t, n.Resize(-1, 1), ErrDimensionMismatch)
	require.ErrorIs(t, n.Resize(1, 0), ErrDimensionMismatch)
	assert.Equal(t, 3, n.RecordCount(), "failed resize keeps the buffer")
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"scalar", KindScalar},
		{"Numbers", KindNumbers},
		{"mat", KindMatrix},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseKind("tensor")
	assert.Error(t, err)

	var zero Kind
	assert.False(t, zero.Valid())
	assert.True(t, KindMatrix.Valid())
}
