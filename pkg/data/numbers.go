package data

import (
	"fmt"
	"math/bits"
)

// Numbers is a flat buffer of fixed-width numeric records.
// len(values) == RecordCount() * RecordWidth() always holds.
type Numbers struct {
	values []float64
	width  int
}

// NewNumbers returns an initialized numbers payload.
func NewNumbers(values []float64, recordWidth int) (*Numbers, error) {
	n := &Numbers{}
	if err := n.SetTo(values, recordWidth); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Numbers) sealed() {}

// Kind returns KindNumbers.
func (n *Numbers) Kind() Kind { return KindNumbers }

// IsInitialized reports whether a buffer is present.
func (n *Numbers) IsInitialized() bool { return n.width > 0 }

// Clear drops the buffer.
func (n *Numbers) Clear() {
	n.values = nil
	n.width = 0
}

// SetTo replaces the whole buffer. The slice is owned by n afterwards.
func (n *Numbers) SetTo(values []float64, recordWidth int) error {
	if recordWidth < 1 {
		return fmt.Errorf("%w: record width %d < 1", ErrDimensionMismatch, recordWidth)
	}
	if len(values)%recordWidth != 0 {
		return fmt.Errorf("%w: %d values is not a multiple of record width %d",
			ErrDimensionMismatch, len(values), recordWidth)
	}
	if values == nil {
		values = []float64{}
	}
	n.values = values
	n.width = recordWidth
	return nil
}

// Resize replaces the buffer with a zeroed one of recordCount records of
// recordWidth values. Sizes whose byte count exceeds the payload bound
// report ErrTooLargeArray.
func (n *Numbers) Resize(recordCount, recordWidth int) error {
	if recordCount < 0 {
		return fmt.Errorf("%w: negative record count %d", ErrDimensionMismatch, recordCount)
	}
	if recordWidth < 1 {
		return fmt.Errorf("%w: record width %d < 1", ErrDimensionMismatch, recordWidth)
	}
	hi, count := bits.Mul64(uint64(recordCount), uint64(recordWidth))
	if hi != 0 || count > maxPayload/8 {
		return fmt.Errorf("%w: %d records of width %d", ErrTooLargeArray, recordCount, recordWidth)
	}
	return n.SetTo(make([]float64, count), recordWidth)
}

// Values returns the underlying buffer. Callers must not change its length.
func (n *Numbers) Values() []float64 { return n.values }

// RecordWidth returns the number of values per record.
func (n *Numbers) RecordWidth() int { return n.width }

// RecordCount returns the number of records.
func (n *Numbers) RecordCount() int {
	if n.width == 0 {
		return 0
	}
	return len(n.values) / n.width
}

// Record returns the i-th record as a subslice of the buffer.
func (n *Numbers) Record(i int) []float64 {
	return n.values[i*n.width : (i+1)*n.width]
}

// Clone returns a deep copy.
func (n *Numbers) Clone() Data {
	c := &Numbers{width: n.width}
	if n.values != nil {
		c.values = append([]float64(nil), n.values...)
	}
	return c
}

// CopyFrom deep-copies other's buffer.
func (n *Numbers) CopyFrom(other Data) error {
	o, ok := other.(*Numbers)
	if !ok {
		return mismatch(n, other)
	}
	c := o.Clone().(*Numbers)
	*n = *c
	return nil
}

// Exchange swaps buffers with other.
func (n *Numbers) Exchange(other Data) error {
	o, ok := other.(*Numbers)
	if !ok {
		return mismatch(n, other)
	}
	*n, *o = *o, *n
	return nil
}
