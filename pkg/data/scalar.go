package data

import (
	"strconv"
	"strings"
)

// Scalar is an optional text value.
type Scalar struct {
	value string
	set   bool
}

// NewScalar returns an initialized scalar.
func NewScalar(value string) *Scalar {
	return &Scalar{value: value, set: true}
}

func (s *Scalar) sealed() {}

// Kind returns KindScalar.
func (s *Scalar) Kind() Kind { return KindScalar }

// IsInitialized reports whether a value is present.
func (s *Scalar) IsInitialized() bool { return s.set }

// Clear removes the value.
func (s *Scalar) Clear() {
	s.value = ""
	s.set = false
}

// Set stores value.
func (s *Scalar) Set(value string) {
	s.value = value
	s.set = true
}

// Value returns the stored text and whether it is present.
func (s *Scalar) Value() (string, bool) {
	return s.value, s.set
}

// String returns the value or an empty string.
func (s *Scalar) String() string {
	return s.value
}

// Int parses the value as an integer.
func (s *Scalar) Int() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s.value), 10, 64)
}

// Float parses the value as a float.
func (s *Scalar) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s.value), 64)
}

// Bool interprets the value as a condition. Absent, empty, "false" and "0" are false.
func (s *Scalar) Bool() bool {
	if !s.set {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s.value)) {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}

// Clone returns a copy.
func (s *Scalar) Clone() Data {
	c := *s
	return &c
}

// CopyFrom copies other's value.
func (s *Scalar) CopyFrom(other Data) error {
	o, ok := other.(*Scalar)
	if !ok {
		return mismatch(s, other)
	}
	s.value, s.set = o.value, o.set
	return nil
}

// Exchange swaps values with other.
func (s *Scalar) Exchange(other Data) error {
	o, ok := other.(*Scalar)
	if !ok {
		return mismatch(s, other)
	}
	*s, *o = *o, *s
	return nil
}
