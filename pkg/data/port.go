package data

import (
	"fmt"
	"sort"
)

// Direction tells whether a port receives or produces data.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Port is a named, typed slot on a node. Its kind never changes.
type Port struct {
	Name      string
	Direction Direction
	kind      Kind
	data      Data
}

// NewPort returns a port holding an uninitialized payload of kind.
func NewPort(name string, direction Direction, kind Kind) *Port {
	return &Port{Name: name, Direction: direction, kind: kind, data: New(kind)}
}

// Kind returns the declared kind.
func (p *Port) Kind() Kind { return p.kind }

// Data returns the payload; it is never nil.
func (p *Port) Data() Data { return p.data }

// Scalar returns the payload as a scalar, or an error for other kinds.
func (p *Port) Scalar() (*Scalar, error) {
	s, ok := p.data.(*Scalar)
	if !ok {
		return nil, fmt.Errorf("%w: port %q is %s, not scalar", ErrPortKindMismatch, p.Name, p.kind)
	}
	return s, nil
}

// Numbers returns the payload as numbers, or an error for other kinds.
func (p *Port) Numbers() (*Numbers, error) {
	n, ok := p.data.(*Numbers)
	if !ok {
		return nil, fmt.Errorf("%w: port %q is %s, not numbers", ErrPortKindMismatch, p.Name, p.kind)
	}
	return n, nil
}

// Matrix returns the payload as a matrix, or an error for other kinds.
func (p *Port) Matrix() (*Matrix, error) {
	m, ok := p.data.(*Matrix)
	if !ok {
		return nil, fmt.Errorf("%w: port %q is %s, not matrix", ErrPortKindMismatch, p.Name, p.kind)
	}
	return m, nil
}

// IsInitialized reports whether the port currently holds data.
func (p *Port) IsInitialized() bool { return p.data.IsInitialized() }

// RemoveData clears the payload.
func (p *Port) RemoveData() { p.data.Clear() }

// SetData replaces the payload with d, which must have the port's kind.
func (p *Port) SetData(d Data) error {
	if d.Kind() != p.kind {
		return fmt.Errorf("%w: port %q is %s, got %s", ErrPortKindMismatch, p.Name, p.kind, d.Kind())
	}
	p.data = d
	return nil
}

// Exchange swaps payloads with other in O(1).
func (p *Port) Exchange(other *Port) error {
	if p.kind != other.kind {
		return fmt.Errorf("%w: cannot exchange %q (%s) with %q (%s)",
			ErrPortKindMismatch, p.Name, p.kind, other.Name, other.kind)
	}
	return p.data.Exchange(other.data)
}

// CopyFrom deep-copies other's payload into p.
func (p *Port) CopyFrom(other *Port) error {
	if p.kind != other.kind {
		return fmt.Errorf("%w: cannot copy %q (%s) into %q (%s)",
			ErrPortKindMismatch, other.Name, other.kind, p.Name, p.kind)
	}
	return p.data.CopyFrom(other.data)
}

// Ports maps port names to ports.
type Ports map[string]*Port

// Names returns the sorted port names.
func (ps Ports) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named port or nil.
func (ps Ports) Get(name string) *Port {
	if ps == nil {
		return nil
	}
	return ps[name]
}

// Add declares a new empty port and returns it.
func (ps Ports) Add(name string, direction Direction, kind Kind) *Port {
	p := NewPort(name, direction, kind)
	ps[name] = p
	return p
}

// ScalarValue returns the text of a scalar port, if present and initialized.
func (ps Ports) ScalarValue(name string) (string, bool) {
	p := ps.Get(name)
	if p == nil {
		return "", false
	}
	s, err := p.Scalar()
	if err != nil {
		return "", false
	}
	return s.Value()
}

// Clear removes the data of every port.
func (ps Ports) Clear() {
	for _, p := range ps {
		p.RemoveData()
	}
}
