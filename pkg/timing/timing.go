// Package timing keeps rolling latency statistics for executor invocations.
package timing

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// Accumulator receives one sample per successful, sampled invocation.
type Accumulator interface {
	Update(loading, executing, total time.Duration)
}

// Phase selects one duration of a sample.
type Phase int

const (
	Loading Phase = iota
	Executing
	Total
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Executing:
		return "executing"
	case Total:
		return "total"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Sample is one invocation record.
type Sample struct {
	Loading   time.Duration
	Executing time.Duration
	Total     time.Duration
}

func (s Sample) get(p Phase) time.Duration {
	switch p {
	case Loading:
		return s.Loading
	case Executing:
		return s.Executing
	default:
		return s.Total
	}
}

// Stats is a bounded ring of the most recent samples. It is safe for
// concurrent use.
type Stats struct {
	mu     sync.Mutex
	name   string
	ring   []Sample
	next   int
	full   bool
	count  uint64
	levels []float64
}

// DefaultLevels are the percentiles reported by Analyse.
var DefaultLevels = []float64{0.5, 0.9, 0.99}

// NewStats creates a ring holding up to capacity samples.
func NewStats(name string, capacity int, levels []float64) *Stats {
	if capacity < 1 {
		capacity = 1
	}
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	return &Stats{
		name:   name,
		ring:   make([]Sample, capacity),
		levels: slices.Clone(levels),
	}
}

// Update inserts a sample, evicting the oldest once the ring is full.
func (s *Stats) Update(loading, executing, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.next] = Sample{Loading: loading, Executing: executing, Total: total}
	s.next++
	if s.next == len(s.ring) {
		s.next = 0
		s.full = true
	}
	s.count++
}

// Len returns the number of samples in the window.
func (s *Stats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len()
}

func (s *Stats) len() int {
	if s.full {
		return len(s.ring)
	}
	return s.next
}

// Count returns the number of samples ever recorded.
func (s *Stats) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Samples returns the window, oldest first.
func (s *Stats) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples()
}

func (s *Stats) samples() []Sample {
	if !s.full {
		return slices.Clone(s.ring[:s.next])
	}
	out := make([]Sample, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

// Percentiles returns, for each level in [0, 1], the nearest-rank
// percentile of phase over the current window. An empty window yields zeros.
func (s *Stats) Percentiles(phase Phase, levels []float64) []time.Duration {
	s.mu.Lock()
	window := s.samples()
	s.mu.Unlock()

	return percentiles(window, phase, levels)
}

func percentiles(window []Sample, phase Phase, levels []float64) []time.Duration {
	out := make([]time.Duration, len(levels))
	if len(window) == 0 {
		return out
	}
	values := make([]time.Duration, len(window))
	for i, sample := range window {
		values[i] = sample.get(phase)
	}
	slices.Sort(values)

	for i, level := range levels {
		level = math.Max(0, math.Min(1, level))
		rank := int(math.Ceil(level*float64(len(values))-1e-9)) - 1
		if rank < 0 {
			rank = 0
		}
		out[i] = values[rank]
	}
	return out
}

// Analyse returns a human-readable summary of the window.
func (s *Stats) Analyse() string {
	s.mu.Lock()
	window := s.samples()
	count := s.count
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d samples (%d recorded)", s.name, len(window), count)
	if len(window) == 0 {
		return b.String()
	}
	for _, phase := range []Phase{Loading, Executing, Total} {
		fmt.Fprintf(&b, "\n  %-9s", phase)
		for i, d := range percentiles(window, phase, s.levels) {
			fmt.Fprintf(&b, " p%g=%s", s.levels[i]*100, d)
		}
	}
	return b.String()
}
