package spec

import (
	"fmt"
	"strings"
)

// Order returns block indices in execution order. A block runs after every
// block it reads from, including its When source; ties keep declaration
// order. Unknown sources and cycles are reported as errors.
func (c *ChainSpec) Order() ([]int, error) {
	if c == nil {
		return nil, fmt.Errorf("chain body is missing")
	}

	index := make(map[string]int, len(c.Blocks))
	for i, b := range c.Blocks {
		if _, dup := index[b.ID]; dup {
			return nil, fmt.Errorf("duplicate block id %q", b.ID)
		}
		index[b.ID] = i
	}

	deps := make([][]int, len(c.Blocks))
	dependents := make([][]int, len(c.Blocks))
	for i, b := range c.Blocks {
		refs := make([]string, 0, len(b.Inputs)+1)
		for _, ref := range b.Inputs {
			refs = append(refs, ref)
		}
		if b.When != "" {
			refs = append(refs, b.When)
		}
		for _, ref := range refs {
			src, ok := ParseSource(ref)
			if !ok {
				return nil, fmt.Errorf("block %q has malformed source %q", b.ID, ref)
			}
			if src.IsChainInput() {
				continue
			}
			j, ok := index[src.Block]
			if !ok {
				return nil, fmt.Errorf("block %q reads unknown block %q", b.ID, src.Block)
			}
			if j == i {
				return nil, fmt.Errorf("block %q reads its own output", b.ID)
			}
			deps[i] = append(deps[i], j)
			dependents[j] = append(dependents[j], i)
		}
	}

	pending := make([]int, len(c.Blocks))
	for i := range deps {
		pending[i] = len(deps[i])
	}

	order := make([]int, 0, len(c.Blocks))
	done := make([]bool, len(c.Blocks))
	for len(order) < len(c.Blocks) {
		next := -1
		for i := range c.Blocks {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("block cycle detected: %s", strings.Join(c.cycleIDs(done), ", "))
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return order, nil
}

func (c *ChainSpec) cycleIDs(done []bool) []string {
	var ids []string
	for i, b := range c.Blocks {
		if !done[i] {
			ids = append(ids, b.ID)
		}
	}
	return ids
}
