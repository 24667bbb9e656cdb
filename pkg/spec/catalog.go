package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/Daedalus/pkg/data"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Catalog is a validated set of executor specifications keyed by id.
type Catalog struct {
	specs map[string]*ExecutorSpec
}

type catalogFile struct {
	Executors []*ExecutorSpec `json:"executors" yaml:"executors"`
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{specs: make(map[string]*ExecutorSpec)}
}

// LoadCatalog reads every path into a new catalog and validates references.
func LoadCatalog(paths ...string) (*Catalog, error) {
	c := NewCatalog()
	if err := c.Load(paths...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Add validates and adds specs. Nothing is added if any spec is invalid or
// its id is already present.
func (c *Catalog) Add(specs ...*ExecutorSpec) error {
	staged := make(map[string]*ExecutorSpec, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := c.specs[s.ID]; dup {
			return invalid(s.ID, "already defined")
		}
		if prev, dup := staged[s.ID]; dup {
			return invalid(s.ID, "defined twice (%s, %s)", prev.SourcePath, s.SourcePath)
		}
		staged[s.ID] = s
	}
	for id, s := range staged {
		c.specs[id] = s
	}
	return nil
}

// Load reads .json, .yaml and .yml files. Directories are walked
// recursively. Any unreadable or invalid file aborts the whole load.
func (c *Catalog) Load(paths ...string) error {
	var specs []*ExecutorSpec
	for _, root := range paths {
		files, err := catalogFiles(root)
		if err != nil {
			return err
		}
		for _, path := range files {
			raw, err := os.ReadFile(path)
			if err != nil {
				return daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification, "read %s: %v", path, err)
			}
			parsed, err := Parse(raw, filepath.Ext(path))
			if err != nil {
				return daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification, "parse %s: %v", path, err)
			}
			for _, s := range parsed {
				s.SourcePath = path
			}
			specs = append(specs, parsed...)
		}
	}
	return c.Add(specs...)
}

func catalogFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification, "catalog path: %v", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification, "walk %s: %v", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Parse decodes one catalog document. The document is either a single
// executor or an object with an "executors" list. ext selects the decoder.
func Parse(raw []byte, ext string) ([]*ExecutorSpec, error) {
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(ext, ".json") {
		unmarshal = decodeJSON
	}

	var file catalogFile
	if err := unmarshal(raw, &file); err == nil && len(file.Executors) > 0 {
		return file.Executors, nil
	}

	var single ExecutorSpec
	if err := unmarshal(raw, &single); err != nil {
		return nil, err
	}
	if single.ID == "" {
		return nil, fmt.Errorf("document holds no executor")
	}
	return []*ExecutorSpec{&single}, nil
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// Get returns the spec registered for id.
func (c *Catalog) Get(id string) (*ExecutorSpec, bool) {
	s, ok := c.specs[id]
	return s, ok
}

// Len returns the number of specs.
func (c *Catalog) Len() int { return len(c.specs) }

// IDs returns the sorted executor ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.specs))
	for id := range c.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Specs returns the specs sorted by id.
func (c *Catalog) Specs() []*ExecutorSpec {
	out := make([]*ExecutorSpec, 0, len(c.specs))
	for _, id := range c.IDs() {
		out = append(out, c.specs[id])
	}
	return out
}

// Validate checks references between executors: block executors exist,
// linked ports exist with matching kinds, and variants name chains.
func (c *Catalog) Validate() error {
	for _, s := range c.Specs() {
		switch s.Kind {
		case KindChain:
			if err := c.validateChain(s); err != nil {
				return err
			}
		case KindMultiChain:
			for _, v := range s.MultiChain.Variants {
				target, ok := c.specs[v.Executor]
				if !ok {
					return invalid(s.ID, "variant %q references unknown executor %q", v.ID, v.Executor)
				}
				if target.Kind != KindChain {
					return invalid(s.ID, "variant %q references %s executor %q, want chain", v.ID, target.Kind, v.Executor)
				}
			}
		}
	}
	return nil
}

func (c *Catalog) validateChain(s *ExecutorSpec) error {
	chain := s.Chain
	for _, b := range chain.Blocks {
		target, ok := c.specs[b.Executor]
		if !ok {
			return invalid(s.ID, "block %q references unknown executor %q", b.ID, b.Executor)
		}
		for port, ref := range b.Inputs {
			dest, ok := inPortKind(target, port)
			if !ok {
				return invalid(s.ID, "block %q: executor %q has no input %q", b.ID, b.Executor, port)
			}
			src, err := c.sourceKind(s, ref)
			if err != nil {
				return err
			}
			if src != dest {
				return invalid(s.ID, "block %q input %q is %s but %s is %s", b.ID, port, dest, ref, src)
			}
		}
		if b.When != "" {
			kind, err := c.sourceKind(s, b.When)
			if err != nil {
				return err
			}
			if kind != data.KindScalar {
				return invalid(s.ID, "block %q is gated on %s source %s, want scalar", b.ID, kind, b.When)
			}
		}
	}
	for port, ref := range chain.Outputs {
		kind, err := c.sourceKind(s, ref)
		if err != nil {
			return err
		}
		if want := s.OutPort(port).Kind; kind != want {
			return invalid(s.ID, "chain output %q is %s but %s is %s", port, want, ref, kind)
		}
	}
	return nil
}

func (c *Catalog) sourceKind(chain *ExecutorSpec, ref string) (data.Kind, error) {
	src, _ := ParseSource(ref)
	if src.IsChainInput() {
		if kind, ok := inPortKind(chain, src.Port); ok {
			return kind, nil
		}
		return 0, invalid(chain.ID, "unknown chain input %q", src.Port)
	}
	b := chain.Chain.Block(src.Block)
	if b == nil {
		return 0, invalid(chain.ID, "unknown block %q", src.Block)
	}
	target, ok := c.specs[b.Executor]
	if !ok {
		return 0, invalid(chain.ID, "block %q references unknown executor %q", b.ID, b.Executor)
	}
	if src.Port == SettingsPort {
		return data.KindScalar, nil
	}
	p := target.OutPort(src.Port)
	if p == nil {
		return 0, invalid(chain.ID, "block %q: executor %q has no output %q", src.Block, b.Executor, src.Port)
	}
	return p.Kind, nil
}

// inPortKind resolves an input port including the implicit settings port.
func inPortKind(s *ExecutorSpec, name string) (data.Kind, bool) {
	if p := s.InPort(name); p != nil {
		return p.Kind, true
	}
	if name == SettingsPort {
		return data.KindScalar, true
	}
	return 0, false
}
