// Package spec describes executors, chains and multi-chains as immutable,
// parsed-once specifications.
package spec

import (
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/data"
)

// ExecutorKind is the container type of an executor.
type ExecutorKind string

const (
	KindLeaf       ExecutorKind = "leaf"
	KindChain      ExecutorKind = "chain"
	KindMultiChain ExecutorKind = "multichain"
)

// ValueType is the JSON type of a control value.
type ValueType string

const (
	ValueString   ValueType = "string"
	ValueInt      ValueType = "int"
	ValueFloat    ValueType = "float"
	ValueBool     ValueType = "bool"
	ValueSettings ValueType = "settings"
)

// EditionType tells how a control is edited and, for paths, how it is resolved.
type EditionType string

const (
	EditValue  EditionType = "value"
	EditEnum   EditionType = "enum"
	EditFile   EditionType = "file"
	EditFolder EditionType = "folder"
	EditJSON   EditionType = "json"
)

// Reserved port and settings names.
const (
	// SettingsPort is the scalar input carrying an incoming settings document,
	// and the scalar output carrying the merged document.
	SettingsPort = "settings"

	// SelectedVariantKey is the settings key naming a multi-chain variant.
	SelectedVariantKey = "selected_variant"
)

// PortSpec declares a port.
type PortSpec struct {
	Name string    `json:"name" yaml:"name" validate:"required,port_name"`
	Kind data.Kind `json:"kind" yaml:"kind"`
	// Optional ports may be absent on the caller side without error.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// EnumItem is one allowed value of an enum control.
type EnumItem struct {
	Value   string `json:"value" yaml:"value" validate:"required"`
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`
}

// ControlSpec declares a parameter.
type ControlSpec struct {
	Name        string      `json:"name" yaml:"name" validate:"required,port_name"`
	ValueType   ValueType   `json:"value_type" yaml:"value_type" validate:"required,oneof=string int float bool settings"`
	EditionType EditionType `json:"edition_type,omitempty" yaml:"edition_type,omitempty" validate:"omitempty,oneof=value enum file folder json"`
	Items       []EnumItem  `json:"items,omitempty" yaml:"items,omitempty" validate:"required_if=EditionType enum,dive"`
	Default     any         `json:"default,omitempty" yaml:"default,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
}

// IsPath reports whether the control holds a file or folder path.
func (c ControlSpec) IsPath() bool {
	return c.EditionType == EditFile || c.EditionType == EditFolder
}

// HasItem reports whether value is one of the enum items.
func (c ControlSpec) HasItem(value string) bool {
	for _, item := range c.Items {
		if item.Value == value {
			return true
		}
	}
	return false
}

// BlockSpec is one node invocation inside a chain.
type BlockSpec struct {
	ID       string `json:"id" yaml:"id" validate:"required,port_name"`
	Executor string `json:"executor" yaml:"executor" validate:"required,executor_id"`
	// Inputs maps block input port names to sources: "$name" for a chain
	// input, "block.port" for another block's output.
	Inputs     map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// When names a scalar source; the block is skipped unless it is truthy.
	When             string `json:"when,omitempty" yaml:"when,omitempty"`
	IgnoreParameters bool   `json:"ignore_parameters,omitempty" yaml:"ignore_parameters,omitempty"`
}

// ChainSpec is the body of a chain executor.
type ChainSpec struct {
	Blocks []BlockSpec `json:"blocks" yaml:"blocks" validate:"required,min=1,dive"`
	// Outputs maps chain output port names to block output sources.
	Outputs map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// SettingsBlock names the block receiving the resolved settings document.
	SettingsBlock string `json:"settings_block,omitempty" yaml:"settings_block,omitempty"`
}

// Block returns the block with id, or nil.
func (c *ChainSpec) Block(id string) *BlockSpec {
	for i := range c.Blocks {
		if c.Blocks[i].ID == id {
			return &c.Blocks[i]
		}
	}
	return nil
}

// VariantSpec binds a variant id to a chain executor id.
type VariantSpec struct {
	ID       string `json:"id" yaml:"id" validate:"required"`
	Executor string `json:"executor" yaml:"executor" validate:"required,executor_id"`
}

// MultiChainSpec is a labeled set of alternative chains.
type MultiChainSpec struct {
	Variants       []VariantSpec `json:"variants" yaml:"variants" validate:"required,min=1,dive"`
	DefaultVariant string        `json:"default_variant" yaml:"default_variant" validate:"required"`
}

// Variant returns the variant with id, or nil.
func (m *MultiChainSpec) Variant(id string) *VariantSpec {
	for i := range m.Variants {
		if m.Variants[i].ID == id {
			return &m.Variants[i]
		}
	}
	return nil
}

// VariantIDs returns the declared variant ids in order.
func (m *MultiChainSpec) VariantIDs() []string {
	ids := make([]string, len(m.Variants))
	for i, v := range m.Variants {
		ids[i] = v.ID
	}
	return ids
}

// ExecutorSpec is the immutable description of an executor type.
type ExecutorSpec struct {
	ID          string        `json:"id" yaml:"id" validate:"required,executor_id"`
	Kind        ExecutorKind  `json:"kind" yaml:"kind" validate:"required,oneof=leaf chain multichain"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty"`
	Category    string        `json:"category,omitempty" yaml:"category,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	InPorts     []PortSpec    `json:"in_ports,omitempty" yaml:"in_ports,omitempty" validate:"dive"`
	OutPorts    []PortSpec    `json:"out_ports,omitempty" yaml:"out_ports,omitempty" validate:"dive"`
	Controls    []ControlSpec `json:"controls,omitempty" yaml:"controls,omitempty" validate:"dive"`

	// Implementation names the leaf processor; required for leaf executors.
	Implementation string `json:"implementation,omitempty" yaml:"implementation,omitempty" validate:"required_if=Kind leaf"`
	// Script is source code for script-backed leaf executors.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
	// Parameters are fixed values layered over control defaults.
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	Chain      *ChainSpec      `json:"chain,omitempty" yaml:"chain,omitempty"`
	MultiChain *MultiChainSpec `json:"multichain,omitempty" yaml:"multichain,omitempty"`

	// VisibleOutput names the port surfaced as "the" result.
	VisibleOutput string `json:"visible_output,omitempty" yaml:"visible_output,omitempty"`

	// SourcePath is the file the spec was loaded from.
	SourcePath string `json:"-" yaml:"-"`
}

// Control returns the control named name, or nil.
func (s *ExecutorSpec) Control(name string) *ControlSpec {
	for i := range s.Controls {
		if s.Controls[i].Name == name {
			return &s.Controls[i]
		}
	}
	return nil
}

// InPort returns the input port named name, or nil.
func (s *ExecutorSpec) InPort(name string) *PortSpec {
	return findPort(s.InPorts, name)
}

// OutPort returns the output port named name, or nil.
func (s *ExecutorSpec) OutPort(name string) *PortSpec {
	return findPort(s.OutPorts, name)
}

// IsContainer reports whether instances of s own mutable graph state.
func (s *ExecutorSpec) IsContainer() bool {
	return s.Kind == KindChain || s.Kind == KindMultiChain
}

// DisplayName returns Name, falling back to ID.
func (s *ExecutorSpec) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.ID
}

// NewInputPorts creates empty input ports for every declared input.
func (s *ExecutorSpec) NewInputPorts() data.Ports {
	ports := make(data.Ports, len(s.InPorts))
	for _, p := range s.InPorts {
		ports.Add(p.Name, data.Input, p.Kind)
	}
	return ports
}

// NewOutputPorts creates empty output ports for every declared output.
func (s *ExecutorSpec) NewOutputPorts() data.Ports {
	ports := make(data.Ports, len(s.OutPorts))
	for _, p := range s.OutPorts {
		ports.Add(p.Name, data.Output, p.Kind)
	}
	return ports
}

func findPort(ports []PortSpec, name string) *PortSpec {
	for i := range ports {
		if ports[i].Name == name {
			return &ports[i]
		}
	}
	return nil
}

// Source is a parsed chain link source.
type Source struct {
	// Block is empty for chain boundary inputs.
	Block string
	Port  string
}

// IsChainInput reports whether the source is a chain boundary input.
func (s Source) IsChainInput() bool { return s.Block == "" }

func (s Source) String() string {
	if s.Block == "" {
		return "$" + s.Port
	}
	return s.Block + "." + s.Port
}

// ParseSource parses "$name" or "block.port".
func ParseSource(ref string) (Source, bool) {
	ref = strings.TrimSpace(ref)
	if name, ok := strings.CutPrefix(ref, "$"); ok {
		return Source{Port: name}, name != ""
	}
	block, port, ok := strings.Cut(ref, ".")
	if !ok || block == "" || port == "" {
		return Source{}, false
	}
	return Source{Block: block, Port: port}, true
}
