package spec

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	portNamePattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	executorIDPattern = regexp.MustCompile(`^[\p{L}\p{N}_][\p{L}\p{N}_./-]*$`)
)

// IsExecutorID reports whether id is a well-formed, lower-case executor id.
func IsExecutorID(id string) bool {
	return executorIDPattern.MatchString(id) && cases.Lower(language.Und).String(id) == id
}

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("port_name", func(fl validator.FieldLevel) bool {
			return portNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("executor_id", func(fl validator.FieldLevel) bool {
			return IsExecutorID(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

func invalid(id, format string, args ...any) error {
	return daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification,
		"executor %q: %s", id, fmt.Sprintf(format, args...))
}

// Validate checks the executor in isolation. References to other executors
// are checked by Catalog.Validate.
func (s *ExecutorSpec) Validate() error {
	if s == nil {
		return daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification, "executor spec is nil")
	}

	if err := validatorInstance().Struct(s); err != nil {
		return convertValidationError(s.ID, err)
	}

	if err := uniquePorts(s.ID, "input", s.InPorts); err != nil {
		return err
	}
	if err := uniquePorts(s.ID, "output", s.OutPorts); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(s.Controls))
	for _, c := range s.Controls {
		if _, dup := seen[c.Name]; dup {
			return invalid(s.ID, "duplicate control %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if err := validateControl(s.ID, c); err != nil {
			return err
		}
	}

	if s.VisibleOutput != "" && s.OutPort(s.VisibleOutput) == nil {
		return invalid(s.ID, "visible output %q is not an output port", s.VisibleOutput)
	}

	switch s.Kind {
	case KindChain:
		if s.Chain == nil {
			return invalid(s.ID, "chain body is required")
		}
		if _, err := s.Chain.Order(); err != nil {
			return invalid(s.ID, "%v", err)
		}
		return s.validateChainBoundary()
	case KindMultiChain:
		if s.MultiChain == nil {
			return invalid(s.ID, "multichain body is required")
		}
		return s.validateMultiChain()
	}
	return nil
}

func uniquePorts(id, direction string, ports []PortSpec) error {
	seen := make(map[string]struct{}, len(ports))
	for _, p := range ports {
		if _, dup := seen[p.Name]; dup {
			return invalid(id, "duplicate %s port %q", direction, p.Name)
		}
		if !p.Kind.Valid() {
			return invalid(id, "%s port %q has no kind", direction, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func validateControl(id string, c ControlSpec) error {
	if c.EditionType != EditEnum || c.Default == nil {
		return nil
	}
	def := fmt.Sprint(c.Default)
	if !c.HasItem(def) {
		return invalid(id, "default %q of control %q is not one of its items", def, c.Name)
	}
	return nil
}

func (s *ExecutorSpec) validateChainBoundary() error {
	c := s.Chain
	for _, b := range c.Blocks {
		for port, ref := range b.Inputs {
			src, _ := ParseSource(ref)
			if src.IsChainInput() && s.InPort(src.Port) == nil {
				return invalid(s.ID, "block %q input %q reads undeclared chain input %q", b.ID, port, src.Port)
			}
		}
		if b.When != "" {
			src, _ := ParseSource(b.When)
			if src.IsChainInput() && s.InPort(src.Port) == nil {
				return invalid(s.ID, "block %q is gated on undeclared chain input %q", b.ID, src.Port)
			}
		}
	}

	for port, ref := range c.Outputs {
		if s.OutPort(port) == nil {
			return invalid(s.ID, "chain output %q is not an output port", port)
		}
		src, ok := ParseSource(ref)
		if !ok || src.IsChainInput() {
			return invalid(s.ID, "chain output %q must read a block output, got %q", port, ref)
		}
		if c.Block(src.Block) == nil {
			return invalid(s.ID, "chain output %q reads unknown block %q", port, src.Block)
		}
	}

	if c.SettingsBlock != "" && c.Block(c.SettingsBlock) == nil {
		return invalid(s.ID, "settings block %q does not exist", c.SettingsBlock)
	}
	return nil
}

func (s *ExecutorSpec) validateMultiChain() error {
	m := s.MultiChain
	seen := make(map[string]struct{}, len(m.Variants))
	for _, v := range m.Variants {
		if _, dup := seen[v.ID]; dup {
			return invalid(s.ID, "duplicate variant %q", v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	if m.Variant(m.DefaultVariant) == nil {
		return invalid(s.ID, "default variant %q is not declared (variants: %s)",
			m.DefaultVariant, strings.Join(m.VariantIDs(), ", "))
	}
	return nil
}

func convertValidationError(id string, err error) error {
	if ves, ok := err.(validator.ValidationErrors); ok && len(ves) > 0 {
		ve := ves[0]
		return invalid(id, "%s failed validation for tag '%s'", ve.Namespace(), ve.Tag())
	}
	return invalid(id, "%v", err)
}
