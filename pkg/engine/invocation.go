package engine

import (
	"strconv"
	"sync/atomic"

	"github.com/wehubfusion/Daedalus/pkg/data"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/settings"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// Invocation is what a processor sees of one activation.
type Invocation struct {
	Spec     *spec.ExecutorSpec
	Session  string
	Inputs   data.Ports
	Outputs  data.Ports
	Settings *settings.Resolved
	Env      *Env

	cancelled atomic.Bool
}

// CancelExecution asks the caller not to propagate this activation's
// outputs and to stop executing the enclosing chain.
func (in *Invocation) CancelExecution() { in.cancelled.Store(true) }

// Cancelled reports whether CancelExecution was called.
func (in *Invocation) Cancelled() bool { return in.cancelled.Load() }

// Param returns a resolved setting as text.
func (in *Invocation) Param(name string) (string, bool) {
	return settings.String(in.Settings.Document, name)
}

// ParamOr returns a resolved setting as text, or def.
func (in *Invocation) ParamOr(name, def string) string {
	if v, ok := in.Param(name); ok {
		return v
	}
	return def
}

// FloatParam returns a resolved numeric setting, or def.
func (in *Invocation) FloatParam(name string, def float64) float64 {
	if v, ok := settings.Float(in.Settings.Document, name); ok {
		return v
	}
	if s, ok := in.Param(name); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return def
}

// Scalar returns the text of an initialized scalar input.
func (in *Invocation) Scalar(name string) (string, bool) {
	return in.Inputs.ScalarValue(name)
}

// Input returns the named input port, or nil.
func (in *Invocation) Input(name string) *data.Port {
	return in.Inputs.Get(name)
}

// Output returns the named output port. A missing port is a contract error.
func (in *Invocation) Output(name string) (*data.Port, error) {
	p := in.Outputs.Get(name)
	if p == nil {
		return nil, daedaluserrors.Contract(daedaluserrors.ErrInvalidSpecification,
			"executor %q has no output port %q", in.Spec.ID, name)
	}
	return p, nil
}

// SetScalar writes text to a scalar output.
func (in *Invocation) SetScalar(name, value string) error {
	p, err := in.Output(name)
	if err != nil {
		return err
	}
	s, err := p.Scalar()
	if err != nil {
		return err
	}
	s.Set(value)
	return nil
}
