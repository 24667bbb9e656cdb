package engine

import (
	"context"
	"io"

	"github.com/wehubfusion/Daedalus/pkg/data"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/settings"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// body is implemented by every worker the engine registers.
type body interface {
	registry.Worker
	run(ctx context.Context, f *frame) error
}

// frame is the state of one activation.
type frame struct {
	call      *Call
	spec      *spec.ExecutorSpec
	inputs    data.Ports
	outputs   data.Ports
	settings  *settings.Resolved
	incoming  []byte
	variant   string
	cancelled bool
}

// NewWorker builds the definition registered for s.
func (e *Engine) NewWorker(s *spec.ExecutorSpec) (registry.Worker, error) {
	switch s.Kind {
	case spec.KindChain:
		w, err := newChainWorker(e, s)
		if err != nil {
			return nil, err
		}
		return w, nil
	case spec.KindMultiChain:
		if s.MultiChain == nil {
			return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification,
				"executor %q: multichain body is required", s.ID)
		}
		return &multiChainWorker{engine: e, spec: s}, nil
	default:
		create := func() (Processor, error) { return e.factory.Create(s, e.env) }
		proc, err := create()
		if err != nil {
			return nil, err
		}
		return &leafWorker{spec: s, env: e.env, proc: proc, create: create, owner: true}, nil
	}
}

type leafWorker struct {
	spec   *spec.ExecutorSpec
	env    *Env
	proc   Processor
	create func() (Processor, error)
	// owner is false for copies sharing the definition's processor.
	owner bool
}

func (w *leafWorker) Spec() *spec.ExecutorSpec { return w.spec }

func (w *leafWorker) Shareable() bool {
	s, ok := w.proc.(registry.Shareable)
	return ok && s.Shareable()
}

func (w *leafWorker) CleanCopy() (registry.Worker, error) {
	if w.Shareable() {
		return &leafWorker{spec: w.spec, env: w.env, proc: w.proc, create: w.create}, nil
	}
	proc, err := w.create()
	if err != nil {
		return nil, err
	}
	return &leafWorker{spec: w.spec, env: w.env, proc: proc, create: w.create, owner: true}, nil
}

func (w *leafWorker) Close() error {
	if c, ok := w.proc.(io.Closer); ok && w.owner {
		return c.Close()
	}
	return nil
}

func (w *leafWorker) run(ctx context.Context, f *frame) error {
	inv := &Invocation{
		Spec:     w.spec,
		Session:  f.call.Session,
		Inputs:   f.inputs,
		Outputs:  f.outputs,
		Settings: f.settings,
		Env:      w.env,
	}
	err := w.proc.Process(ctx, inv)
	f.cancelled = inv.Cancelled()
	return err
}

type multiChainWorker struct {
	engine *Engine
	spec   *spec.ExecutorSpec
}

func (w *multiChainWorker) Spec() *spec.ExecutorSpec { return w.spec }

func (w *multiChainWorker) CleanCopy() (registry.Worker, error) {
	return &multiChainWorker{engine: w.engine, spec: w.spec}, nil
}

func (w *multiChainWorker) Close() error { return nil }
