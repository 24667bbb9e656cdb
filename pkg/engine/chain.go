package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/data"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// chainWorker runs a chain body. The definition holds the block order and
// link fan-out; clones add the per-activation block outputs.
type chainWorker struct {
	engine *Engine
	spec   *spec.ExecutorSpec
	order  []int
	// readers counts how many links read each source. Sources read once
	// are moved, the others copied.
	readers map[spec.Source]int
	// settingsReaders lists blocks whose "settings" output is linked.
	settingsReaders map[string]bool

	blocks map[string]data.Ports
}

func newChainWorker(e *Engine, s *spec.ExecutorSpec) (*chainWorker, error) {
	if s.Chain == nil {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification,
			"executor %q: chain body is required", s.ID)
	}
	order, err := s.Chain.Order()
	if err != nil {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification,
			"executor %q: %v", s.ID, err)
	}
	w := &chainWorker{
		engine:          e,
		spec:            s,
		order:           order,
		readers:         make(map[spec.Source]int),
		settingsReaders: make(map[string]bool),
	}
	read := func(ref string) {
		src, ok := spec.ParseSource(ref)
		if !ok {
			return
		}
		w.readers[src]++
		if !src.IsChainInput() && src.Port == spec.SettingsPort {
			w.settingsReaders[src.Block] = true
		}
	}
	for _, b := range s.Chain.Blocks {
		for _, ref := range b.Inputs {
			read(ref)
		}
		if b.When != "" {
			read(b.When)
		}
	}
	for _, ref := range s.Chain.Outputs {
		read(ref)
	}
	return w, nil
}

func (w *chainWorker) Spec() *spec.ExecutorSpec { return w.spec }

func (w *chainWorker) CleanCopy() (registry.Worker, error) {
	return &chainWorker{
		engine:          w.engine,
		spec:            w.spec,
		order:           w.order,
		readers:         w.readers,
		settingsReaders: w.settingsReaders,
		blocks:          make(map[string]data.Ports, len(w.spec.Chain.Blocks)),
	}, nil
}

func (w *chainWorker) Close() error {
	for _, ports := range w.blocks {
		ports.Clear()
	}
	w.blocks = nil
	return nil
}

func (w *chainWorker) source(f *frame, src spec.Source) *data.Port {
	if src.IsChainInput() {
		return f.inputs.Get(src.Port)
	}
	return w.blocks[src.Block].Get(src.Port)
}

func (w *chainWorker) lookup(f *frame, ref string) (spec.Source, *data.Port) {
	src, ok := spec.ParseSource(ref)
	if !ok {
		return src, nil
	}
	return src, w.source(f, src)
}

func (w *chainWorker) run(ctx context.Context, f *frame) error {
	chain := w.spec.Chain
	for _, idx := range w.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := &chain.Blocks[idx]

		if b.When != "" {
			if _, p := w.lookup(f, b.When); !truthy(p) {
				w.engine.metrics.RecordSkipped()
				w.engine.logger.Debug("block skipped",
					zap.String("chain", w.spec.ID),
					zap.String("block", b.ID),
					zap.String("when", b.When))
				continue
			}
		}

		target, err := w.engine.registry.Spec(f.call.Session, b.Executor)
		if err != nil {
			return w.blockError(b, err)
		}
		in := target.NewInputPorts()
		for port, ref := range b.Inputs {
			src, p := w.lookup(f, ref)
			if p == nil || !p.IsInitialized() {
				continue
			}
			dst := in.Get(port)
			if dst == nil {
				dst = in.Add(port, data.Input, p.Kind())
			}
			if w.readers[src] == 1 {
				err = dst.Exchange(p)
			} else {
				err = dst.CopyFrom(p)
			}
			if err != nil {
				return w.blockError(b, err)
			}
		}
		if b.ID == chain.SettingsBlock {
			dst := in.Get(spec.SettingsPort)
			if dst == nil {
				dst = in.Add(spec.SettingsPort, data.Input, data.KindScalar)
			}
			sc, err := dst.Scalar()
			if err != nil {
				return w.blockError(b, err)
			}
			sc.Set(string(f.settings.JSON))
		}

		out := target.NewOutputPorts()
		if w.settingsReaders[b.ID] && out.Get(spec.SettingsPort) == nil {
			out.Add(spec.SettingsPort, data.Output, data.KindScalar)
		}

		res, err := w.engine.invoke(ctx, &Call{
			Session:    f.call.Session,
			Executor:   b.Executor,
			Inputs:     in,
			Outputs:    out,
			Parameters: b.Parameters,
			Options: Options{
				IgnoreParameters: b.IgnoreParameters,
				AbsolutePaths:    f.call.Options.AbsolutePaths,
				BaseDir:          f.call.Options.BaseDir,
			},
			depth: f.call.depth + 1,
		})
		if err != nil {
			return w.blockError(b, err)
		}
		w.blocks[b.ID] = out
		if res.Cancelled {
			f.cancelled = true
			w.engine.logger.Debug("chain cancelled by block",
				zap.String("chain", w.spec.ID),
				zap.String("block", b.ID))
			return nil
		}
	}

	for port, ref := range chain.Outputs {
		src, p := w.lookup(f, ref)
		dst := f.outputs.Get(port)
		if p == nil || dst == nil {
			continue
		}
		var err error
		if w.readers[src] == 1 {
			err = dst.Exchange(p)
		} else {
			err = dst.CopyFrom(p)
		}
		if err != nil {
			return w.blockError(chain.Block(sourceBlock(ref)), err)
		}
	}
	return nil
}

func (w *chainWorker) blockError(b *spec.BlockSpec, err error) error {
	if b == nil {
		return err
	}
	return &BlockError{ChainID: w.spec.ID, BlockID: b.ID, ExecutorID: b.Executor, Cause: err}
}

func sourceBlock(ref string) string {
	src, _ := spec.ParseSource(ref)
	return src.Block
}

// truthy reports whether a condition port lets its block run.
func truthy(p *data.Port) bool {
	if p == nil || !p.IsInitialized() {
		return false
	}
	if sc, err := p.Scalar(); err == nil {
		return sc.Bool()
	}
	return true
}
