package engine

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/script"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// Processor is the body of a leaf executor.
type Processor interface {
	Process(ctx context.Context, in *Invocation) error
}

// ProcessorFunc adapts a function to Processor. Function processors hold no
// state and are shared across activations.
type ProcessorFunc func(ctx context.Context, in *Invocation) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, in *Invocation) error { return f(ctx, in) }

// Shareable reports true.
func (f ProcessorFunc) Shareable() bool { return true }

// Env is what the engine lends to processors.
type Env struct {
	Logger   *zap.Logger
	Scripts  *script.Pool
	Limiter  *concurrency.Limiter
	MinChunk int
}

// ProcessorCreator builds a processor for a leaf spec.
type ProcessorCreator func(s *spec.ExecutorSpec, env *Env) (Processor, error)

// Factory maps implementation names to processor creators.
// It is safe for concurrent use.
type Factory struct {
	creators map[string]ProcessorCreator
	mu       sync.RWMutex
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{creators: make(map[string]ProcessorCreator)}
}

// Register registers a creator for an implementation name.
// If a creator already exists for the name, it will be overwritten.
func (f *Factory) Register(implementation string, creator ProcessorCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[implementation] = creator
}

// Create builds the processor of a leaf spec.
func (f *Factory) Create(s *spec.ExecutorSpec, env *Env) (Processor, error) {
	f.mu.RLock()
	creator, exists := f.creators[s.Implementation]
	f.mu.RUnlock()

	if !exists {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification,
			"executor %q: no processor registered for implementation %q", s.ID, s.Implementation)
	}

	proc, err := creator(s, env)
	if err != nil {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrInvalidSpecification,
			"executor %q: failed to create %s processor: %v", s.ID, s.Implementation, err)
	}
	return proc, nil
}

// HasCreator checks if a creator exists for an implementation name.
func (f *Factory) HasCreator(implementation string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.creators[implementation]
	return exists
}

// RegisteredTypes returns the sorted implementation names.
func (f *Factory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
