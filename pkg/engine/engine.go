package engine

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/data"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/script"
	"github.com/wehubfusion/Daedalus/pkg/settings"
	"github.com/wehubfusion/Daedalus/pkg/spec"
	"github.com/wehubfusion/Daedalus/pkg/timing"
)

// Options are per-call switches.
type Options struct {
	// IgnoreParameters skips the caller's parameters during settings resolution.
	IgnoreParameters bool
	// ReadOnlyInputs copies caller inputs instead of transferring them.
	ReadOnlyInputs bool
	// AbsolutePaths rewrites relative file and folder settings against BaseDir.
	AbsolutePaths bool
	BaseDir       string
	// SubSettings narrows the incoming document, e.g. "stage/filter".
	SubSettings string
	// VisibleOutput overrides the port reported as the visible result.
	VisibleOutput string
}

// Call is one invocation request.
type Call struct {
	Session  string
	Executor string
	// Inputs are bound into the instance. Unless ReadOnlyInputs is set,
	// their payloads are transferred and the caller's ports end up empty.
	Inputs data.Ports
	// Outputs receive the instance's outputs by exchange. A scalar
	// "settings" port receives the merged settings document.
	Outputs    data.Ports
	Parameters map[string]any
	// Settings is an incoming settings document. When empty, the scalar
	// "settings" input port is used instead.
	Settings []byte
	Options  Options

	depth     int
	forwarded bool
}

// Phases are the timings of one invocation.
type Phases struct {
	Loading   time.Duration
	Executing time.Duration
	Total     time.Duration
}

// Result describes a completed invocation.
type Result struct {
	Executor string
	Outputs  data.Ports
	// Settings is the merged settings document, indented.
	Settings string
	// Visible names the output port surfaced as the result, when one can be chosen.
	Visible string
	// Variant is the variant a multi-chain executed.
	Variant string
	// Cancelled is set when the body cancelled execution; Outputs were not bound.
	Cancelled bool
	Timing    Phases

	spec *spec.ExecutorSpec
}

// Engine runs invocations against a registry. It is safe for concurrent use.
type Engine struct {
	registry       *registry.Registry
	factory        *Factory
	cfg            Config
	logger         *zap.Logger
	tracer         trace.Tracer
	metrics        MetricsCollector
	env            *Env
	newAccumulator func(id string) timing.Accumulator
	ownScripts     bool

	statsMu sync.Mutex
	stats   map[string]timing.Accumulator
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for chain and multi-chain spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithAccumulatorFactory replaces the per-executor timing accumulators.
func WithAccumulatorFactory(fn func(id string) timing.Accumulator) Option {
	return func(e *Engine) { e.newAccumulator = fn }
}

// WithScriptPool shares a script pool; the engine will not close it.
func WithScriptPool(p *script.Pool) Option {
	return func(e *Engine) { e.env.Scripts = p }
}

// WithLimiter shares a concurrency limiter across engines.
func WithLimiter(l *concurrency.Limiter) Option {
	return func(e *Engine) { e.env.Limiter = l }
}

// New creates an engine executing the workers of reg.
func New(reg *registry.Registry, factory *Factory, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if factory == nil {
		factory = NewFactory()
	}
	e := &Engine{
		registry: reg,
		factory:  factory,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("daedalus/engine"),
		metrics:  NewMetricsCollector(),
		env:      &Env{},
		stats:    make(map[string]timing.Accumulator),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if e.newAccumulator == nil {
		e.newAccumulator = func(id string) timing.Accumulator {
			return timing.NewStats(id, e.cfg.TimingCalls, e.cfg.Percentiles)
		}
	}
	if e.env.Scripts == nil {
		pool, err := script.NewPool(e.cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to create script pool: %w", err)
		}
		e.env.Scripts = pool
		e.ownScripts = true
	}
	if e.env.Limiter == nil {
		e.env.Limiter = concurrency.NewLimiter(e.cfg.MaxParallel)
	}
	e.env.MinChunk = e.cfg.MinChunk
	e.env.Logger = e.logger
	return e, nil
}

// Registry returns the registry the engine executes against.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Factory returns the leaf processor factory.
func (e *Engine) Factory() *Factory { return e.factory }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() Metrics { return e.metrics.GetMetrics() }

// Close releases the script pool when the engine created it.
func (e *Engine) Close() error {
	if e.ownScripts {
		return e.env.Scripts.Close()
	}
	return nil
}

// Execute runs one invocation on the calling goroutine.
func (e *Engine) Execute(ctx context.Context, call Call) (*Result, error) {
	if call.Inputs == nil {
		call.Inputs = data.Ports{}
	}
	if call.Outputs == nil {
		call.Outputs = data.Ports{}
	}
	call.depth, call.forwarded = 0, false

	res, err := e.invoke(ctx, &call)
	if err != nil {
		return nil, err
	}
	visible, err := VisibleOutput(res.spec, call.Options.VisibleOutput)
	if err != nil && call.Options.VisibleOutput != "" {
		return nil, err
	}
	res.Visible = visible
	return res, nil
}

func (e *Engine) invoke(ctx context.Context, call *Call) (res *Result, err error) {
	if call.depth > e.cfg.MaxDepth {
		return nil, fmt.Errorf("%w: %d nested invocations reaching %q", ErrMaxDepthExceeded, call.depth, call.Executor)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := e.registry.Spec(call.Session, call.Executor)
	if err != nil {
		return nil, err
	}

	raw, explicit := incomingDocument(call)
	if s.Kind == spec.KindChain && explicit && !call.forwarded && s.Chain.SettingsBlock == "" {
		return nil, daedaluserrors.Contract(daedaluserrors.ErrNoSettingsBlock,
			"settings document bound to chain %q", s.ID)
	}

	if s.IsContainer() {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "invoke "+s.ID, trace.WithAttributes(
			attribute.String("executor.id", s.ID),
			attribute.String("executor.kind", string(s.Kind)),
			attribute.String("session.id", call.Session),
			attribute.Int("depth", call.depth),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(
					attribute.Bool("cancelled", res.Cancelled),
					attribute.String("variant", res.Variant),
					attribute.Int64("timing.loading_ns", res.Timing.Loading.Nanoseconds()),
					attribute.Int64("timing.executing_ns", res.Timing.Executing.Nanoseconds()),
					attribute.Int64("timing.total_ns", res.Timing.Total.Nanoseconds()),
				)
			}
			span.End()
		}()
	}

	f := &frame{call: call, spec: s}
	if f.incoming, err = settings.ParseDocument(raw, call.Options.SubSettings); err != nil {
		return nil, err
	}
	if s.Kind == spec.KindMultiChain {
		if f.variant, err = selectVariant(s, call, f.incoming); err != nil {
			return nil, err
		}
	}

	// 1. acquire
	t1 := time.Now()
	lease, err := e.registry.Acquire(call.Session, s.ID)
	if err != nil {
		return nil, err
	}
	release := sync.OnceValue(lease.Release)
	defer func() { _ = release() }()
	e.logger.Debug("worker acquired",
		zap.String("executor", s.ID),
		zap.String("session", call.Session),
		zap.Bool("cloned", lease.Cloned()),
		zap.Int("depth", call.depth))
	w, ok := lease.Worker.(body)
	if !ok {
		return nil, daedaluserrors.Contract(daedaluserrors.ErrInvalidSpecification,
			"executor %q is not backed by an engine worker", s.ID)
	}
	t2 := time.Now()

	// 2. settings
	f.settings, err = settings.Resolve(s, settings.Request{
		Parameters:       call.Parameters,
		Document:         f.incoming,
		IgnoreParameters: call.Options.IgnoreParameters,
		AbsolutePaths:    call.Options.AbsolutePaths,
		BaseDir:          call.Options.BaseDir,
	})
	if err != nil {
		e.metrics.RecordError()
		return nil, err
	}

	// 3. bind in
	f.inputs = s.NewInputPorts()
	f.outputs = s.NewOutputPorts()
	if err := bindInputs(s, call.Inputs, f.inputs, call.Options.ReadOnlyInputs); err != nil {
		e.metrics.RecordError()
		return nil, err
	}
	t3 := time.Now()

	// 4. execute
	if err := w.run(ctx, f); err != nil {
		e.metrics.RecordError()
		if s.Kind == spec.KindLeaf {
			return nil, executionError(s, err)
		}
		return nil, err
	}
	t4 := time.Now()

	res = &Result{
		Executor:  s.ID,
		Outputs:   call.Outputs,
		Settings:  f.settings.Pretty,
		Variant:   f.variant,
		Cancelled: f.cancelled,
		spec:      s,
	}

	// 5. bind out
	if f.cancelled {
		e.metrics.RecordCancelled()
		e.logger.Debug("execution cancelled",
			zap.String("executor", s.ID),
			zap.String("session", call.Session),
			zap.Int("depth", call.depth))
	} else if err := bindOutputs(f, call.Outputs); err != nil {
		e.metrics.RecordError()
		return nil, err
	}
	t5 := time.Now()

	// 6. cleanup
	if err := release(); err != nil {
		return nil, err
	}

	// 7. timing
	res.Timing = Phases{
		Loading:   t3.Sub(t2) + t5.Sub(t4),
		Executing: t4.Sub(t3),
		Total:     t5.Sub(t1),
	}
	e.metrics.RecordInvocation(res.Timing.Executing)
	if e.cfg.TimingCalls > 0 && !f.cancelled {
		e.accumulator(s.ID).Update(res.Timing.Loading, res.Timing.Executing, res.Timing.Total)
	}
	return res, nil
}

func incomingDocument(call *Call) ([]byte, bool) {
	if len(bytes.TrimSpace(call.Settings)) > 0 {
		return call.Settings, true
	}
	if v, ok := call.Inputs.ScalarValue(spec.SettingsPort); ok && strings.TrimSpace(v) != "" {
		return []byte(v), true
	}
	return nil, false
}

func bindInputs(s *spec.ExecutorSpec, from, to data.Ports, readOnly bool) error {
	for _, p := range s.InPorts {
		src := from.Get(p.Name)
		if src == nil || !src.IsInitialized() {
			continue
		}
		dst := to[p.Name]
		var err error
		if readOnly {
			err = dst.CopyFrom(src)
		} else {
			err = dst.Exchange(src)
		}
		if err != nil {
			return fmt.Errorf("executor %q input %q: %w", s.ID, p.Name, err)
		}
	}
	return nil
}

func bindOutputs(f *frame, to data.Ports) error {
	for name, src := range f.outputs {
		dst := to.Get(name)
		if dst == nil {
			continue
		}
		if err := dst.Exchange(src); err != nil {
			return fmt.Errorf("executor %q output %q: %w", f.spec.ID, name, err)
		}
	}
	if _, declared := f.outputs[spec.SettingsPort]; declared {
		return nil
	}
	if dst := to.Get(spec.SettingsPort); dst != nil {
		sc, err := dst.Scalar()
		if err != nil {
			return fmt.Errorf("executor %q settings output: %w", f.spec.ID, err)
		}
		sc.Set(f.settings.Pretty)
	}
	return nil
}

// VisibleOutput chooses the output port surfaced as the result of s.
// requested wins when set; then the spec's declaration; then the sole
// output port.
func VisibleOutput(s *spec.ExecutorSpec, requested string) (string, error) {
	name := requested
	if name == "" {
		name = s.VisibleOutput
	}
	if name != "" {
		if s.OutPort(name) == nil {
			return "", daedaluserrors.Configuration(daedaluserrors.ErrAmbiguousVisibleOutput,
				"executor %q has no output port %q", s.ID, name)
		}
		return name, nil
	}
	if len(s.OutPorts) == 1 {
		return s.OutPorts[0].Name, nil
	}
	return "", daedaluserrors.Configuration(daedaluserrors.ErrAmbiguousVisibleOutput,
		"executor %q has %d output ports; name the visible one", s.ID, len(s.OutPorts))
}

// ResolveVisibleOutput is VisibleOutput for a registered executor.
func (e *Engine) ResolveVisibleOutput(session, id, requested string) (string, error) {
	s, err := e.registry.Spec(session, id)
	if err != nil {
		return "", err
	}
	return VisibleOutput(s, requested)
}

func (e *Engine) accumulator(id string) timing.Accumulator {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	acc, ok := e.stats[id]
	if !ok {
		acc = e.newAccumulator(id)
		e.stats[id] = acc
	}
	return acc
}

// Stats returns the timing window of an executor, if one was recorded.
func (e *Engine) Stats(id string) (*timing.Stats, bool) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	s, ok := e.stats[id].(*timing.Stats)
	return s, ok
}

// Analyse summarizes every recorded timing window, sorted by executor id.
func (e *Engine) Analyse() string {
	e.statsMu.Lock()
	ids := make([]string, 0, len(e.stats))
	for id := range e.stats {
		ids = append(ids, id)
	}
	e.statsMu.Unlock()
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		if s, ok := e.Stats(id); ok {
			b.WriteString(s.Analyse())
			b.WriteString("\n")
		}
	}
	return b.String()
}
