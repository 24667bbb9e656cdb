package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/script"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

const (
	scriptEntry = "execute"
	// cancelKey in a script result cancels further execution.
	cancelKey = "__cancel"
)

// scriptProcessor runs the spec's script:
//
//	function execute(inputs, params) { return {port: value} }
//
// Scalar inputs arrive as strings, numbers inputs as {values, width},
// matrix inputs as their shape only. Returned keys name output ports.
type scriptProcessor struct {
	program *script.Program
	pool    *script.Pool
	logger  *zap.Logger
}

func newScript(s *spec.ExecutorSpec, env *engine.Env) (engine.Processor, error) {
	if strings.TrimSpace(s.Script) == "" {
		return nil, fmt.Errorf("script executor %q has no script", s.ID)
	}
	if env == nil || env.Scripts == nil {
		return nil, fmt.Errorf("script executor %q: no script pool", s.ID)
	}
	prg, err := script.Compile(s.ID, s.Script, scriptEntry)
	if err != nil {
		return nil, err
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &scriptProcessor{program: prg, pool: env.Scripts, logger: logger}, nil
}

// Shareable reports true: the compiled program is immutable and runtimes
// come from the pool per call.
func (p *scriptProcessor) Shareable() bool { return true }

func (p *scriptProcessor) Process(ctx context.Context, in *engine.Invocation) error {
	inputs := make(map[string]any, len(in.Inputs))
	for name, port := range in.Inputs {
		if !port.IsInitialized() {
			continue
		}
		v, err := portValue(port)
		if err != nil {
			return err
		}
		inputs[name] = v
	}

	params, _ := plain(in.Settings.Document).(map[string]any)
	result, err := p.pool.Call(ctx, p.program, inputs, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	outputs, ok := result.(map[string]any)
	if !ok {
		return fmt.Errorf("%s() must return an object, got %T", scriptEntry, result)
	}

	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := outputs[name]
		if name == cancelKey {
			if cancel, _ := v.(bool); cancel {
				in.CancelExecution()
			}
			continue
		}
		out := in.Outputs.Get(name)
		if out == nil {
			p.logger.Debug("script returned an undeclared output",
				zap.String("executor", in.Spec.ID),
				zap.String("output", name))
			continue
		}
		if err := setPort(out, v); err != nil {
			return err
		}
	}
	return nil
}

// plain converts decoded JSON into values scripts see as native numbers.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
