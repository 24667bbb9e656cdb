package executors

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// The choose executor forwards its first initialized input, in declaration
// order, to "output". It is how a chain merges the branches of a condition.
func newChoose(s *spec.ExecutorSpec, _ *engine.Env) (engine.Processor, error) {
	if s.OutPort("output") == nil {
		return nil, fmt.Errorf("choose requires an output port named %q", "output")
	}
	return engine.ProcessorFunc(processChoose), nil
}

func processChoose(_ context.Context, in *engine.Invocation) error {
	out, err := in.Output("output")
	if err != nil {
		return err
	}
	for _, port := range in.Spec.InPorts {
		p := in.Input(port.Name)
		if p == nil || !p.IsInitialized() {
			continue
		}
		return out.Exchange(p)
	}
	return nil
}
