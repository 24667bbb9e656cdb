package executors

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// The constant executor emits its "value" setting on "output".
func newConstant(*spec.ExecutorSpec, *engine.Env) (engine.Processor, error) {
	return engine.ProcessorFunc(processConstant), nil
}

func processConstant(_ context.Context, in *engine.Invocation) error {
	v, ok := in.Settings.Document["value"]
	if !ok {
		return nil
	}
	out, err := in.Output("output")
	if err != nil {
		return err
	}
	return setPort(out, v)
}
