package executors

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// The linear executor computes y = a*x + b over every value of the numbers
// input "x". Records are split across goroutines.
func newLinear(*spec.ExecutorSpec, *engine.Env) (engine.Processor, error) {
	return engine.ProcessorFunc(processLinear), nil
}

func processLinear(ctx context.Context, in *engine.Invocation) error {
	xp := in.Input("x")
	if xp == nil || !xp.IsInitialized() {
		return nil
	}
	x, err := xp.Numbers()
	if err != nil {
		return err
	}
	out, err := in.Output("y")
	if err != nil {
		return err
	}
	y, err := out.Numbers()
	if err != nil {
		return err
	}

	a := in.FloatParam("a", 1)
	b := in.FloatParam("b", 0)
	width := x.RecordWidth()
	src := x.Values()
	if err := y.Resize(x.RecordCount(), width); err != nil {
		return err
	}
	dst := y.Values()

	var limiter *concurrency.Limiter
	minChunk := 1
	if in.Env != nil {
		limiter, minChunk = in.Env.Limiter, in.Env.MinChunk
	}
	err = concurrency.ForEachChunk(ctx, limiter, x.RecordCount(), minChunk, func(_ context.Context, lo, hi int) error {
		for i := lo * width; i < hi*width; i++ {
			dst[i] = a*src[i] + b
		}
		return nil
	})
	if err != nil {
		y.Clear()
	}
	return err
}
