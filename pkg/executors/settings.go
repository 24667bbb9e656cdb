package executors

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// The settings executor publishes the settings of its block: the whole
// document on "settings", and each top-level key on the output port of the
// same name.
func newSettings(*spec.ExecutorSpec, *engine.Env) (engine.Processor, error) {
	return engine.ProcessorFunc(processSettings), nil
}

func processSettings(_ context.Context, in *engine.Invocation) error {
	for name, p := range in.Outputs {
		if name == spec.SettingsPort {
			if err := in.SetScalar(name, in.Settings.Pretty); err != nil {
				return err
			}
			continue
		}
		v, ok := in.Settings.Document[name]
		if !ok || v == nil {
			continue
		}
		if err := setPort(p, v); err != nil {
			return fmt.Errorf("setting %q: %w", name, err)
		}
	}
	return nil
}
