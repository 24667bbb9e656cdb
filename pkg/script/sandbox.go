package script

import (
	"fmt"

	"github.com/dop251/goja"
)

var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

var frozenBuiltins = []string{
	"Object", "Array", "Function", "String", "Number",
	"Boolean", "Date", "RegExp", "Error", "Math", "JSON",
}

// applySandbox restricts rt according to cfg.SecurityLevel.
func applySandbox(rt *goja.Runtime, cfg Config) error {
	rt.SetMaxCallStackSize(cfg.MaxCallStackSize)

	for _, name := range dangerousGlobals {
		if err := rt.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if cfg.SecurityLevel == SecurityLevelStrict {
		err := rt.Set("eval", func(goja.FunctionCall) goja.Value {
			panic(rt.NewGoError(newError(ErrorKindSecurity, "eval is not allowed in strict security mode")))
		})
		if err != nil {
			return fmt.Errorf("failed to restrict eval: %w", err)
		}
	}

	if cfg.SecurityLevel == SecurityLevelPermissive {
		return nil
	}

	freeze, err := rt.RunString(`(function(obj) {
		if (obj) {
			Object.freeze(obj);
			if (obj.prototype) {
				Object.freeze(obj.prototype);
			}
		}
	})`)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}
	freezeFn, ok := goja.AssertFunction(freeze)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}
	for _, name := range frozenBuiltins {
		if obj := rt.Get(name); obj != nil && !goja.IsUndefined(obj) {
			if _, err := freezeFn(goja.Undefined(), obj); err != nil {
				return fmt.Errorf("failed to freeze %s: %w", name, err)
			}
		}
	}
	return nil
}

// resetScript deletes globals defined by a previous script.
const resetScript = `(function(keep) {
	var globals = Object.getOwnPropertyNames(this);
	for (var i = 0; i < globals.length; i++) {
		if (keep.indexOf(globals[i]) === -1) {
			try { delete this[globals[i]]; } catch (e) {}
		}
	}
})`
