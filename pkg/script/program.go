package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// Program is compiled source defining an entry function. It is immutable
// and may run on any runtime of any pool.
type Program struct {
	name    string
	entry   string
	program *goja.Program
}

// Compile parses src. entry names the function Call invokes. Top-level
// declarations of src are scoped to the program, so they never become
// globals of the runtime that runs it.
func Compile(name, src, entry string) (*Program, error) {
	wrapped := "(function() {\n" + src + "\n;return typeof " + entry + " === 'function' ? " + entry + " : undefined;\n})()"
	prg, err := goja.Compile(name, wrapped, false)
	if err != nil {
		return nil, wrap(err)
	}
	return &Program{name: name, entry: entry, program: prg}, nil
}

// Name returns the program name used in stack traces.
func (p *Program) Name() string { return p.name }

// Call runs the program on a pooled runtime and invokes its entry function
// with args. The result is exported to Go values. The call is interrupted
// when ctx is done or the pool timeout elapses.
func (p *Pool) Call(ctx context.Context, prg *Program, args ...any) (result any, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	r, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire runtime: %w", err)
	}
	defer p.release(r)

	defer func() {
		if rec := recover(); rec != nil {
			err = newError(ErrorKindInternal, "panic during execution: %v", rec)
		}
	}()

	// The watcher must exit before the runtime goes back to the pool.
	done := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	defer func() {
		close(done)
		watcher.Wait()
	}()

	go func() {
		defer watcher.Done()
		select {
		case <-ctx.Done():
			r.rt.Interrupt(fmt.Sprintf("execution %s", ctx.Err()))
		case <-done:
		}
	}()

	entry, err := r.rt.RunProgram(prg.program)
	if err != nil {
		return nil, wrap(err)
	}
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return nil, newError(ErrorKindRuntime, "%s does not define function %s", prg.name, prg.entry)
	}

	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = r.rt.ToValue(a)
	}
	out, err := fn(goja.Undefined(), values...)
	if err != nil {
		return nil, wrap(err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, nil
	}
	return out.Export(), nil
}
