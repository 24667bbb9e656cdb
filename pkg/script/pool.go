package script

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// Pool hands out sandboxed runtimes. A runtime is used by one goroutine at
// a time and is reset before it is reused.
type Pool struct {
	cfg      Config
	runtimes chan *runtime
	size     atomic.Int32
	created  atomic.Int64
	acquired atomic.Int64

	mu     sync.Mutex
	closed bool
}

type runtime struct {
	rt       *goja.Runtime
	uses     int
	builtins goja.Value
	reset    goja.Callable
}

// PoolStats reports pool counters.
type PoolStats struct {
	Size      int   `json:"size"`
	Available int   `json:"available"`
	Created   int64 `json:"created"`
	Acquired  int64 `json:"acquired"`
}

// NewPool creates an empty pool; runtimes are created on demand.
func NewPool(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:      cfg,
		runtimes: make(chan *runtime, cfg.MaxSize),
	}, nil
}

// Config returns the effective configuration.
func (p *Pool) Config() Config { return p.cfg }

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) acquire(ctx context.Context) (*runtime, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	p.acquired.Add(1)

	select {
	case r, ok := <-p.runtimes:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	default:
	}

	if int(p.size.Load()) < p.cfg.MaxSize {
		return p.create()
	}

	select {
	case r, ok := <-p.runtimes:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) create() (*runtime, error) {
	rt := goja.New()
	if err := applySandbox(rt, p.cfg); err != nil {
		return nil, fmt.Errorf("failed to create secure context: %w", err)
	}
	reset, err := rt.RunString(resetScript)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reset script: %w", err)
	}
	resetFn, ok := goja.AssertFunction(reset)
	if !ok {
		return nil, fmt.Errorf("reset script is not a function")
	}
	builtins, err := rt.RunString("Object.getOwnPropertyNames(this)")
	if err != nil {
		return nil, fmt.Errorf("failed to list builtins: %w", err)
	}

	p.size.Add(1)
	p.created.Add(1)
	return &runtime{rt: rt, builtins: builtins, reset: resetFn}, nil
}

// release resets r and returns it to the pool, or drops it when the pool is
// closed, full, or r has been used too often.
func (p *Pool) release(r *runtime) {
	r.uses++
	r.rt.ClearInterrupt()
	if _, err := r.reset(r.rt.GlobalObject(), r.builtins); err != nil || r.uses >= p.cfg.MaxReuseCount {
		p.size.Add(-1)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.size.Add(-1)
		return
	}
	select {
	case p.runtimes <- r:
	default:
		p.size.Add(-1)
	}
}

// Stats returns the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:      int(p.size.Load()),
		Available: len(p.runtimes),
		Created:   p.created.Load(),
		Acquired:  p.acquired.Load(),
	}
}

// Close drops every idle runtime. Runtimes in use are dropped on release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.runtimes)
	for range p.runtimes {
		p.size.Add(-1)
	}
	return nil
}
