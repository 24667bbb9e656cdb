package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := NewPool(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestCallEntryFunction(t *testing.T) {
	p := newTestPool(t, DefaultConfig())
	prg, err := Compile("double.js", `function execute(inputs, params) {
		return { out: inputs.n * params.factor };
	}`, "execute")
	require.NoError(t, err)

	out, err := p.Call(context.Background(), prg, map[string]any{"n": 21}, map[string]any{"factor": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"out": int64(42)}, out)
}

func TestGlobalsDoNotLeakBetweenCalls(t *testing.T) {
	p := newTestPool(t, Config{MaxSize: 1})
	leak, err := Compile("leak.js", `var leaked = 1; function execute() { return typeof leaked; }`, "execute")
	require.NoError(t, err)
	probe, err := Compile("probe.js", `function execute() { return typeof leaked; }`, "execute")
	require.NoError(t, err)

	out, err := p.Call(context.Background(), leak)
	require.NoError(t, err)
	assert.Equal(t, "number", out)

	out, err = p.Call(context.Background(), probe)
	require.NoError(t, err)
	assert.Equal(t, "undefined", out)
	assert.EqualValues(t, 1, p.Stats().Created)
}

func TestTimeoutInterruptsScript(t *testing.T) {
	p := newTestPool(t, Config{Timeout: 50 * time.Millisecond, MaxSize: 1})
	prg, err := Compile("spin.js", `function execute() { for (;;) {} }`, "execute")
	require.NoError(t, err)

	_, err = p.Call(context.Background(), prg)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrorKindTimeout, se.Kind)

	ok, err := Compile("ok.js", `function execute() { return "fine"; }`, "execute")
	require.NoError(t, err)
	out, err := p.Call(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
}

func TestErrorsAreClassified(t *testing.T) {
	_, err := Compile("bad.js", `function execute( {`, "execute")
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrorKindSyntax, se.Kind)

	p := newTestPool(t, DefaultConfig())
	prg, err := Compile("throw.js", `function execute() { throw new Error("boom"); }`, "execute")
	require.NoError(t, err)
	_, err = p.Call(context.Background(), prg)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrorKindRuntime, se.Kind)
	assert.Contains(t, se.Message, "boom")

	missing, err := Compile("missing.js", `var x = 1;`, "execute")
	require.NoError(t, err)
	_, err = p.Call(context.Background(), missing)
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "does not define function execute")
}

func TestStrictModeBlocksEval(t *testing.T) {
	p := newTestPool(t, Config{SecurityLevel: SecurityLevelStrict})
	prg, err := Compile("eval.js", `function execute() { return eval("1+1"); }`, "execute")
	require.NoError(t, err)

	_, err = p.Call(context.Background(), prg)
	require.Error(t, err)
}

func TestClosedPool(t *testing.T) {
	p, err := NewPool(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	prg, err := Compile("x.js", `function execute() {}`, "execute")
	require.NoError(t, err)
	_, err = p.Call(context.Background(), prg)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
