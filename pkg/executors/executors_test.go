package executors

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/data"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

const builtins = `
executors:
  - id: gt
    kind: leaf
    implementation: condition
    in_ports: [{name: input, kind: scalar}]
    out_ports: [{name: result, kind: scalar}, {name: not, kind: scalar}]
    controls:
      - {name: operator, value_type: string, default: equals}
      - {name: value, value_type: string}
      - {name: field, value_type: string}
      - {name: case_insensitive, value_type: bool, default: false}
  - id: dec
    kind: leaf
    implementation: script
    in_ports: [{name: n, kind: scalar}]
    out_ports: [{name: out, kind: scalar}]
    script: |
      function execute(inputs, params) {
        return {out: parseInt(inputs.n, 10) - 1};
      }
  - id: mul
    kind: leaf
    implementation: script
    in_ports: [{name: a, kind: scalar}, {name: b, kind: scalar}]
    out_ports: [{name: out, kind: scalar}]
    script: |
      function execute(inputs) {
        return {out: parseInt(inputs.a, 10) * parseInt(inputs.b, 10)};
      }
  - id: one
    kind: leaf
    implementation: constant
    out_ports: [{name: output, kind: scalar}]
    controls: [{name: value, value_type: string, default: "1"}]
  - id: first
    kind: leaf
    implementation: choose
    in_ports: [{name: in1, kind: scalar, optional: true}, {name: in2, kind: scalar, optional: true}]
    out_ports: [{name: output, kind: scalar}]
  - id: factorial
    kind: chain
    in_ports: [{name: n, kind: scalar}]
    out_ports: [{name: out, kind: scalar}]
    chain:
      blocks:
        - {id: test, executor: gt, inputs: {input: $n}, parameters: {operator: greater_than, value: "1"}}
        - {id: prev, executor: dec, inputs: {n: $n}, when: test.result}
        - {id: sub, executor: factorial, inputs: {n: prev.out}, when: test.result}
        - {id: mul, executor: mul, inputs: {a: $n, b: sub.out}, when: test.result}
        - {id: base, executor: one, when: test.not}
        - {id: pick, executor: first, inputs: {in1: mul.out, in2: base.output}}
      outputs: {out: pick.output}

  - id: cfg
    kind: leaf
    implementation: settings
    in_ports: [{name: settings, kind: scalar}]
    out_ports: [{name: settings, kind: scalar}, {name: a, kind: scalar}, {name: b, kind: scalar}, {name: coefficients, kind: numbers}]
  - id: lin
    kind: leaf
    implementation: linear
    in_ports: [{name: x, kind: numbers}]
    out_ports: [{name: y, kind: numbers}]
    controls:
      - {name: a, value_type: float, default: 1}
      - {name: b, value_type: float, default: 0}
  - id: affine
    kind: chain
    in_ports: [{name: x, kind: numbers}]
    out_ports: [{name: y, kind: numbers}, {name: used, kind: scalar}, {name: c, kind: numbers}]
    visible_output: y
    controls:
      - {name: a, value_type: float, default: 2}
      - {name: b, value_type: float, default: 1}
    chain:
      settings_block: s
      blocks:
        - {id: s, executor: cfg}
        - {id: l, executor: lin, inputs: {x: $x, settings: s.settings}}
      outputs: {y: l.y, used: s.settings, c: s.coefficients}

  - id: text
    kind: leaf
    implementation: strings
    in_ports: [{name: input, kind: scalar}, {name: input2, kind: scalar, optional: true}]
    out_ports: [{name: output, kind: scalar}]
    controls:
      - {name: operation, value_type: string, default: upper}
      - {name: language, value_type: string}
      - {name: separator, value_type: string}
      - {name: old, value_type: string}
      - {name: new, value_type: string}
  - id: query
    kind: leaf
    implementation: jsonquery
    in_ports: [{name: input, kind: scalar}]
    out_ports: [{name: output, kind: scalar}, {name: found, kind: scalar}]
    controls:
      - {name: path, value_type: string}
      - {name: required, value_type: bool, default: false}
  - id: double
    kind: leaf
    implementation: script
    in_ports: [{name: x, kind: numbers}]
    out_ports: [{name: y, kind: numbers}, {name: note, kind: scalar}]
    controls: [{name: factor, value_type: int, default: 2}]
    script: |
      function execute(inputs, params) {
        var f = params.factor;
        return {
          y: {values: inputs.x.values.map(function (v) { return v * f; }), width: inputs.x.width},
          note: "x" + f,
        };
      }
  - id: halt
    kind: leaf
    implementation: script
    in_ports: [{name: x, kind: scalar}]
    out_ports: [{name: y, kind: scalar}]
    script: |
      function execute(inputs) {
        return {y: inputs.x, __cancel: true};
      }
  - id: broken
    kind: leaf
    implementation: script
    out_ports: [{name: y, kind: scalar}]
    script: |
      function execute() { throw new Error("nope"); }
`

type fixture struct {
	engine  *engine.Engine
	session string
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	reg := registry.New(zap.NewNop())
	e, err := engine.New(reg, NewFactory(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	specs, err := spec.Parse([]byte(builtins), ".yaml")
	require.NoError(t, err)
	cat := spec.NewCatalog()
	require.NoError(t, cat.Add(specs...))
	require.NoError(t, cat.Validate())

	session := registry.NewSessionID()
	for _, s := range cat.Specs() {
		w, err := e.NewWorker(s)
		require.NoError(t, err)
		require.NoError(t, reg.Register(session, s, w))
	}
	return &fixture{engine: e, session: session}
}

func (f *fixture) call(t *testing.T, id string, params map[string]any, in data.Ports, outs ...string) (data.Ports, *engine.Result) {
	t.Helper()
	s, err := f.engine.Registry().Spec(f.session, id)
	require.NoError(t, err)
	out := data.Ports{}
	for _, name := range outs {
		kind := data.KindScalar
		if p := s.OutPort(name); p != nil {
			kind = p.Kind
		}
		out.Add(name, data.Output, kind)
	}
	res, err := f.engine.Execute(context.Background(), engine.Call{
		Session:    f.session,
		Executor:   id,
		Inputs:     in,
		Outputs:    out,
		Parameters: params,
	})
	require.NoError(t, err)
	return out, res
}

func scalarIn(t *testing.T, kv ...string) data.Ports {
	t.Helper()
	ports := data.Ports{}
	for i := 0; i < len(kv); i += 2 {
		s, err := ports.Add(kv[i], data.Input, data.KindScalar).Scalar()
		require.NoError(t, err)
		s.Set(kv[i+1])
	}
	return ports
}

func numbersIn(t *testing.T, name string, values []float64, width int) data.Ports {
	t.Helper()
	ports := data.Ports{}
	n, err := ports.Add(name, data.Input, data.KindNumbers).Numbers()
	require.NoError(t, err)
	require.NoError(t, n.SetTo(values, width))
	return ports
}

func TestScriptedFactorial(t *testing.T) {
	f := newFixture(t)
	for n, want := range map[int]string{1: "1", 3: "6", 5: "120", 10: "3628800"} {
		out, _ := f.call(t, "factorial", nil, scalarIn(t, "n", strconv.Itoa(n)), "out")
		got, _ := out.ScalarValue("out")
		assert.Equal(t, want, got, "%d!", n)
	}
	assert.Zero(t, f.engine.Registry().LiveClones())
}

func TestSettingsBlockFeedsChain(t *testing.T) {
	f := newFixture(t, engine.WithConfig(engine.DefaultConfig().WithMaxParallel(4).WithMinChunk(8)))

	values := make([]float64, 2000)
	for i := range values {
		values[i] = float64(i)
	}
	out, res := f.call(t, "affine", map[string]any{"a": 3, "coefficients": []any{1, 2}},
		numbersIn(t, "x", values, 2), "y", "used", "c")

	y, err := out.Get("y").Numbers()
	require.NoError(t, err)
	require.Equal(t, 1000, y.RecordCount())
	assert.Equal(t, 2, y.RecordWidth())
	for i, v := range y.Values() {
		if v != 3*float64(i)+1 {
			t.Fatalf("y[%d] = %g, want %g", i, v, 3*float64(i)+1)
		}
	}

	used, _ := out.ScalarValue("used")
	assert.Contains(t, used, `"a": 3`)
	assert.Contains(t, used, `"b": 1`)
	assert.Equal(t, "y", res.Visible)

	// coefficients is not a control of the chain, so the parameter is dropped
	assert.False(t, out.Get("c").IsInitialized())
}

func TestSettingsDocumentReachesNumbersPort(t *testing.T) {
	f := newFixture(t)

	out := data.Ports{}
	out.Add("c", data.Output, data.KindNumbers)
	out.Add("y", data.Output, data.KindNumbers)
	_, err := f.engine.Execute(context.Background(), engine.Call{
		Session:  f.session,
		Executor: "affine",
		Inputs:   numbersIn(t, "x", []float64{1}, 1),
		Outputs:  out,
		Settings: []byte(`{"coefficients": [0.5, 1.5]}`),
	})
	require.NoError(t, err)

	c, err := out.Get("c").Numbers()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, c.Values())
	y, _ := out.Get("y").Numbers()
	assert.Equal(t, []float64{3}, y.Values())
}

func TestStrings(t *testing.T) {
	tests := []struct {
		params map[string]any
		in     []string
		want   string
	}{
		{map[string]any{"operation": "upper"}, []string{"input", "straße"}, "STRASSE"},
		{map[string]any{"operation": "lower"}, []string{"input", "HeLLo"}, "hello"},
		{map[string]any{"operation": "title"}, []string{"input", "hello world"}, "Hello World"},
		{map[string]any{"operation": "upper", "language": "tr"}, []string{"input", "i"}, "İ"},
		{map[string]any{"operation": "capitalize"}, []string{"input", "élan"}, "Élan"},
		{map[string]any{"operation": "trim"}, []string{"input", "  x  "}, "x"},
		{map[string]any{"operation": "length"}, []string{"input", "héllo"}, "5"},
		{map[string]any{"operation": "normalize"}, []string{"input", "Crème Brûlée"}, "Creme Brulee"},
		{map[string]any{"operation": "replace", "old": "a", "new": "o"}, []string{"input", "banana"}, "bonono"},
		{map[string]any{"operation": "concatenate", "separator": "-"}, []string{"input", "a", "input2", "b"}, "a-b"},
		{map[string]any{"operation": "base64_encode"}, []string{"input", "hi"}, "aGk="},
		{map[string]any{"operation": "uri_encode"}, []string{"input", "a b&c"}, "a+b%26c"},
	}
	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.params["operation"].(string), func(t *testing.T) {
			out, _ := f.call(t, "text", tt.params, scalarIn(t, tt.in...), "output")
			got, _ := out.ScalarValue("output")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringsUnknownOperation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Execute(context.Background(), engine.Call{
		Session:    f.session,
		Executor:   "text",
		Inputs:     scalarIn(t, "input", "x"),
		Parameters: map[string]any{"operation": "reverse"},
	})
	assert.ErrorContains(t, err, "unsupported operation 'reverse'")
}

func TestCondition(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		input  string
		want   string
	}{
		{"numeric equality", map[string]any{"value": "1"}, "1.0", "true"},
		{"text equality", map[string]any{"value": "abc"}, "abd", "false"},
		{"case insensitive", map[string]any{"value": "ABC", "case_insensitive": true}, "abc", "true"},
		{"greater", map[string]any{"operator": "greater_than", "value": "3"}, "4", "true"},
		{"less or equal", map[string]any{"operator": "less_than_or_equal", "value": "3"}, "4", "false"},
		{"contains", map[string]any{"operator": "contains", "value": "ell"}, "hello", "true"},
		{"regex", map[string]any{"operator": "regex", "value": `^h\w+o$`}, "hello", "true"},
		{"in list", map[string]any{"operator": "in", "value": "a, b, c"}, "b", "true"},
		{"in json", map[string]any{"operator": "not_in", "value": `[1, 2]`}, "3", "true"},
		{"empty", map[string]any{"operator": "is_empty"}, " ", "true"},
		{"field", map[string]any{"field": "user.age", "operator": "greater_than_or_equal", "value": "18"}, `{"user":{"age":21}}`, "true"},
	}
	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := f.call(t, "gt", tt.params, scalarIn(t, "input", tt.input), "result", "not")
			got, _ := out.ScalarValue("result")
			assert.Equal(t, tt.want, got)
			not, _ := out.ScalarValue("not")
			assert.NotEqual(t, got, not)
		})
	}
}

func TestConditionRejectsBadNumbers(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Execute(context.Background(), engine.Call{
		Session:    f.session,
		Executor:   "gt",
		Inputs:     scalarIn(t, "input", "abc"),
		Parameters: map[string]any{"operator": "greater_than", "value": "1"},
	})
	var cmp *ComparisonError
	require.ErrorAs(t, err, &cmp)
	assert.Equal(t, "greater_than", cmp.Operator)
}

func TestJSONQuery(t *testing.T) {
	f := newFixture(t)
	doc := `{"user": {"name": "ada", "langs": ["go", "js"]}}`

	out, _ := f.call(t, "query", map[string]any{"path": "$.user.name"}, scalarIn(t, "input", doc), "output", "found")
	got, _ := out.ScalarValue("output")
	assert.Equal(t, "ada", got)

	out, _ = f.call(t, "query", map[string]any{"path": "/user/langs"}, scalarIn(t, "input", doc), "output")
	got, _ = out.ScalarValue("output")
	assert.JSONEq(t, `["go", "js"]`, got)

	out, _ = f.call(t, "query", map[string]any{"path": "user.age"}, scalarIn(t, "input", doc), "output", "found")
	assert.False(t, out.Get("output").IsInitialized())
	found, _ := out.ScalarValue("found")
	assert.Equal(t, "false", found)

	_, err := f.engine.Execute(context.Background(), engine.Call{
		Session:    f.session,
		Executor:   "query",
		Inputs:     scalarIn(t, "input", doc),
		Parameters: map[string]any{"path": "user.age", "required": true},
	})
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
}

func TestScriptNumbersAndParams(t *testing.T) {
	f := newFixture(t)

	out, _ := f.call(t, "double", map[string]any{"factor": 3}, numbersIn(t, "x", []float64{1, 2, 3, 4}, 2), "y", "note")
	y, err := out.Get("y").Numbers()
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6, 9, 12}, y.Values())
	assert.Equal(t, 2, y.RecordWidth())
	note, _ := out.ScalarValue("note")
	assert.Equal(t, "x3", note)
}

func TestScriptCancelsExecution(t *testing.T) {
	f := newFixture(t)

	out, res := f.call(t, "halt", nil, scalarIn(t, "x", "v"), "y")
	assert.True(t, res.Cancelled)
	assert.False(t, out.Get("y").IsInitialized())
}

func TestScriptErrorsAreExecutionErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Execute(context.Background(), engine.Call{Session: f.session, Executor: "broken"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "nope")
}

func TestScriptWithoutSourceIsRejected(t *testing.T) {
	e, err := engine.New(registry.New(nil), NewFactory())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.NewWorker(&spec.ExecutorSpec{ID: "empty", Kind: spec.KindLeaf, Implementation: Script})
	assert.ErrorContains(t, err, "has no script")
}
