package executors

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// QueryError reports a failed JSON query.
type QueryError struct {
	Query   string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %s", e.Query, e.Message)
}

// The jsonquery executor evaluates its "path" setting against the JSON text
// on "input". Strings are written unquoted, everything else as JSON. A
// missing path leaves "output" uninitialized unless "required" is set.
// A declared "found" output reports whether the path matched.
func newJSONQuery(*spec.ExecutorSpec, *engine.Env) (engine.Processor, error) {
	return engine.ProcessorFunc(processJSONQuery), nil
}

func processJSONQuery(_ context.Context, in *engine.Invocation) error {
	input, _ := in.Scalar("input")
	path := normalizePath(in.ParamOr("path", ""))
	if !gjson.Valid(input) {
		return &QueryError{Query: path, Message: "input is not valid JSON"}
	}

	result := gjson.Get(input, path)
	if in.Outputs.Get("found") != nil {
		found := "false"
		if result.Exists() {
			found = "true"
		}
		if err := in.SetScalar("found", found); err != nil {
			return err
		}
	}
	if !result.Exists() {
		if in.ParamOr("required", "false") == "true" {
			return &QueryError{Query: path, Message: "path does not exist"}
		}
		return nil
	}

	out, err := in.Output("output")
	if err != nil {
		return err
	}
	if result.Type == gjson.String {
		return setPort(out, result.String())
	}
	return setPort(out, result.Raw)
}

// normalizePath accepts "$.a.b" and "/a/b" in addition to gjson syntax.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "$."); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(path, "/"); ok {
		return strings.ReplaceAll(rest, "/", ".")
	}
	return path
}
