package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// schemas caches one compiled schema per executor spec. Specs are immutable,
// so the pointer is a stable key.
var schemas sync.Map

// controlSchema builds a JSON schema checking the type of every declared
// control. Unknown keys are allowed.
func controlSchema(s *spec.ExecutorSpec) map[string]any {
	props := make(map[string]any, len(s.Controls))
	for _, c := range s.Controls {
		prop := map[string]any{}
		switch c.ValueType {
		case spec.ValueString:
			prop["type"] = "string"
		case spec.ValueInt:
			prop["type"] = "integer"
		case spec.ValueFloat:
			prop["type"] = "number"
		case spec.ValueBool:
			prop["type"] = "boolean"
		case spec.ValueSettings:
			prop["type"] = "object"
		}
		if c.EditionType == spec.EditEnum && c.ValueType == spec.ValueString && len(c.Items) > 0 {
			values := make([]any, len(c.Items))
			for i, item := range c.Items {
				values[i] = item.Value
			}
			prop["enum"] = values
		}
		props[c.Name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func compiledSchema(s *spec.ExecutorSpec) (*jsonschema.Schema, error) {
	if cached, ok := schemas.Load(s); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := json.Marshal(controlSchema(s))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	url := "daedalus://" + s.ID + "/settings.json"
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	actual, _ := schemas.LoadOrStore(s, schema)
	return actual.(*jsonschema.Schema), nil
}

// validationMessages flattens nested schema errors into readable lines.
func validationMessages(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("at '%s': %s", loc, e.Message))
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}
