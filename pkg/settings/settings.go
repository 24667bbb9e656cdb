// Package settings merges the settings of an executor invocation from its
// specification defaults, caller parameters and an incoming settings
// document.
//
// Later sources override matching top-level keys; nested objects are replaced
// wholesale, never merged field by field.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// Request carries the call-time inputs of a settings resolution.
type Request struct {
	// Parameters set on the invoking node. Keys without a declared control are ignored.
	Parameters map[string]any
	// Document is the incoming settings document. Empty means none.
	Document []byte
	// IgnoreParameters skips Parameters entirely.
	IgnoreParameters bool
	// SubSettings narrows Document to a nested object, e.g. "stage/filter".
	SubSettings string
	// AbsolutePaths rewrites relative file and folder controls in Document.
	AbsolutePaths bool
	// BaseDir anchors relative paths; the working directory when empty.
	BaseDir string
}

// Resolved is a merged settings document.
type Resolved struct {
	Document map[string]any
	// JSON is the compact encoding with sorted keys.
	JSON []byte
	// Pretty is the indented encoding exposed on settings output ports.
	Pretty string
}

// Defaults returns the default of every control that declares one, overlaid
// with the fixed parameters of the spec.
func Defaults(s *spec.ExecutorSpec) map[string]any {
	out := make(map[string]any, len(s.Controls))
	for _, c := range s.Controls {
		if c.Default != nil {
			out[c.Name] = c.Default
		}
	}
	for k, v := range s.Parameters {
		if s.Control(k) != nil {
			out[k] = v
		}
	}
	return out
}

// Combine returns a new map holding base overridden by overlay.
func Combine(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Resolve merges defaults, parameters and the incoming document for s.
func Resolve(s *spec.ExecutorSpec, req Request) (*Resolved, error) {
	doc, err := ParseDocument(req.Document, req.SubSettings)
	if err != nil {
		return nil, err
	}
	if req.AbsolutePaths && len(doc) > 0 {
		if doc, err = absolutePaths(s, doc, req.BaseDir); err != nil {
			return nil, err
		}
	}

	merged := Defaults(s)
	if !req.IgnoreParameters {
		merged = Combine(merged, declared(s, req.Parameters))
	}
	if len(doc) > 0 {
		var incoming map[string]any
		if err := decode(doc, &incoming); err != nil {
			return nil, invalidDocument("%v", err)
		}
		merged = Combine(merged, incoming)
	}
	return finish(s, merged)
}

// FromMap validates and encodes an already merged document.
func FromMap(s *spec.ExecutorSpec, doc map[string]any) (*Resolved, error) {
	return finish(s, doc)
}

func finish(s *spec.ExecutorSpec, merged map[string]any) (*Resolved, error) {
	compact, err := json.Marshal(merged)
	if err != nil {
		return nil, invalidDocument("encode: %v", err)
	}

	// Re-decode so every value has its JSON shape regardless of source.
	var normalized map[string]any
	if err := decode(compact, &normalized); err != nil {
		return nil, invalidDocument("%v", err)
	}
	if normalized == nil {
		normalized = map[string]any{}
	}

	schema, err := compiledSchema(s)
	if err != nil {
		return nil, daedaluserrors.Contract(daedaluserrors.ErrInvalidSpecification, "executor %q: %v", s.ID, err)
	}
	if err := schema.Validate(normalized); err != nil {
		return nil, invalidDocument("executor %q: %s", s.ID, strings.Join(validationMessages(err), "; "))
	}

	return &Resolved{
		Document: normalized,
		JSON:     compact,
		Pretty:   strings.TrimSpace(gjson.GetBytes(compact, "@pretty").Raw),
	}, nil
}

// ParseDocument checks that raw is a JSON object and, when sub is set,
// narrows it to the object at that slash path. A missing sub-section yields
// an empty document.
func ParseDocument(raw []byte, sub string) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, invalidDocument("malformed JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, invalidDocument("document must be an object, got %s", root.Type)
	}

	path := gjsonPath(sub)
	if path == "" {
		return raw, nil
	}
	section := root.Get(path)
	if !section.Exists() {
		return nil, nil
	}
	if !section.IsObject() {
		return nil, invalidDocument("sub-settings %q is %s, want object", sub, section.Type)
	}
	return []byte(section.Raw), nil
}

// absolutePaths rewrites relative string values of file and folder controls.
func absolutePaths(s *spec.ExecutorSpec, doc []byte, baseDir string) ([]byte, error) {
	for _, c := range s.Controls {
		if !c.IsPath() {
			continue
		}
		key := escapeKey(c.Name)
		value := gjson.GetBytes(doc, key)
		if value.Type != gjson.String || value.Str == "" || filepath.IsAbs(value.Str) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(baseDir, value.Str))
		if err != nil {
			return nil, invalidDocument("control %q: %v", c.Name, err)
		}
		if doc, err = sjson.SetBytes(doc, key, abs); err != nil {
			return nil, invalidDocument("control %q: %v", c.Name, err)
		}
	}
	return doc, nil
}

func declared(s *spec.ExecutorSpec, params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if s.Control(k) != nil {
			out[k] = v
		}
	}
	return out
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func invalidDocument(format string, args ...any) error {
	return daedaluserrors.Configuration(daedaluserrors.ErrInvalidSettingsDocument, format, args...)
}

// String returns doc[key] as text.
func String(doc map[string]any, key string) (string, bool) {
	v, ok := doc[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	default:
		return fmt.Sprint(t), true
	}
}

// Float returns doc[key] as a number.
func Float(doc map[string]any, key string) (float64, bool) {
	switch t := doc[key].(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// Bool returns doc[key] as a boolean.
func Bool(doc map[string]any, key string) (bool, bool) {
	b, ok := doc[key].(bool)
	return b, ok
}
