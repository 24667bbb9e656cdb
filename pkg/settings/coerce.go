package settings

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// FromStrings converts textual parameters (command line, scalar ports) into
// typed values according to the declared controls. Undeclared keys are
// kept as text.
func FromStrings(s *spec.ExecutorSpec, raw map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for key, text := range raw {
		c := s.Control(key)
		if c == nil {
			out[key] = text
			continue
		}
		v, err := coerce(c.ValueType, text)
		if err != nil {
			return nil, invalidDocument("parameter %q: %v", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func coerce(t spec.ValueType, text string) (any, error) {
	switch t {
	case spec.ValueInt:
		return strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	case spec.ValueFloat:
		return strconv.ParseFloat(strings.TrimSpace(text), 64)
	case spec.ValueBool:
		return strconv.ParseBool(strings.TrimSpace(text))
	case spec.ValueSettings:
		var doc map[string]any
		if err := decode([]byte(text), &doc); err != nil {
			return nil, err
		}
		return doc, nil
	default:
		return text, nil
	}
}

// Encode marshals a document for a scalar settings port.
func Encode(doc map[string]any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
