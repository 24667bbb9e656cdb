package executors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/data"
)

// setPort writes a Go value to a port of any kind.
//
// Scalars take text, numbers and booleans. Numbers ports take a list of
// numbers, a {"values": [...], "width": n} object, or the JSON text of
// either.
func setPort(p *data.Port, v any) error {
	switch p.Kind() {
	case data.KindScalar:
		sc, err := p.Scalar()
		if err != nil {
			return err
		}
		text, err := toText(v)
		if err != nil {
			return fmt.Errorf("port %q: %w", p.Name, err)
		}
		sc.Set(text)
		return nil
	case data.KindNumbers:
		n, err := p.Numbers()
		if err != nil {
			return err
		}
		values, width, err := toNumbers(v)
		if err != nil {
			return fmt.Errorf("port %q: %w", p.Name, err)
		}
		return n.SetTo(values, width)
	default:
		return fmt.Errorf("port %q: cannot write %T to a %s port", p.Name, v, p.Kind())
	}
}

func toText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case json.Number:
		return t.String(), nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

func toNumbers(v any) ([]float64, int, error) {
	switch t := v.(type) {
	case string:
		var decoded any
		dec := json.NewDecoder(strings.NewReader(t))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, 0, fmt.Errorf("not a JSON number list: %w", err)
		}
		return toNumbers(decoded)
	case []float64:
		return append([]float64(nil), t...), 1, nil
	case []any:
		values := make([]float64, len(t))
		for i, item := range t {
			f, err := toFloat(item)
			if err != nil {
				return nil, 0, fmt.Errorf("element %d: %w", i, err)
			}
			values[i] = f
		}
		return values, 1, nil
	case map[string]any:
		values, _, err := toNumbers(t["values"])
		if err != nil {
			return nil, 0, err
		}
		width := 1
		if w, ok := t["width"]; ok {
			f, err := toFloat(w)
			if err != nil {
				return nil, 0, fmt.Errorf("width: %w", err)
			}
			width = int(f)
		}
		return values, width, nil
	default:
		return nil, 0, fmt.Errorf("cannot convert %T to numbers", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", v)
	}
}

// portValue exports an initialized port as a plain Go value.
func portValue(p *data.Port) (any, error) {
	switch p.Kind() {
	case data.KindScalar:
		sc, err := p.Scalar()
		if err != nil {
			return nil, err
		}
		v, _ := sc.Value()
		return v, nil
	case data.KindNumbers:
		n, err := p.Numbers()
		if err != nil {
			return nil, err
		}
		values := make([]any, len(n.Values()))
		for i, f := range n.Values() {
			values[i] = f
		}
		return map[string]any{"values": values, "width": n.RecordWidth()}, nil
	default:
		m, err := p.Matrix()
		if err != nil {
			return nil, err
		}
		dims := make([]any, 0, len(m.Dimensions()))
		for _, d := range m.Dimensions() {
			dims = append(dims, d)
		}
		return map[string]any{
			"dimensions":   dims,
			"channels":     m.Channels(),
			"element_type": m.ElementType().String(),
		}, nil
	}
}
