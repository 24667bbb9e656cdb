package executors

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

var stringOperations = map[string]struct{}{
	"upper":         {},
	"lower":         {},
	"title":         {},
	"capitalize":    {},
	"trim":          {},
	"replace":       {},
	"length":        {},
	"concatenate":   {},
	"normalize":     {},
	"base64_encode": {},
	"base64_decode": {},
	"uri_encode":    {},
	"uri_decode":    {},
}

// The strings executor applies its "operation" setting to "input" and
// writes the result to "output". Casing follows the "language" setting.
func newStrings(s *spec.ExecutorSpec, _ *engine.Env) (engine.Processor, error) {
	if c := s.Control("operation"); c != nil && c.Default != nil {
		op := fmt.Sprint(c.Default)
		if _, ok := stringOperations[op]; !ok {
			return nil, fmt.Errorf("unsupported operation '%s'", op)
		}
	}
	return engine.ProcessorFunc(processStrings), nil
}

func processStrings(_ context.Context, in *engine.Invocation) error {
	input, _ := in.Scalar("input")
	op := in.ParamOr("operation", "")
	result, err := applyStringOperation(op, input, in)
	if err != nil {
		return fmt.Errorf("strings %s: %w", op, err)
	}
	return in.SetScalar("output", result)
}

func applyStringOperation(op, s string, in *engine.Invocation) (string, error) {
	tag := language.Und
	if lang, ok := in.Param("language"); ok && lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return "", fmt.Errorf("language %q: %w", lang, err)
		}
		tag = parsed
	}

	switch op {
	case "upper":
		return cases.Upper(tag).String(s), nil
	case "lower":
		return cases.Lower(tag).String(s), nil
	case "title":
		return cases.Title(tag).String(s), nil
	case "capitalize":
		if s == "" {
			return s, nil
		}
		r := []rune(s)
		return cases.Upper(tag).String(string(r[0])) + string(r[1:]), nil
	case "trim":
		if cutset := in.ParamOr("cutset", ""); cutset != "" {
			return strings.Trim(s, cutset), nil
		}
		return strings.TrimSpace(s), nil
	case "replace":
		count := -1
		if v, ok := in.Param("count"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return "", fmt.Errorf("count: %w", err)
			}
			count = n
		}
		return strings.Replace(s, in.ParamOr("old", ""), in.ParamOr("new", ""), count), nil
	case "length":
		return strconv.Itoa(len([]rune(s))), nil
	case "concatenate":
		other, _ := in.Scalar("input2")
		return s + in.ParamOr("separator", "") + other, nil
	case "normalize":
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		out, _, err := transform.String(t, s)
		return out, err
	case "base64_encode":
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	case "base64_decode":
		raw, err := base64.StdEncoding.DecodeString(s)
		return string(raw), err
	case "uri_encode":
		return url.QueryEscape(s), nil
	case "uri_decode":
		return url.QueryUnescape(s)
	default:
		return "", fmt.Errorf("unsupported operation '%s'", op)
	}
}
