package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// ComparisonOperator defines the comparison a condition performs.
type ComparisonOperator string

const (
	OpEquals             ComparisonOperator = "equals"
	OpNotEquals          ComparisonOperator = "not_equals"
	OpGreaterThan        ComparisonOperator = "greater_than"
	OpLessThan           ComparisonOperator = "less_than"
	OpGreaterThanOrEqual ComparisonOperator = "greater_than_or_equal"
	OpLessThanOrEqual    ComparisonOperator = "less_than_or_equal"
	OpContains           ComparisonOperator = "contains"
	OpNotContains        ComparisonOperator = "not_contains"
	OpStartsWith         ComparisonOperator = "starts_with"
	OpEndsWith           ComparisonOperator = "ends_with"
	OpRegex              ComparisonOperator = "regex"
	OpIn                 ComparisonOperator = "in"
	OpNotIn              ComparisonOperator = "not_in"
	OpIsEmpty            ComparisonOperator = "is_empty"
	OpIsNotEmpty         ComparisonOperator = "is_not_empty"
)

// ComparisonError reports an impossible comparison.
type ComparisonError struct {
	Operator string
	Message  string
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("comparison %s: %s", e.Operator, e.Message)
}

// condition compares its "input" with the "value" setting and writes
// "true" or "false" to "result", and the negation to "not" when declared.
// The optional "field" setting is a JSON path into the input.
type condition struct {
	patterns sync.Map
}

func newCondition(*spec.ExecutorSpec, *engine.Env) (engine.Processor, error) {
	return &condition{}, nil
}

func (c *condition) Shareable() bool { return true }

func (c *condition) Process(_ context.Context, in *engine.Invocation) error {
	actual, _ := in.Scalar("input")
	if field, ok := in.Param("field"); ok && field != "" {
		actual = gjson.Get(actual, field).String()
	}
	expected := in.ParamOr("value", "")
	operator := ComparisonOperator(in.ParamOr("operator", string(OpEquals)))
	caseInsensitive := in.ParamOr("case_insensitive", "false") == "true"

	result, err := c.compare(actual, expected, operator, caseInsensitive)
	if err != nil {
		return err
	}
	if err := in.SetScalar("result", strconv.FormatBool(result)); err != nil {
		return err
	}
	if in.Outputs.Get("not") != nil {
		return in.SetScalar("not", strconv.FormatBool(!result))
	}
	return nil
}

func (c *condition) compare(actual, expected string, operator ComparisonOperator, caseInsensitive bool) (bool, error) {
	if caseInsensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}
	switch operator {
	case OpEquals:
		return valuesEqual(actual, expected), nil
	case OpNotEquals:
		return !valuesEqual(actual, expected), nil
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		return compareNumbers(actual, expected, operator)
	case OpContains:
		return strings.Contains(actual, expected), nil
	case OpNotContains:
		return !strings.Contains(actual, expected), nil
	case OpStartsWith:
		return strings.HasPrefix(actual, expected), nil
	case OpEndsWith:
		return strings.HasSuffix(actual, expected), nil
	case OpRegex:
		re, err := c.pattern(expected)
		if err != nil {
			return false, err
		}
		return re.MatchString(actual), nil
	case OpIn:
		return inList(actual, expected), nil
	case OpNotIn:
		return !inList(actual, expected), nil
	case OpIsEmpty:
		return isEmptyText(actual), nil
	case OpIsNotEmpty:
		return !isEmptyText(actual), nil
	default:
		return false, &ComparisonError{Operator: string(operator), Message: "unsupported operator"}
	}
}

func (c *condition) pattern(expr string) (*regexp.Regexp, error) {
	if re, ok := c.patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &ComparisonError{
			Operator: string(OpRegex),
			Message:  fmt.Sprintf("invalid regex pattern '%s': %v", expr, err),
		}
	}
	c.patterns.Store(expr, re)
	return re, nil
}

// valuesEqual compares numerically when both sides are numbers.
func valuesEqual(a, b string) bool {
	x, errX := strconv.ParseFloat(strings.TrimSpace(a), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errX == nil && errY == nil {
		return x == y
	}
	return a == b
}

func compareNumbers(a, b string, operator ComparisonOperator) (bool, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return false, &ComparisonError{
			Operator: string(operator),
			Message:  fmt.Sprintf("actual value conversion failed: %v", err),
		}
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return false, &ComparisonError{
			Operator: string(operator),
			Message:  fmt.Sprintf("expected value conversion failed: %v", err),
		}
	}
	switch operator {
	case OpGreaterThan:
		return x > y, nil
	case OpLessThan:
		return x < y, nil
	case OpGreaterThanOrEqual:
		return x >= y, nil
	default:
		return x <= y, nil
	}
}

// inList accepts a JSON array or a comma separated list.
func inList(actual, list string) bool {
	var items []any
	if err := json.Unmarshal([]byte(list), &items); err != nil {
		items = items[:0]
		for _, item := range strings.Split(list, ",") {
			items = append(items, strings.TrimSpace(item))
		}
	}
	for _, item := range items {
		text, err := toText(item)
		if err == nil && valuesEqual(actual, text) {
			return true
		}
	}
	return false
}

func isEmptyText(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "[]", "{}", "null", "false", "0":
		return true
	}
	return false
}
