package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/zugdienste/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Stored   []string // Catalogue for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Stored) > 0 {
		fmt.Fprintf(&buf, "\nStored services:\n")
		for i, rel := range e.Stored {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, rel)
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSummary:
			err = assertSummary(result, assertion)
		case AssertService:
			err = assertService(result, assertion)
		case AssertAbsent:
			err = assertAbsent(result, assertion)
		case AssertServiceCount:
			err = assertServiceCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertSummary(result *Result, a Assertion) error {
	idx := a.Scan - 1
	if a.Scan == 0 {
		idx = len(result.Scans) - 1
	}
	if idx < 0 || idx >= len(result.Scans) {
		return &AssertionError{
			Type:     AssertSummary,
			Expected: fmt.Sprintf("scan %d", a.Scan),
			Actual:   fmt.Sprintf("%d scan(s) ran", len(result.Scans)),
		}
	}

	actual, err := toMap(result.Scans[idx])
	if err != nil {
		return err
	}
	if diff := matchFields(actual, a.Expect); diff != "" {
		return &AssertionError{
			Type:     AssertSummary,
			Expected: fmt.Sprintf("scan %d with %s", idx+1, formatFields(a.Expect)),
			Actual:   diff,
		}
	}
	return nil
}

func assertService(result *Result, a Assertion) error {
	svc, ok := result.Service(origin(a), a.Path)
	if !ok {
		return &AssertionError{
			Type:     AssertService,
			Expected: fmt.Sprintf("service %s:%s", origin(a), a.Path),
			Actual:   "not stored",
			Stored:   stored(result),
		}
	}

	actual, err := toMap(svc)
	if err != nil {
		return err
	}
	if diff := matchFields(actual, a.Expect); diff != "" {
		return &AssertionError{
			Type:     AssertService,
			Expected: fmt.Sprintf("service %s:%s with %s", origin(a), a.Path, formatFields(a.Expect)),
			Actual:   diff,
		}
	}
	return nil
}

func assertAbsent(result *Result, a Assertion) error {
	if _, ok := result.Service(origin(a), a.Path); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no service %s:%s", origin(a), a.Path),
			Actual:   "stored",
			Stored:   stored(result),
		}
	}
	return nil
}

func assertServiceCount(result *Result, a Assertion) error {
	if len(result.Services) != a.Count {
		return &AssertionError{
			Type:     AssertServiceCount,
			Expected: fmt.Sprintf("%d service(s)", a.Count),
			Actual:   fmt.Sprintf("%d service(s)", len(result.Services)),
			Stored:   stored(result),
		}
	}
	return nil
}

func origin(a Assertion) ir.Origin {
	if a.Origin == "" {
		return ir.OriginInstallation
	}
	return ir.Origin(a.Origin)
}

func stored(result *Result) []string {
	out := make([]string, len(result.Services))
	for i, svc := range result.Services {
		out[i] = result.Rel(svc)
	}
	return out
}

// toMap renders v the way it is serialized to JSON.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return m, nil
}

// matchFields checks that actual contains every expected field (subset
// match) and describes the first mismatch, or returns "".
func matchFields(actual, expected map[string]any) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			return fmt.Sprintf("field %s missing", k)
		}
		if !valuesEqual(expected[k], got) {
			return fmt.Sprintf("%s = %v", k, got)
		}
	}
	return ""
}

func formatFields(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// valuesEqual compares a YAML value with a JSON-decoded one.
// JSON numbers decode as float64 while YAML integers decode as int.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if n, ok := actual.(float64); ok {
		switch exp := expected.(type) {
		case int:
			return float64(exp) == n
		case int64:
			return float64(exp) == n
		case float64:
			return exp == n
		}
		return false
	}

	if m, ok := actual.(map[string]any); ok {
		exp, ok := expected.(map[string]any)
		if !ok || len(exp) != len(m) {
			return false
		}
		for k, v := range exp {
			if !valuesEqual(v, m[k]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(expected, actual)
}
