package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/eventpush/internal/ir"
	"github.com/roach88/eventpush/internal/store"
	"github.com/roach88/eventpush/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // printed for context
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			if ev.Type == EventCall {
				fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Seq, ev.Op, ev.Kind, ev.RemoteID)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s %s/%s -> %s\n", ev.Seq, ev.Action, ev.ObjectType, ev.LocalID, ev.Outcome)
			}
		}
	}
	return buf.String()
}

// assertCatalogCalls checks that op was called exactly Count times,
// optionally narrowed to one kind and one remote id.
func assertCatalogCalls(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type != EventCall || ev.Op != a.Op {
			continue
		}
		if a.Kind != "" && ev.Kind != a.Kind {
			continue
		}
		if a.RemoteID != "" && ev.RemoteID != a.RemoteID {
			continue
		}
		count++
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertCatalogCalls,
			Expected: fmt.Sprintf("%d %s call(s)%s", a.Count, a.Op, describeFilter(a)),
			Actual:   fmt.Sprintf("%d call(s)", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, "kind "+a.Kind)
	}
	if a.RemoteID != "" {
		parts = append(parts, "remote id "+a.RemoteID)
	}
	if len(parts) == 0 {
		return ""
	}
	return " with " + strings.Join(parts, " and ")
}

// assertCatalogOrder checks the catalog calls were exactly Ops, in order.
func assertCatalogOrder(trace []TraceEvent, a Assertion) error {
	var ops []string
	for _, ev := range trace {
		if ev.Type == EventCall {
			ops = append(ops, ev.Op)
		}
	}

	if !reflect.DeepEqual(ops, a.Ops) {
		return &AssertionError{
			Type:     AssertCatalogOrder,
			Expected: fmt.Sprintf("calls %v", a.Ops),
			Actual:   fmt.Sprintf("calls %v", ops),
			Trace:    trace,
		}
	}
	return nil
}

// assertMirror checks the mirror record of one object.
func assertMirror(ctx context.Context, st *store.Store, a Assertion) error {
	rec, found, err := st.Lookup(ctx, a.ObjectType, a.LocalID)
	if err != nil {
		return &AssertionError{
			Type:     AssertMirror,
			Expected: fmt.Sprintf("lookup %s/%s", a.ObjectType, a.LocalID),
			Actual:   fmt.Sprintf("lookup error: %v", err),
		}
	}

	subject := a.ObjectType + "/" + a.LocalID
	switch {
	case a.Absent && found:
		return &AssertionError{
			Type:     AssertMirror,
			Expected: fmt.Sprintf("no record for %s", subject),
			Actual:   fmt.Sprintf("record with remote id %q", rec.RemoteID),
		}
	case !a.Absent && !found:
		return &AssertionError{
			Type:     AssertMirror,
			Expected: fmt.Sprintf("record for %s with remote id %q", subject, a.RemoteID),
			Actual:   "no record",
		}
	case !a.Absent && rec.RemoteID != a.RemoteID:
		return &AssertionError{
			Type:     AssertMirror,
			Expected: fmt.Sprintf("record for %s with remote id %q", subject, a.RemoteID),
			Actual:   fmt.Sprintf("remote id %q", rec.RemoteID),
		}
	}
	return nil
}

// assertRemotePayload checks the fake catalog's stored payload contains
// every key of Expect with an equal value. Extra keys are ignored.
func assertRemotePayload(cat *testutil.FakeCatalog, a Assertion) error {
	payload, ok := cat.Resource(a.RemoteID)
	if !ok {
		return &AssertionError{
			Type:     AssertRemotePayload,
			Expected: fmt.Sprintf("remote resource %q", a.RemoteID),
			Actual:   "not found",
		}
	}

	expected, err := ir.FromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("remote_payload expect: %w", err)
	}

	for key, want := range expected.(ir.Object) {
		got, exists := payload[key]
		if !exists {
			return &AssertionError{
				Type:     AssertRemotePayload,
				Expected: fmt.Sprintf("key %q in payload of %s", key, a.RemoteID),
				Actual:   fmt.Sprintf("keys %v", payload.SortedKeys()),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertRemotePayload,
				Expected: fmt.Sprintf("%s = %s", key, canonicalString(want)),
				Actual:   fmt.Sprintf("%s = %s", key, canonicalString(got)),
			}
		}
	}
	return nil
}

// valuesEqual compares two payload values. Integral floats equal ints, as
// YAML and JSON disagree on which one a number like 3 is.
func valuesEqual(actual, expected ir.Value) bool {
	switch a := actual.(type) {
	case ir.Int:
		if f, ok := expected.(ir.Float); ok {
			return float64(a) == float64(f)
		}
	case ir.Float:
		if i, ok := expected.(ir.Int); ok {
			return float64(a) == float64(i)
		}
	}
	return reflect.DeepEqual(actual, expected)
}

func canonicalString(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// AssertionContext provides state access for mirror and payload assertions.
type AssertionContext struct {
	Store   *store.Store
	Catalog *testutil.FakeCatalog
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns a message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCatalogCalls:
			err = assertCatalogCalls(result.Trace, assertion)
		case AssertCatalogOrder:
			err = assertCatalogOrder(result.Trace, assertion)
		case AssertMirror:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: mirror requires a store", i)
			} else {
				err = assertMirror(actx.Ctx, actx.Store, assertion)
			}
		case AssertRemotePayload:
			if actx == nil || actx.Catalog == nil {
				err = fmt.Errorf("assertion[%d]: remote_payload requires a catalog", i)
			} else {
				err = assertRemotePayload(actx.Catalog, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
