package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/yvasilyev92/AddressBook/internal/addressbook"
	"github.com/yvasilyev92/AddressBook/internal/querysql"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // full trace for context; may be nil
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describeEvent(ev))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, book *addressbook.Book) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDeliveryCount:
			err = assertDeliveryCount(result, a)
		case AssertDelivered:
			err = assertDelivered(result, a)
		case AssertPublishOrder:
			err = assertPublishOrder(result, a)
		case AssertFinalState:
			err = assertFinalState(ctx, book, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func assertDeliveryCount(result *Result, a Assertion) error {
	got := len(result.Deliveries(a.Subscription))
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertDeliveryCount,
			Expected: fmt.Sprintf("%d deliveries to %s", *a.Count, a.Subscription),
			Actual:   fmt.Sprintf("%d deliveries", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertDelivered(result *Result, a Assertion) error {
	deliveries := result.Deliveries(a.Subscription)
	if len(deliveries) == 0 {
		return &AssertionError{
			Type:     AssertDelivered,
			Expected: fmt.Sprintf("%s delivered %v", a.Subscription, a.Names),
			Actual:   "no deliveries",
			Trace:    result.Trace,
		}
	}

	latest := deliveries[len(deliveries)-1].Names
	if !slices.Equal(latest, a.Names) {
		return &AssertionError{
			Type:     AssertDelivered,
			Expected: fmt.Sprintf("%s delivered %v", a.Subscription, a.Names),
			Actual:   fmt.Sprintf("latest delivery %v", latest),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertPublishOrder(result *Result, a Assertion) error {
	got := result.Published()
	if !slices.Equal(got, a.Addresses) {
		return &AssertionError{
			Type:     AssertPublishOrder,
			Expected: fmt.Sprintf("published %v", a.Addresses),
			Actual:   fmt.Sprintf("published %v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState queries a.Address through the provider, so the address
// is scoped exactly as a caller's would be.
func assertFinalState(ctx context.Context, book *addressbook.Book, a Assertion) error {
	rs, err := book.Provider().Query(ctx, a.Address, querysql.Options{SortOrder: "_id"})
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s", a.Address),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if a.Count != nil && rs.Len() != *a.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows at %s", *a.Count, a.Address),
			Actual:   fmt.Sprintf("%d rows", rs.Len()),
		}
	}
	if len(a.Expect) == 0 {
		return nil
	}
	if rs.Len() == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row at %s", a.Address),
			Actual:   "row not found",
		}
	}

	row := rs.Map(0)
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected := a.Expect[key]
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, rs.Columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// stateValuesEqual compares a YAML-decoded expectation with a stored value.
// SQLite returns int64 for the primary key; YAML decodes integers as int.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	case int:
		act, ok := actual.(int64)
		return ok && int64(exp) == act
	case int64:
		act, ok := actual.(int64)
		return ok && exp == act
	default:
		return false
	}
}

func describeEvent(ev TraceEvent) string {
	switch ev.Type {
	case EventSubscribe:
		return fmt.Sprintf("subscribe %s %s", ev.Subscription, ev.Address)
	case EventOp:
		var out string
		switch {
		case ev.Error != "":
			out = ev.Error
		case ev.Op == OpInsert:
			out = fmt.Sprintf("id=%d", ev.ID)
		case ev.Rows != nil:
			out = fmt.Sprintf("rows=%d", *ev.Rows)
		default:
			out = fmt.Sprintf("%v", ev.Names)
		}
		return fmt.Sprintf("%s %s -> %s", ev.Op, ev.Address, out)
	case EventPublish:
		return fmt.Sprintf("publish %s", ev.Address)
	case EventDelivery:
		return fmt.Sprintf("deliver %s %v", ev.Subscription, ev.Names)
	default:
		return ev.Type
	}
}
