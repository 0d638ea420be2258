package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func TestRun_InsertAndQuery(t *testing.T) {
	scenario := &Scenario{
		Name:        "insert_and_query",
		Description: "insert then read back",
		Steps: []Step{
			{Op: OpInsert, Address: "contacts", Values: map[string]any{"name": "Ada"}, Expect: &Expect{ID: int64p(1)}},
			{Op: OpQuery, Address: "contacts/1", Expect: &Expect{Names: []string{"Ada"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, EventOp, result.Trace[0].Type)
	assert.Equal(t, int64(1), result.Trace[0].ID)
	assert.Equal(t, TraceEvent{Type: EventPublish, Address: "contacts", Seq: 2}, result.Trace[1])
	assert.Equal(t, []string{"Ada"}, result.Trace[2].Names)
}

func TestRun_SubscriptionFollowsWrites(t *testing.T) {
	scenario := &Scenario{
		Name:          "follow",
		Description:   "collection subscription redelivers",
		Subscriptions: []Subscription{{Name: "all", Address: "contacts", Sort: "name DESC"}},
		Steps: []Step{
			{Op: OpInsert, Address: "contacts", Values: map[string]any{"name": "Ada"}},
			{Op: OpInsert, Address: "contacts", Values: map[string]any{"name": "Bob"}},
		},
		Assertions: []Assertion{
			{Type: AssertDeliveryCount, Subscription: "all", Count: intp(3)},
			{Type: AssertDelivered, Subscription: "all", Names: []string{"Bob", "Ada"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	deliveries := result.Deliveries("all")
	require.Len(t, deliveries, 3)
	assert.Equal(t, []string{}, deliveries[0].Names)
	assert.Equal(t, []string{"Ada"}, deliveries[1].Names)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations",
		Steps: []Step{
			{Op: OpInsert, Address: "contacts", Values: map[string]any{"name": "Ada"}, Expect: &Expect{ID: int64p(7)}},
			{Op: OpDelete, Address: "contacts/1", Expect: &Expect{Rows: int64p(0)}},
			{Op: OpQuery, Address: "contacts", Expect: &Expect{Error: "INVALID_ADDRESS"}},
			{Op: OpQuery, Address: "contacts/x"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected id 7, got 1")
	assert.Contains(t, result.Errors[1], "expected 0 rows, got 1")
	assert.Contains(t, result.Errors[2], "expected error INVALID_ADDRESS")
	assert.Contains(t, result.Errors[3], "unexpected error")
}

func TestRun_InvalidSubscription(t *testing.T) {
	scenario := &Scenario{
		Name:          "bad_sub",
		Description:   "subscription to an invalid address",
		Subscriptions: []Subscription{{Name: "bad", Address: "contacts/"}},
		Steps:         []Step{{Op: OpQuery, Address: "contacts"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "INVALID_ADDRESS", result.Trace[0].Error)
}

func TestRun_AssertionFailures(t *testing.T) {
	scenario := &Scenario{
		Name:          "assertions",
		Description:   "every assertion type failing",
		Subscriptions: []Subscription{{Name: "all", Address: "contacts"}},
		Steps: []Step{
			{Op: OpInsert, Address: "contacts", Values: map[string]any{"name": "Ada"}},
		},
		Assertions: []Assertion{
			{Type: AssertDeliveryCount, Subscription: "all", Count: intp(5)},
			{Type: AssertDelivered, Subscription: "all", Names: []string{"Bob"}},
			{Type: AssertPublishOrder, Addresses: []string{"contacts/1"}},
			{Type: AssertFinalState, Address: "contacts/1", Expect: map[string]any{"name": "Bob"}},
			{Type: AssertFinalState, Address: "contacts/2", Expect: map[string]any{"name": "Ada"}},
			{Type: AssertFinalState, Address: "contacts", Count: intp(2)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "5 deliveries to all")
	assert.Contains(t, result.Errors[1], "latest delivery [Ada]")
	assert.Contains(t, result.Errors[2], "published [contacts]")
	assert.Contains(t, result.Errors[3], `field "name" = Ada`)
	assert.Contains(t, result.Errors[4], "row not found")
	assert.Contains(t, result.Errors[5], "1 rows")
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("Ada", "Ada"))
	assert.True(t, stateValuesEqual(2, int64(2)))
	assert.True(t, stateValuesEqual(int64(2), int64(2)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual("2", int64(2)))
	assert.False(t, stateValuesEqual(nil, "x"))
	assert.False(t, stateValuesEqual(2.5, int64(2)))
}

func TestAssertionError_Format(t *testing.T) {
	rows := int64(1)
	err := &AssertionError{
		Type:     AssertPublishOrder,
		Expected: "published [contacts]",
		Actual:   "published []",
		Trace: []TraceEvent{
			{Type: EventSubscribe, Subscription: "all", Address: "contacts", Seq: 1},
			{Type: EventOp, Op: OpDelete, Address: "contacts/1", Rows: &rows, Seq: 2},
			{Type: EventOp, Op: OpInsert, Address: "contacts", Error: "WRITE_FAILED", Seq: 3},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: publish_order")
	assert.Contains(t, msg, "[1] subscribe all contacts")
	assert.Contains(t, msg, "[2] delete contacts/1 -> rows=1")
	assert.Contains(t, msg, "[3] insert contacts -> WRITE_FAILED")
}
