package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/yvasilyev92/AddressBook/internal/addressbook"
	"github.com/yvasilyev92/AddressBook/internal/loader"
	"github.com/yvasilyev92/AddressBook/internal/notify"
	"github.com/yvasilyev92/AddressBook/internal/provider"
	"github.com/yvasilyev92/AddressBook/internal/querysql"
	"github.com/yvasilyev92/AddressBook/internal/schema"
	"github.com/yvasilyev92/AddressBook/internal/store"
	"github.com/yvasilyev92/AddressBook/internal/testutil"
)

// QuiesceTimeout bounds the wait for subscriptions to settle after a step.
var QuiesceTimeout = 5 * time.Second

// Harness executes one scenario.
type Harness struct {
	book   *addressbook.Book
	result *Result
	clock  *notify.Clock
	logger *slog.Logger

	mu        sync.Mutex
	published []string // change events raised by the current step

	watches []*watch
}

// watch buffers the deliveries of one subscription between steps.
type watch struct {
	name   string
	loader *loader.Loader

	mu      sync.Mutex
	pending [][]string
}

func (w *watch) deliver(rs *store.ResultSet) {
	names := namesOf(rs)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, names)
}

func (w *watch) drain() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// Run executes a scenario against a fresh in-memory address book.
//
// Step and assertion failures are reported in the Result. An error is
// returned only when the scenario could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	book := addressbook.New(st,
		addressbook.WithLogger(logger),
		addressbook.WithTokenGenerator(testutil.NewSequenceGenerator("sub")),
	)
	defer book.Close()

	h := &Harness{
		book:   book,
		result: NewResult(),
		clock:  notify.NewClock(),
		logger: logger,
	}

	if _, err := book.Notifier().Subscribe(book.Matcher().Collection(), notify.ListenerFunc(h.onPublish)); err != nil {
		return nil, fmt.Errorf("failed to observe change events: %w", err)
	}

	ctx := context.Background()

	if err := h.startSubscriptions(scenario.Subscriptions); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h.result, scenario.Assertions, book) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

func (h *Harness) startSubscriptions(subs []Subscription) error {
	for _, sub := range subs {
		w := &watch{name: sub.Name}
		l, err := h.book.Subscribe(sub.Address, sub.Sort, w.deliver)

		ev := TraceEvent{Type: EventSubscribe, Subscription: sub.Name, Address: sub.Address}
		if err != nil {
			ev.Error = errorCode(err)
			h.result.AddError(fmt.Sprintf("subscription %q: %v", sub.Name, err))
		} else {
			w.loader = l
			h.watches = append(h.watches, w)
		}
		h.record(ev)
	}
	return h.settle()
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step) error {
	p := h.book.Provider()
	ev := TraceEvent{Type: EventOp, Op: step.Op, Address: step.Address}

	var err error
	switch step.Op {
	case OpInsert:
		ev.ID, err = p.Insert(ctx, step.Address, schema.Values(step.Values))
	case OpUpdate:
		var n int64
		n, err = p.Update(ctx, step.Address, schema.Values(step.Values))
		ev.Rows = rowsPtr(n, err)
	case OpDelete:
		var n int64
		n, err = p.Delete(ctx, step.Address)
		ev.Rows = rowsPtr(n, err)
	case OpQuery:
		var rs *store.ResultSet
		rs, err = p.Query(ctx, step.Address, querysql.Options{SortOrder: step.Sort})
		if err == nil {
			ev.Names = namesOf(rs)
		}
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil {
		ev.Error = errorCode(err)
	}

	h.record(ev)
	h.checkExpect(i, step, ev, err)

	h.mu.Lock()
	published := h.published
	h.published = nil
	h.mu.Unlock()
	for _, addr := range published {
		h.record(TraceEvent{Type: EventPublish, Address: addr})
	}

	h.logger.Info("step completed", "step", i, "op", step.Op, "address", step.Address)
	return h.settle()
}

func (h *Harness) checkExpect(i int, step Step, ev TraceEvent, err error) {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d] %s %s: unexpected error: %v", i, step.Op, step.Address, err))
		}
		return
	}

	if exp.Error != "" {
		if ev.Error != exp.Error {
			h.result.AddError(fmt.Sprintf("steps[%d] %s %s: expected error %s, got %q", i, step.Op, step.Address, exp.Error, ev.Error))
		}
		return
	}
	if err != nil {
		h.result.AddError(fmt.Sprintf("steps[%d] %s %s: unexpected error: %v", i, step.Op, step.Address, err))
		return
	}

	if exp.ID != nil && *exp.ID != ev.ID {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected id %d, got %d", i, step.Op, *exp.ID, ev.ID))
	}
	if exp.Rows != nil && (ev.Rows == nil || *exp.Rows != *ev.Rows) {
		h.result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %d rows, got %v", i, step.Op, step.Address, *exp.Rows, derefRows(ev.Rows)))
	}
	if exp.Names != nil && !slices.Equal(exp.Names, ev.Names) {
		h.result.AddError(fmt.Sprintf("steps[%d] %s %s: expected names %v, got %v", i, step.Op, step.Address, exp.Names, ev.Names))
	}
}

// onPublish runs inside Notifier.Publish, on the goroutine of the write.
func (h *Harness) onPublish(ev notify.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, ev.Address)
}

// settle waits until no subscription has a query queued or running, then
// records buffered deliveries in declaration order.
func (h *Harness) settle() error {
	deadline := time.Now().Add(QuiesceTimeout)
	for !h.idle() {
		if time.Now().After(deadline) {
			return fmt.Errorf("subscriptions did not settle within %s", QuiesceTimeout)
		}
		time.Sleep(time.Millisecond)
	}

	for _, w := range h.watches {
		for _, names := range w.drain() {
			h.record(TraceEvent{Type: EventDelivery, Subscription: w.name, Names: names})
		}
	}
	return nil
}

func (h *Harness) idle() bool {
	for _, w := range h.watches {
		if !w.loader.Idle() {
			return false
		}
	}
	return true
}

func (h *Harness) record(ev TraceEvent) {
	ev.Seq = h.clock.Next()
	h.result.Trace = append(h.result.Trace, ev)
}

func namesOf(rs *store.ResultSet) []string {
	names := []string{}
	contacts, err := rs.Contacts()
	if err != nil {
		return names
	}
	for _, c := range contacts {
		names = append(names, c.Name)
	}
	return names
}

func errorCode(err error) string {
	if code := provider.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

func rowsPtr(n int64, err error) *int64 {
	if err != nil {
		return nil
	}
	return &n
}

func derefRows(p *int64) any {
	if p == nil {
		return "none"
	}
	return *p
}
