package harness

// Trace event types.
const (
	EventSubscribe = "subscribe"
	EventOp        = "op"
	EventPublish   = "publish"
	EventDelivery  = "delivery"
)

// TraceEvent is one entry of a scenario trace. Which fields are set depends
// on Type.
type TraceEvent struct {
	Type         string   `json:"type"`
	Seq          int64    `json:"seq"`
	Op           string   `json:"op,omitempty"`
	Address      string   `json:"address,omitempty"`
	Subscription string   `json:"subscription,omitempty"`
	ID           int64    `json:"id,omitempty"`
	Rows         *int64   `json:"rows,omitempty"`
	Names        []string `json:"names,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists operations, change events and deliveries in order.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Deliveries returns the delivery events for subscription name, in order.
func (r *Result) Deliveries(name string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventDelivery && ev.Subscription == name {
			out = append(out, ev)
		}
	}
	return out
}

// Published returns the addresses of every change event, in order.
func (r *Result) Published() []string {
	out := []string{}
	for _, ev := range r.Trace {
		if ev.Type == EventPublish {
			out = append(out, ev.Address)
		}
	}
	return out
}
