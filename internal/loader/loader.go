package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/yvasilyev92/AddressBook/internal/notify"
	"github.com/yvasilyev92/AddressBook/internal/querysql"
	"github.com/yvasilyev92/AddressBook/internal/store"
)

// State is a loader lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateDelivered
	StateFailed
	StateTornDown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAlreadyStarted is returned by Start on a loader that has left Idle.
	ErrAlreadyStarted = errors.New("loader already started")

	// ErrTornDown is returned by Start after Teardown.
	ErrTornDown = errors.New("loader torn down")
)

// Querier runs a query for an address. Implemented by *provider.Provider.
type Querier interface {
	Query(ctx context.Context, addr string, opts querysql.Options) (*store.ResultSet, error)
}

// Registry is the change notifier a loader registers with.
// Implemented by *notify.Notifier.
type Registry interface {
	Subscribe(addr string, l notify.Listener) (string, error)
	Unsubscribe(token string) bool
}

// Callback receives each delivered result. It runs on the loader's worker
// goroutine and may call Teardown on its own loader.
type Callback func(*store.ResultSet)

// Loader is a live query subscription bound to one address.
//
// Thread-safety: all methods are safe for concurrent use. OnChange is called
// by the notifier while it holds its registry lock and only enqueues.
type Loader struct {
	querier  Querier
	registry Registry
	address  string
	opts     querysql.Options
	callback Callback
	logger   *slog.Logger
	onError  func(error)

	queue *requestQueue
	done  chan struct{}

	mu         sync.Mutex
	state      State
	token      string
	cancel     context.CancelFunc
	result     *store.ResultSet
	lastErr    error
	lastSeq    int64
	deliveries int

	// deliverMu is held by the worker from the torn check through the end of
	// the callback. Teardown acquires it to wait out a delivery in progress.
	deliverMu  sync.Mutex
	torn       atomic.Bool
	inCallback atomic.Bool
	pending    atomic.Int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// WithErrorHandler sets a function called on the worker goroutine when a
// query fails. Failures are always logged.
func WithErrorHandler(fn func(error)) Option {
	return func(ld *Loader) {
		ld.onError = fn
	}
}

// New creates a Loader in StateIdle. Nothing runs until Start.
func New(q Querier, reg Registry, addr string, opts querysql.Options, cb Callback, options ...Option) *Loader {
	l := &Loader{
		querier:  q,
		registry: reg,
		address:  addr,
		opts:     opts,
		callback: cb,
		logger:   slog.Default(),
		queue:    newRequestQueue(),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Start registers with the notifier and schedules the initial query.
// It returns without waiting for the query.
//
// The loader subscribes before the initial query is queued, so a write
// committed between the two is never missed. The worker stops when ctx is
// cancelled or on Teardown.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateIdle:
	case StateTornDown:
		return ErrTornDown
	default:
		return ErrAlreadyStarted
	}

	token, err := l.registry.Subscribe(l.address, l)
	if err != nil {
		return fmt.Errorf("start loader for %q: %w", l.address, err)
	}

	wctx, cancel := context.WithCancel(ctx)
	l.token = token
	l.cancel = cancel
	l.state = StateLoading
	l.enqueue(request{Address: l.address})

	go l.run(wctx)

	l.logger.Debug("loader started", "address", l.address, "token", token)
	return nil
}

// OnChange implements notify.Listener. Each event queues exactly one query.
func (l *Loader) OnChange(ev notify.ChangeEvent) {
	if l.torn.Load() {
		return
	}
	l.enqueue(request{Seq: ev.Seq, Address: ev.Address})
}

func (l *Loader) enqueue(r request) {
	l.pending.Add(1)
	if !l.queue.Enqueue(r) {
		l.pending.Add(-1)
	}
}

// Teardown unregisters the loader and stops its worker. It is valid in any
// state and idempotent.
//
// When Teardown returns, no callback will start and the result of any query
// still in flight will be dropped. If a callback is running at the time of
// the call, Teardown does not wait for it, so a callback may tear down its
// own loader.
func (l *Loader) Teardown() {
	if !l.torn.CompareAndSwap(false, true) {
		return
	}

	l.mu.Lock()
	prev := l.state
	l.state = StateTornDown
	token := l.token
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dropped := l.queue.Close(); dropped > 0 {
		l.pending.Add(-int64(dropped))
	}
	// Registry lock must not be taken while holding l.mu: Publish holds it
	// while calling OnChange.
	if token != "" {
		l.registry.Unsubscribe(token)
	}

	// Wait out a worker that passed the torn check before we set it.
	if !l.inCallback.Load() {
		l.deliverMu.Lock()
		l.deliverMu.Unlock()
	}

	if prev == StateIdle {
		close(l.done)
	}
	l.logger.Debug("loader torn down", "address", l.address, "from", prev.String())
}

// run is the worker loop. Requests are processed one at a time in FIFO
// order, so at most one query per loader is outstanding.
func (l *Loader) run(ctx context.Context) {
	defer close(l.done)

	for {
		if r, ok := l.queue.TryDequeue(); ok {
			l.load(ctx, r)
			l.pending.Add(-1)
			continue
		}

		select {
		case <-ctx.Done():
			if n := l.queue.Close(); n > 0 {
				l.pending.Add(-int64(n))
			}
			return
		case <-l.queue.Wait():
			if l.queue.Closed() {
				return
			}
		}
	}
}

func (l *Loader) load(ctx context.Context, r request) {
	if !l.setState(StateLoading) {
		return
	}

	rs, err := l.querier.Query(ctx, l.address, l.opts)

	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	if l.torn.Load() {
		l.logger.Debug("dropping result after teardown", "address", l.address, "seq", r.Seq)
		return
	}

	if err != nil {
		l.mu.Lock()
		l.state = StateFailed
		l.lastErr = err
		l.mu.Unlock()

		l.logger.Warn("loader query failed", "address", l.address, "seq", r.Seq, "error", err)
		if l.onError != nil {
			l.onError(err)
		}
		return
	}

	l.mu.Lock()
	l.state = StateDelivered
	l.result = rs
	l.lastErr = nil
	l.lastSeq = r.Seq
	l.deliveries++
	l.mu.Unlock()

	l.logger.Debug("delivering result", "address", l.address, "seq", r.Seq, "rows", rs.Len())

	if l.callback != nil {
		l.inCallback.Store(true)
		l.callback(rs)
		l.inCallback.Store(false)
	}
}

// setState moves to s unless the loader was torn down.
func (l *Loader) setState(s State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateTornDown {
		return false
	}
	l.state = s
	return true
}

// Address returns the address the loader is bound to.
func (l *Loader) Address() string {
	return l.address
}

// Token returns the notifier subscription token, or "" before Start.
func (l *Loader) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Result returns the most recently delivered result, or nil.
func (l *Loader) Result() *store.ResultSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Err returns the error of the most recent query if it failed.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Deliveries returns how many results have been delivered.
func (l *Loader) Deliveries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deliveries
}

// LastSeq returns the change sequence number behind the current result;
// 0 for the initial load.
func (l *Loader) LastSeq() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Idle reports whether no query is queued or running.
func (l *Loader) Idle() bool {
	return l.pending.Load() == 0
}

// Done is closed once the worker has exited.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}
