package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yvasilyev92/AddressBook/internal/address"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("notifier closed")

// ChangeEvent is emitted after a successful write.
type ChangeEvent struct {
	// Address is the mutated address as published: the collection address
	// for inserts, the item address for updates and deletes.
	Address string

	// Match is Address parsed.
	Match address.Match

	// Seq orders events; strictly increasing across one Notifier.
	Seq int64
}

// Listener receives change events for a subscription.
type Listener interface {
	OnChange(ChangeEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ChangeEvent)

// OnChange calls f(ev).
func (f ListenerFunc) OnChange(ev ChangeEvent) { f(ev) }

type subscription struct {
	token    string
	match    address.Match
	listener Listener
}

// Notifier is the change registry.
type Notifier struct {
	matcher *address.Matcher
	clock   *Clock
	tokens  TokenGenerator
	logger  *slog.Logger

	mu     sync.Mutex
	subs   []*subscription // registration order
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithTokenGenerator overrides the default UUIDv7 token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(n *Notifier) {
		n.tokens = g
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(c *Clock) Option {
	return func(n *Notifier) {
		n.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// New creates a Notifier for addresses recognized by m.
func New(m *address.Matcher, opts ...Option) *Notifier {
	n := &Notifier{
		matcher: m,
		clock:   NewClock(),
		tokens:  UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers l for changes affecting addr and returns a token for
// Unsubscribe. An address that fails the grammar is rejected.
func (n *Notifier) Subscribe(addr string, l Listener) (string, error) {
	if l == nil {
		return "", errors.New("subscribe: nil listener")
	}
	m, err := n.matcher.Match(addr)
	if err != nil {
		return "", fmt.Errorf("subscribe: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return "", fmt.Errorf("subscribe: %w", ErrClosed)
	}

	token := n.tokens.Generate()
	n.subs = append(n.subs, &subscription{token: token, match: m, listener: l})
	n.logger.Debug("subscribed", "token", token, "address", addr)
	return token, nil
}

// Unsubscribe removes the subscription with the given token.
// Returns false if no such subscription is registered. Once Unsubscribe
// returns, the listener is never called again.
func (n *Notifier) Unsubscribe(token string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.subs {
		if s.token == token {
			// Nil out the slot so the listener can be collected
			n.subs[i] = nil
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			n.logger.Debug("unsubscribed", "token", token)
			return true
		}
	}
	return false
}

// Publish notifies every subscription affected by a write to addr and
// returns the event together with the number of listeners notified.
func (n *Notifier) Publish(addr string) (ChangeEvent, int, error) {
	m, err := n.matcher.Match(addr)
	if err != nil {
		return ChangeEvent{}, 0, fmt.Errorf("publish: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ev := ChangeEvent{Address: addr, Match: m, Seq: n.clock.Next()}

	notified := 0
	for _, s := range n.subs {
		if !affects(m, s.match) {
			continue
		}
		s.listener.OnChange(ev)
		notified++
	}

	n.logger.Debug("published change", "address", addr, "seq", ev.Seq, "notified", notified)
	return ev, notified, nil
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close drops every subscription and rejects new ones.
// Publish keeps working and reaches nobody.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	clear(n.subs)
	n.subs = nil
	n.closed = true
}

// affects reports whether a write published at pub invalidates a
// subscription bound to sub.
func affects(pub, sub address.Match) bool {
	if pub.Table != sub.Table {
		return false
	}
	switch sub.Kind {
	case address.KindCollection:
		return true
	case address.KindItem:
		return pub.Kind == address.KindItem && pub.ID == sub.ID
	default:
		return false
	}
}
