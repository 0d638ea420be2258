// Package addressbook is the entry point for presentation code: it opens the
// contacts store and wires the address matcher, change notifier, CRUD
// provider and live subscriptions together.
package addressbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yvasilyev92/AddressBook/internal/address"
	"github.com/yvasilyev92/AddressBook/internal/loader"
	"github.com/yvasilyev92/AddressBook/internal/notify"
	"github.com/yvasilyev92/AddressBook/internal/provider"
	"github.com/yvasilyev92/AddressBook/internal/querysql"
	"github.com/yvasilyev92/AddressBook/internal/schema"
	"github.com/yvasilyev92/AddressBook/internal/store"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("address book closed")

// Book is an open address book.
//
// Thread-safety: all methods are safe for concurrent use.
type Book struct {
	store    *store.Store
	matcher  *address.Matcher
	notifier *notify.Notifier
	provider *provider.Provider
	logger   *slog.Logger
	tokens   notify.TokenGenerator

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	loaders map[*loader.Loader]struct{}
	closed  bool
}

// Option configures a Book.
type Option func(*Book)

// WithLogger sets the logger shared by every component. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Book) {
		b.logger = l
	}
}

// WithTokenGenerator overrides the notifier's subscription token generator.
func WithTokenGenerator(g notify.TokenGenerator) Option {
	return func(b *Book) {
		b.tokens = g
	}
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts ...Option) (*Book, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open address book: %w", err)
	}
	return New(s, opts...), nil
}

// New builds a Book over an open store. Close closes the store.
func New(s *store.Store, opts ...Option) *Book {
	b := &Book{
		store:   s,
		matcher: address.NewMatcher(schema.TableName),
		logger:  slog.Default(),
		loaders: make(map[*loader.Loader]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	nopts := []notify.Option{notify.WithLogger(b.logger)}
	if b.tokens != nil {
		nopts = append(nopts, notify.WithTokenGenerator(b.tokens))
	}
	b.notifier = notify.New(b.matcher, nopts...)
	b.provider = provider.New(s, b.matcher, b.notifier, provider.WithLogger(b.logger))
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// Matcher returns the address matcher.
func (b *Book) Matcher() *address.Matcher { return b.matcher }

// Provider returns the CRUD provider.
func (b *Book) Provider() *provider.Provider { return b.provider }

// Notifier returns the change notifier.
func (b *Book) Notifier() *notify.Notifier { return b.notifier }

// Subscribe starts a live query on addr, ordered by sortOrder (empty for the
// store's natural order). onResult is called on a background goroutine with
// the initial result and again after every write that affects addr.
func (b *Book) Subscribe(addr, sortOrder string, onResult loader.Callback, opts ...loader.Option) (*loader.Loader, error) {
	if _, err := b.matcher.Match(addr); err != nil {
		return nil, &provider.Error{Code: provider.ErrCodeInvalidAddress, Op: "subscribe", Address: addr, Err: err}
	}
	if _, err := querysql.NormalizeSortOrder(sortOrder); err != nil {
		return nil, &provider.Error{Code: provider.ErrCodeInvalidArgument, Op: "subscribe", Address: addr, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	opts = append([]loader.Option{loader.WithLogger(b.logger)}, opts...)
	l := loader.New(b.provider, b.notifier, addr, querysql.Options{SortOrder: sortOrder}, onResult, opts...)
	if err := l.Start(b.ctx); err != nil {
		return nil, err
	}
	b.loaders[l] = struct{}{}
	return l, nil
}

// Unsubscribe tears l down. Safe to call more than once, and from l's own
// callback.
func (b *Book) Unsubscribe(l *loader.Loader) {
	if l == nil {
		return
	}
	b.mu.Lock()
	delete(b.loaders, l)
	b.mu.Unlock()
	l.Teardown()
}

// Subscriptions returns the number of live subscriptions.
func (b *Book) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loaders)
}

// Insert adds a contact and returns its id.
func (b *Book) Insert(ctx context.Context, values schema.Values) (int64, error) {
	return b.provider.Insert(ctx, b.matcher.Collection(), values)
}

// Update changes the contact with the given id. Returns 0 if there is none.
func (b *Book) Update(ctx context.Context, id int64, values schema.Values) (int64, error) {
	return b.provider.Update(ctx, b.matcher.Item(id), values)
}

// Delete removes the contact with the given id. Returns 0 if there is none.
func (b *Book) Delete(ctx context.Context, id int64) (int64, error) {
	return b.provider.Delete(ctx, b.matcher.Item(id))
}

// Get returns the contact with the given id. The bool is false if there is
// no such contact.
func (b *Book) Get(ctx context.Context, id int64) (schema.Contact, bool, error) {
	rs, err := b.provider.Query(ctx, b.matcher.Item(id), querysql.Options{})
	if err != nil {
		return schema.Contact{}, false, err
	}
	contacts, err := rs.Contacts()
	if err != nil {
		return schema.Contact{}, false, err
	}
	if len(contacts) == 0 {
		return schema.Contact{}, false, nil
	}
	return contacts[0], true, nil
}

// List returns every contact ordered by sortOrder, or by
// schema.DefaultSortOrder when sortOrder is empty.
func (b *Book) List(ctx context.Context, sortOrder string) ([]schema.Contact, error) {
	if sortOrder == "" {
		sortOrder = schema.DefaultSortOrder
	}
	rs, err := b.provider.Query(ctx, b.matcher.Collection(), querysql.Options{SortOrder: sortOrder})
	if err != nil {
		return nil, err
	}
	return rs.Contacts()
}

// Close tears down every live subscription, closes the notifier and then
// the store. Subsequent calls return nil. Close waits for subscription
// workers to exit, so it must not be called from a subscription callback.
func (b *Book) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	live := make([]*loader.Loader, 0, len(b.loaders))
	for l := range b.loaders {
		live = append(live, l)
	}
	b.loaders = nil
	b.mu.Unlock()

	for _, l := range live {
		l.Teardown()
	}
	b.cancel()
	for _, l := range live {
		<-l.Done()
	}
	b.notifier.Close()

	b.logger.Debug("address book closed", "subscriptions", len(live))
	return b.store.Close()
}
