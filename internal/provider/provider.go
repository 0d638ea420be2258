// Package provider is the CRUD executor for the contacts table.
//
// Every operation takes a resource address, dispatches on its kind, scopes
// the statement with internal/querysql and runs it on the storage engine.
// Successful writes that changed something are published to the change
// notifier; failed writes and zero-row outcomes publish nothing.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yvasilyev92/AddressBook/internal/address"
	"github.com/yvasilyev92/AddressBook/internal/notify"
	"github.com/yvasilyev92/AddressBook/internal/querysql"
	"github.com/yvasilyev92/AddressBook/internal/schema"
	"github.com/yvasilyev92/AddressBook/internal/store"
)

// Engine is the storage engine the provider executes against.
// Implemented by *store.Store.
type Engine interface {
	ExecuteQuery(ctx context.Context, table string, projection []string, selection string, args []any, sortOrder string) (*store.ResultSet, error)
	ExecuteInsert(ctx context.Context, table string, values schema.Values) (int64, error)
	ExecuteUpdate(ctx context.Context, table string, values schema.Values, selection string, args []any) (int64, error)
	ExecuteDelete(ctx context.Context, table string, selection string, args []any) (int64, error)
}

// Publisher receives the address of every effective write.
// Implemented by *notify.Notifier.
type Publisher interface {
	Publish(addr string) (notify.ChangeEvent, int, error)
}

// Provider executes queries and writes against one table.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized, and each write's change event is published before the next
// write starts, so watchers see events in write order.
type Provider struct {
	engine    Engine
	matcher   *address.Matcher
	publisher Publisher
	logger    *slog.Logger

	writeMu sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New creates a Provider.
func New(engine Engine, matcher *address.Matcher, publisher Publisher, opts ...Option) *Provider {
	p := &Provider{
		engine:    engine,
		matcher:   matcher,
		publisher: publisher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Matcher returns the address matcher the provider dispatches with.
func (p *Provider) Matcher() *address.Matcher {
	return p.matcher
}

// Query runs a query scoped to addr.
func (p *Provider) Query(ctx context.Context, addr string, opts querysql.Options) (*store.ResultSet, error) {
	m, err := p.matcher.Match(addr)
	if err != nil {
		return nil, newError(ErrCodeInvalidAddress, "query", addr, err)
	}

	q, err := querysql.Build(m, opts)
	if err != nil {
		return nil, newError(ErrCodeInvalidArgument, "query", addr, err)
	}

	rs, err := p.engine.ExecuteQuery(ctx, q.Table, q.Projection, q.Selection, q.SelectionArgs, q.SortOrder)
	if err != nil {
		return nil, newError(ErrCodeQueryFailed, "query", addr, err)
	}
	return rs, nil
}

// Insert adds a row through the collection address and returns the primary
// key the store assigned, always > 0.
func (p *Provider) Insert(ctx context.Context, addr string, values schema.Values) (int64, error) {
	m, err := p.matcher.Match(addr)
	if err != nil {
		return 0, newError(ErrCodeInvalidAddress, "insert", addr, err)
	}
	if !m.IsCollection() {
		return 0, &Error{Code: ErrCodeInvalidAddress, Op: "insert", Address: addr, Message: "insert requires the collection address"}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	id, err := p.engine.ExecuteInsert(ctx, m.Table, values)
	if err != nil {
		p.logger.Warn("insert failed", "address", addr, "error", err)
		return 0, newError(ErrCodeWriteFailed, "insert", addr, err)
	}
	if id <= 0 {
		return 0, &Error{Code: ErrCodeWriteFailed, Op: "insert", Address: addr, Message: fmt.Sprintf("store returned id %d", id)}
	}

	p.logger.Debug("inserted", "address", addr, "id", id)
	p.publish(m.String())
	return id, nil
}

// Update writes values to the single row addressed by an item address and
// returns the number of rows changed: 1, or 0 if no such row exists.
func (p *Provider) Update(ctx context.Context, addr string, values schema.Values) (int64, error) {
	m, selection, args, err := p.itemScope("update", addr)
	if err != nil {
		return 0, err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	n, err := p.engine.ExecuteUpdate(ctx, m.Table, values, selection, args)
	if err != nil {
		p.logger.Warn("update failed", "address", addr, "error", err)
		return 0, newError(ErrCodeWriteFailed, "update", addr, err)
	}

	p.logger.Debug("updated", "address", addr, "rows", n)
	if n > 0 {
		p.publish(m.String())
	}
	return n, nil
}

// Delete removes the single row addressed by an item address and returns
// the number of rows removed: 1, or 0 if no such row exists.
func (p *Provider) Delete(ctx context.Context, addr string) (int64, error) {
	m, selection, args, err := p.itemScope("delete", addr)
	if err != nil {
		return 0, err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	n, err := p.engine.ExecuteDelete(ctx, m.Table, selection, args)
	if err != nil {
		p.logger.Warn("delete failed", "address", addr, "error", err)
		return 0, newError(ErrCodeWriteFailed, "delete", addr, err)
	}

	p.logger.Debug("deleted", "address", addr, "rows", n)
	if n > 0 {
		p.publish(m.String())
	}
	return n, nil
}

// itemScope matches addr, requires an item address and returns the
// primary key selection for it.
func (p *Provider) itemScope(op, addr string) (address.Match, string, []any, error) {
	m, err := p.matcher.Match(addr)
	if err != nil {
		return address.Match{}, "", nil, newError(ErrCodeInvalidAddress, op, addr, err)
	}
	if !m.IsItem() {
		return address.Match{}, "", nil, &Error{Code: ErrCodeInvalidAddress, Op: op, Address: addr, Message: op + " requires an item address"}
	}

	selection, args, err := querysql.ScopeSelection(m, "", nil)
	if err != nil {
		return address.Match{}, "", nil, newError(ErrCodeInvalidAddress, op, addr, err)
	}
	return m, selection, args, nil
}

// publish must be called with writeMu held.
func (p *Provider) publish(addr string) {
	if p.publisher == nil {
		return
	}
	if _, _, err := p.publisher.Publish(addr); err != nil {
		p.logger.Warn("publish failed", "address", addr, "error", err)
	}
}
