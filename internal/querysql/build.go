package querysql

import (
	"fmt"
	"strings"

	"github.com/yvasilyev92/AddressBook/internal/address"
	"github.com/yvasilyev92/AddressBook/internal/schema"
)

// Options are the optional parts of a query.
type Options struct {
	// Projection lists the columns to return. Empty means every column.
	Projection []string

	// Selection is a WHERE fragment with ? placeholders for SelectionArgs.
	Selection     string
	SelectionArgs []any

	// SortOrder is an ORDER BY list, e.g. "name COLLATE NOCASE ASC".
	// Empty leaves the store's natural order.
	SortOrder string
}

// ScopedQuery is a query whose selection has been scoped to the address it
// was built for. Its fields map one-to-one onto the storage engine's
// executeQuery parameters.
type ScopedQuery struct {
	Table         string
	Projection    []string
	Selection     string
	SelectionArgs []any
	SortOrder     string
}

// Build scopes a query to m.
//
// For an item address the selection becomes "_id = ?" bound to the parsed
// id, ANDed with the caller's selection if there is one. For the collection
// no implicit predicate is added. An invalid match is rejected; it must never
// fall through to a table-wide query.
func Build(m address.Match, opts Options) (ScopedQuery, error) {
	selection, args, err := ScopeSelection(m, opts.Selection, opts.SelectionArgs)
	if err != nil {
		return ScopedQuery{}, err
	}

	projection, err := resolveProjection(opts.Projection)
	if err != nil {
		return ScopedQuery{}, err
	}

	sortOrder, err := NormalizeSortOrder(opts.SortOrder)
	if err != nil {
		return ScopedQuery{}, err
	}

	return ScopedQuery{
		Table:         m.Table,
		Projection:    projection,
		Selection:     selection,
		SelectionArgs: args,
		SortOrder:     sortOrder,
	}, nil
}

// ScopeSelection compiles the WHERE fragment that restricts a statement to
// m, combined with the caller's selection. Updates and deletes call it with
// an empty caller selection.
func ScopeSelection(m address.Match, selection string, args []any) (string, []any, error) {
	filter, err := scopeFilter(m, selection, args)
	if err != nil {
		return "", nil, err
	}
	return compilePredicate(filter)
}

func scopeFilter(m address.Match, selection string, args []any) (Predicate, error) {
	if m.Table != schema.TableName {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, m.Table)
	}

	var preds []Predicate
	switch m.Kind {
	case address.KindItem:
		preds = append(preds, Equals{Column: schema.PrimaryKey, Value: m.ID})
	case address.KindCollection:
	default:
		return nil, fmt.Errorf("cannot scope query to %s address", m.Kind)
	}

	if strings.TrimSpace(selection) != "" {
		preds = append(preds, Fragment{SQL: selection, Args: args})
	} else if len(args) > 0 {
		return nil, fmt.Errorf("%d selection args given without a selection", len(args))
	}

	return And{Predicates: preds}, nil
}

func resolveProjection(projection []string) ([]string, error) {
	if len(projection) == 0 {
		return schema.Columns(), nil
	}
	out := make([]string, 0, len(projection))
	for _, col := range projection {
		if err := checkColumn(col); err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}
