package querysql

import (
	"fmt"
	"strings"
)

// Predicate is a WHERE-clause condition.
//
// This is a sealed interface: only types in this package implement it, so
// compilePredicate can switch exhaustively.
//
// Predicate types:
//   - Equals: column = ? (value always bound)
//   - Fragment: caller-supplied selection text with its own ? placeholders
//   - And: every predicate must hold
type Predicate interface {
	predicateNode()
}

// Equals matches rows where Column equals Value.
type Equals struct {
	Column string
	Value  any
}

// Fragment is a selection clause supplied by the caller.
// SQL is passed through verbatim and Args are bound to its placeholders in order.
type Fragment struct {
	SQL  string
	Args []any
}

// And is the conjunction of Predicates.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode()   {}
func (Fragment) predicateNode() {}
func (And) predicateNode()      {}

// compilePredicate compiles p to a WHERE fragment and its bound parameters.
// Values are NEVER interpolated into the text.
func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil, nil
	case Equals:
		return compileEquals(pred)
	case *Equals:
		return compileEquals(*pred)
	case Fragment:
		return pred.SQL, append([]any(nil), pred.Args...), nil
	case *Fragment:
		return pred.SQL, append([]any(nil), pred.Args...), nil
	case And:
		return compileAnd(pred)
	case *And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq Equals) (string, []any, error) {
	if err := checkColumn(eq.Column); err != nil {
		return "", nil, err
	}
	return eq.Column + " = ?", []any{eq.Value}, nil
}

// compileAnd joins the non-empty parts with AND. A single part is returned
// as is; with several parts, each is parenthesized so a caller fragment
// containing OR cannot widen the scope of the others.
func compileAnd(and And) (string, []any, error) {
	var parts []string
	var params []any

	for _, p := range and.Predicates {
		sql, args, err := compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		if strings.TrimSpace(sql) == "" {
			continue
		}
		parts = append(parts, sql)
		params = append(params, args...)
	}

	switch len(parts) {
	case 0:
		return "", nil, nil
	case 1:
		return parts[0], params, nil
	}

	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " AND "), params, nil
}
