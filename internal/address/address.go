// Package address parses and builds resource addresses.
//
// A resource address names either a whole table (the collection address,
// e.g. "contacts") or one row of it (the item address, e.g. "contacts/7").
// The grammar is total: every input matches exactly one of the two forms or
// is rejected with ErrInvalidAddress. An unmatched address is never treated
// as the collection.
package address

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which form an address matched.
type Kind int

const (
	// KindInvalid is the zero value and never a valid dispatch target.
	KindInvalid Kind = iota
	// KindCollection addresses every row of the table.
	KindCollection
	// KindItem addresses the single row whose primary key is Match.ID.
	KindItem
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindItem:
		return "item"
	default:
		return "invalid"
	}
}

// ErrInvalidAddress is wrapped by every *Error returned from Match.
var ErrInvalidAddress = errors.New("invalid address")

// Error reports an address that failed the grammar.
type Error struct {
	Address string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidAddress, e.Address, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrInvalidAddress
}

// Match is the result of a successful parse.
// ID is only meaningful when Kind is KindItem.
type Match struct {
	Table string
	Kind  Kind
	ID    int64
}

// IsCollection reports whether the match addresses the whole table.
func (m Match) IsCollection() bool { return m.Kind == KindCollection }

// IsItem reports whether the match addresses a single row.
func (m Match) IsItem() bool { return m.Kind == KindItem }

// Collection returns the collection match of the same table.
func (m Match) Collection() Match {
	return Match{Table: m.Table, Kind: KindCollection}
}

// String renders the match back into address form.
func (m Match) String() string {
	switch m.Kind {
	case KindCollection:
		return m.Table
	case KindItem:
		return m.Table + "/" + strconv.FormatInt(m.ID, 10)
	default:
		return ""
	}
}

// Matcher parses addresses for one table.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	table string
}

// NewMatcher returns a matcher for the given table name.
func NewMatcher(table string) *Matcher {
	return &Matcher{table: table}
}

// Table returns the table name the matcher recognizes.
func (m *Matcher) Table() string {
	return m.table
}

// Collection returns the collection address of the table.
func (m *Matcher) Collection() string {
	return m.table
}

// Item returns the item address for id.
func (m *Matcher) Item(id int64) string {
	return m.table + "/" + strconv.FormatInt(id, 10)
}

// Match parses address.
//
// The table prefix is stripped first. An empty remainder is the collection;
// a remainder of "/" followed by one or more ASCII digits is an item whose id
// must fit in an int64. Everything else is rejected.
func (m *Matcher) Match(address string) (Match, error) {
	rest, ok := strings.CutPrefix(address, m.table)
	if !ok || m.table == "" {
		return Match{}, &Error{Address: address, Reason: fmt.Sprintf("not a %q address", m.table)}
	}

	if rest == "" {
		return Match{Table: m.table, Kind: KindCollection}, nil
	}

	digits, ok := strings.CutPrefix(rest, "/")
	if !ok {
		return Match{}, &Error{Address: address, Reason: "unexpected characters after table name"}
	}
	if digits == "" {
		return Match{}, &Error{Address: address, Reason: "missing item id"}
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Match{}, &Error{Address: address, Reason: "item id must be decimal digits"}
		}
	}

	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Match{}, &Error{Address: address, Reason: "item id out of range"}
	}

	return Match{Table: m.table, Kind: KindItem, ID: id}, nil
}
