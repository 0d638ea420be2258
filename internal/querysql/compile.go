// Package querysql builds scoped queries and compiles them to
// parameterized SQL for SQLite.
//
// CRITICAL: identifiers (table, columns, sort keys) are checked against the
// schema before they reach SQL text; values are always bound with ?
// placeholders and never interpolated.
package querysql

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yvasilyev92/AddressBook/internal/schema"
)

var (
	// ErrUnknownTable is returned for any table other than schema.TableName.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownColumn is returned for a projection, payload or sort key
	// that is not a column of the table.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrPrimaryKeyWrite is returned when a payload tries to set the
	// primary key, which is assigned by the store and immutable.
	ErrPrimaryKeyWrite = errors.New("primary key is assigned by the store")

	// ErrInvalidValue is returned for payload values that are not text.
	ErrInvalidValue = errors.New("invalid column value")

	// ErrEmptyPayload is returned by CompileUpdate when there is nothing to set.
	ErrEmptyPayload = errors.New("no values to write")
)

// CompileSelect compiles a SELECT against table.
// An empty projection selects every column in schema order.
func CompileSelect(table string, projection []string, selection string, args []any, sortOrder string) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}

	cols, err := resolveProjection(projection)
	if err != nil {
		return "", nil, err
	}

	order, err := NormalizeSortOrder(sortOrder)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(table)
	if strings.TrimSpace(selection) != "" {
		b.WriteString(" WHERE ")
		b.WriteString(selection)
	}
	if order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	return b.String(), copyArgs(args), nil
}

// CompileInsert compiles an INSERT of values into table.
// An empty payload inserts a row of NULLs.
func CompileInsert(table string, values schema.Values) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}

	cols, params, err := payload(values)
	if err != nil {
		return "", nil, err
	}

	if len(cols) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table), nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		placeholders)

	return sql, params, nil
}

// CompileUpdate compiles an UPDATE of values on the rows matching selection.
// The SET parameters come first, followed by args.
func CompileUpdate(table string, values schema.Values, selection string, args []any) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}

	cols, params, err := payload(values)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, ErrEmptyPayload
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	if strings.TrimSpace(selection) != "" {
		sql += " WHERE " + selection
	}

	return sql, append(params, args...), nil
}

// CompileDelete compiles a DELETE of the rows matching selection.
func CompileDelete(table string, selection string, args []any) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}

	sql := "DELETE FROM " + table
	if strings.TrimSpace(selection) != "" {
		sql += " WHERE " + selection
	}

	return sql, copyArgs(args), nil
}

// payload validates values and returns its columns sorted by name with the
// matching parameters. Sorting keeps the generated SQL deterministic.
func payload(values schema.Values) ([]string, []any, error) {
	cols := make([]string, 0, len(values))
	for col := range values {
		if col == schema.PrimaryKey {
			return nil, nil, ErrPrimaryKeyWrite
		}
		if err := checkColumn(col); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	params := make([]any, len(cols))
	for i, col := range cols {
		switch v := values[col].(type) {
		case nil:
			params[i] = nil
		case string:
			params[i] = v
		default:
			return nil, nil, fmt.Errorf("%w: %s is %T, want string or nil", ErrInvalidValue, col, v)
		}
	}

	return cols, params, nil
}

func checkTable(table string) error {
	if table != schema.TableName {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

func checkColumn(col string) error {
	if !schema.HasColumn(col) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}
	return nil
}

func copyArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	return append([]any(nil), args...)
}
