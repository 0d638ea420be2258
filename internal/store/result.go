package store

import (
	"fmt"

	"github.com/yvasilyev92/AddressBook/internal/schema"
)

// ResultSet is a fully read query result.
//
// Rows are materialized before the statement is closed, so a ResultSet never
// pins the database connection and can be handed to another goroutine.
// Text values are string, the primary key is int64, NULL is nil.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Value returns the value of column col in row i, or nil if the column was
// not projected.
func (r *ResultSet) Value(i int, col string) any {
	for j, c := range r.Columns {
		if c == col {
			return r.Rows[i][j]
		}
	}
	return nil
}

// Map returns row i keyed by column name.
func (r *ResultSet) Map(i int) map[string]any {
	m := make(map[string]any, len(r.Columns))
	for j, c := range r.Columns {
		m[c] = r.Rows[i][j]
	}
	return m
}

// Contacts converts every row to a schema.Contact. Columns missing from the
// projection and NULL values become zero values.
func (r *ResultSet) Contacts() ([]schema.Contact, error) {
	if r == nil {
		return nil, nil
	}
	out := make([]schema.Contact, 0, len(r.Rows))
	for i := range r.Rows {
		var c schema.Contact
		for j, col := range r.Columns {
			v := r.Rows[i][j]
			if col == schema.ColumnID {
				id, ok := v.(int64)
				if !ok {
					return nil, fmt.Errorf("row %d: %s is %T, want int64", i, col, v)
				}
				c.ID = id
				continue
			}
			s, _ := v.(string)
			switch col {
			case schema.ColumnName:
				c.Name = s
			case schema.ColumnPhone:
				c.Phone = s
			case schema.ColumnEmail:
				c.Email = s
			case schema.ColumnStreet:
				c.Street = s
			case schema.ColumnCity:
				c.City = s
			case schema.ColumnState:
				c.State = s
			case schema.ColumnZip:
				c.Zip = s
			}
		}
		out = append(out, c)
	}
	return out, nil
}
