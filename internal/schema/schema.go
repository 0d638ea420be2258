// Package schema describes the contacts table.
package schema

import (
	_ "embed"
	"slices"
)

// CreateSQL creates the contacts table if it does not exist.
//
//go:embed schema.sql
var CreateSQL string

// Version is stored in PRAGMA user_version once CreateSQL has been applied.
const Version = 1

// TableName is the only table this module serves. It doubles as the
// collection address.
const TableName = "contacts"

// Column names.
const (
	ColumnID     = "_id"
	ColumnName   = "name"
	ColumnPhone  = "phone"
	ColumnEmail  = "email"
	ColumnStreet = "street"
	ColumnCity   = "city"
	ColumnState  = "state"
	ColumnZip    = "zip"
)

// PrimaryKey is the integer key column assigned by the store.
const PrimaryKey = ColumnID

// DefaultSortOrder lists contacts alphabetically, ignoring case.
const DefaultSortOrder = ColumnName + " COLLATE NOCASE ASC"

var columns = []string{
	ColumnID,
	ColumnName,
	ColumnPhone,
	ColumnEmail,
	ColumnStreet,
	ColumnCity,
	ColumnState,
	ColumnZip,
}

// Columns returns every column in table order, primary key first.
// The returned slice is a copy.
func Columns() []string {
	return slices.Clone(columns)
}

// ValueColumns returns the writable text columns.
func ValueColumns() []string {
	return slices.Clone(columns[1:])
}

// HasColumn reports whether name is a column of the table.
func HasColumn(name string) bool {
	return slices.Contains(columns, name)
}

// Values is a write payload keyed by column name. Values are strings, or nil
// to store NULL. Absent columns are left untouched by updates and stored as
// NULL by inserts.
type Values map[string]any

// Contact is the typed form of one full row.
type Contact struct {
	ID     int64  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Phone  string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email  string `json:"email,omitempty" yaml:"email,omitempty"`
	Street string `json:"street,omitempty" yaml:"street,omitempty"`
	City   string `json:"city,omitempty" yaml:"city,omitempty"`
	State  string `json:"state,omitempty" yaml:"state,omitempty"`
	Zip    string `json:"zip,omitempty" yaml:"zip,omitempty"`
}

// Values returns the non-empty fields of c as a write payload.
// The ID is never included.
func (c Contact) Values() Values {
	v := Values{}
	set := func(col, val string) {
		if val != "" {
			v[col] = val
		}
	}
	set(ColumnName, c.Name)
	set(ColumnPhone, c.Phone)
	set(ColumnEmail, c.Email)
	set(ColumnStreet, c.Street)
	set(ColumnCity, c.City)
	set(ColumnState, c.State)
	set(ColumnZip, c.Zip)
	return v
}
