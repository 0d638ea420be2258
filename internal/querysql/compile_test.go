package querysql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yvasilyev92/AddressBook/internal/address"
	"github.com/yvasilyev92/AddressBook/internal/schema"
)

var (
	collection = address.Match{Table: "contacts", Kind: address.KindCollection}
	item7      = address.Match{Table: "contacts", Kind: address.KindItem, ID: 7}
)

func TestBuild_CollectionAddsNoPredicate(t *testing.T) {
	q, err := Build(collection, Options{})
	require.NoError(t, err)

	assert.Equal(t, "contacts", q.Table)
	assert.Equal(t, schema.Columns(), q.Projection)
	assert.Empty(t, q.Selection)
	assert.Empty(t, q.SelectionArgs)
	assert.Empty(t, q.SortOrder)
}

func TestBuild_ItemScopesByPrimaryKey(t *testing.T) {
	q, err := Build(item7, Options{})
	require.NoError(t, err)

	assert.Equal(t, "_id = ?", q.Selection)
	assert.Equal(t, []any{int64(7)}, q.SelectionArgs)
}

func TestBuild_ItemWithCallerSelection(t *testing.T) {
	q, err := Build(item7, Options{
		Selection:     "name = ? OR city = ?",
		SelectionArgs: []any{"Ada", "London"},
	})
	require.NoError(t, err)

	// The caller's OR must not widen the primary key scope
	assert.Equal(t, "(_id = ?) AND (name = ? OR city = ?)", q.Selection)
	assert.Equal(t, []any{int64(7), "Ada", "London"}, q.SelectionArgs)
}

func TestBuild_CollectionWithCallerSelection(t *testing.T) {
	q, err := Build(collection, Options{
		Selection:     "city = ?",
		SelectionArgs: []any{"London"},
	})
	require.NoError(t, err)

	assert.Equal(t, "city = ?", q.Selection)
	assert.Equal(t, []any{"London"}, q.SelectionArgs)
}

func TestBuild_ArgsWithoutSelection(t *testing.T) {
	_, err := Build(collection, Options{SelectionArgs: []any{"x"}})
	require.Error(t, err)
}

func TestBuild_RejectsInvalidMatch(t *testing.T) {
	_, err := Build(address.Match{Table: "contacts"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")

	_, err = Build(address.Match{Table: "people", Kind: address.KindCollection}, Options{})
	assert.True(t, errors.Is(err, ErrUnknownTable))
}

func TestBuild_Projection(t *testing.T) {
	q, err := Build(collection, Options{Projection: []string{"_id", "name"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "name"}, q.Projection)

	_, err = Build(collection, Options{Projection: []string{"name", "password"}})
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestBuild_SortOrderNormalized(t *testing.T) {
	q, err := Build(collection, Options{SortOrder: "name collate nocase asc, _id desc"})
	require.NoError(t, err)
	assert.Equal(t, "name COLLATE NOCASE ASC, _id DESC", q.SortOrder)
}

func TestNormalizeSortOrder(t *testing.T) {
	valid := map[string]string{
		"":                          "",
		"   ":                       "",
		"name":                      "name",
		"name ASC":                  "name ASC",
		"name desc":                 "name DESC",
		"name COLLATE NOCASE ASC":   "name COLLATE NOCASE ASC",
		"city COLLATE binary":       "city COLLATE BINARY",
		"state,zip DESC":            "state, zip DESC",
		"  phone   COLLATE RTRIM  ": "phone COLLATE RTRIM",
	}
	for in, want := range valid {
		got, err := NormalizeSortOrder(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	invalid := []string{
		"nickname",
		"name; DROP TABLE contacts",
		"name ASC DESC",
		"name COLLATE",
		"name COLLATE UNICODE",
		"name,",
		"(SELECT 1)",
		"name ASC LIMIT 1",
	}
	for _, in := range invalid {
		_, err := NormalizeSortOrder(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidSortOrder), in)
	}
}

func TestCompileSelect(t *testing.T) {
	sql, args, err := CompileSelect("contacts", nil, "_id = ?", []any{int64(3)}, "name ASC")
	require.NoError(t, err)
	assert.Equal(t, "SELECT _id, name, phone, email, street, city, state, zip FROM contacts WHERE _id = ? ORDER BY name ASC", sql)
	assert.Equal(t, []any{int64(3)}, args)

	sql, args, err = CompileSelect("contacts", []string{"name"}, "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM contacts", sql)
	assert.Nil(t, args)

	_, _, err = CompileSelect("sqlite_master", nil, "", nil, "")
	assert.True(t, errors.Is(err, ErrUnknownTable))
}

func TestCompileInsert(t *testing.T) {
	sql, args, err := CompileInsert("contacts", schema.Values{"phone": "555-1000", "name": "Ada", "zip": nil})
	require.NoError(t, err)
	// Columns are sorted for deterministic output
	assert.Equal(t, "INSERT INTO contacts (name, phone, zip) VALUES (?, ?, ?)", sql)
	assert.Equal(t, []any{"Ada", "555-1000", nil}, args)

	sql, args, err = CompileInsert("contacts", schema.Values{})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO contacts DEFAULT VALUES", sql)
	assert.Nil(t, args)
}

func TestCompileInsert_RejectsBadPayload(t *testing.T) {
	_, _, err := CompileInsert("contacts", schema.Values{"_id": "5"})
	assert.True(t, errors.Is(err, ErrPrimaryKeyWrite))

	_, _, err = CompileInsert("contacts", schema.Values{"name) VALUES ('x'); --": "y"})
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	_, _, err = CompileInsert("contacts", schema.Values{"name": 42})
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestCompileUpdate(t *testing.T) {
	sql, args, err := CompileUpdate("contacts", schema.Values{"phone": "555-2000", "city": "Paris"}, "_id = ?", []any{int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE contacts SET city = ?, phone = ? WHERE _id = ?", sql)
	assert.Equal(t, []any{"Paris", "555-2000", int64(1)}, args)

	_, _, err = CompileUpdate("contacts", schema.Values{}, "_id = ?", []any{int64(1)})
	assert.True(t, errors.Is(err, ErrEmptyPayload))
}

func TestCompileDelete(t *testing.T) {
	sql, args, err := CompileDelete("contacts", "_id = ?", []any{int64(9)})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM contacts WHERE _id = ?", sql)
	assert.Equal(t, []any{int64(9)}, args)
}

func TestCompilePredicate_UnknownColumn(t *testing.T) {
	_, _, err := compilePredicate(Equals{Column: "secret", Value: 1})
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestCompileAnd_SkipsEmptyParts(t *testing.T) {
	sql, args, err := compilePredicate(And{Predicates: []Predicate{
		Fragment{SQL: "  "},
		Equals{Column: "_id", Value: int64(2)},
	}})
	require.NoError(t, err)
	assert.Equal(t, "_id = ?", sql)
	assert.Equal(t, []any{int64(2)}, args)
}

func TestScopeSelection(t *testing.T) {
	sel, args, err := ScopeSelection(item7, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "_id = ?", sel)
	assert.Equal(t, []any{int64(7)}, args)

	sel, args, err = ScopeSelection(collection, "", nil)
	require.NoError(t, err)
	assert.Empty(t, sel)
	assert.Empty(t, args)
}
