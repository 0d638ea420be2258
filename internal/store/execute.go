package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yvasilyev92/AddressBook/internal/querysql"
	"github.com/yvasilyev92/AddressBook/internal/schema"
)

// ExecuteQuery runs a SELECT and reads every row.
func (s *Store) ExecuteQuery(ctx context.Context, table string, projection []string, selection string, args []any, sortOrder string) (*ResultSet, error) {
	query, params, err := querysql.CompileSelect(table, projection, selection, args, sortOrder)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	rs, err := scanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return rs, nil
}

// ExecuteInsert inserts one row and returns the primary key the database
// assigned to it.
func (s *Store) ExecuteInsert(ctx context.Context, table string, values schema.Values) (int64, error) {
	query, params, err := querysql.CompileInsert(table, values)
	if err != nil {
		return 0, fmt.Errorf("execute insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("execute insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("execute insert: last insert id: %w", err)
	}
	return id, nil
}

// ExecuteUpdate updates the rows matching selection.
func (s *Store) ExecuteUpdate(ctx context.Context, table string, values schema.Values, selection string, args []any) (int64, error) {
	query, params, err := querysql.CompileUpdate(table, values, selection, args)
	if err != nil {
		return 0, fmt.Errorf("execute update: %w", err)
	}
	return s.exec(ctx, "execute update", query, params)
}

// ExecuteDelete deletes the rows matching selection.
func (s *Store) ExecuteDelete(ctx context.Context, table string, selection string, args []any) (int64, error) {
	query, params, err := querysql.CompileDelete(table, selection, args)
	if err != nil {
		return 0, fmt.Errorf("execute delete: %w", err)
	}
	return s.exec(ctx, "execute delete", query, params)
}

func (s *Store) exec(ctx context.Context, op, query string, params []any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

// scanAll reads rows into a ResultSet. TEXT values arriving as []byte are
// copied into strings so the result does not alias driver buffers.
func scanAll(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	rs := &ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return rs, nil
}
