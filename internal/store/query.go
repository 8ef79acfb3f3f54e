package store

import (
	"context"
	"fmt"
)

// QueryResult is the raw result of an ad-hoc read: ordered columns, their
// DuckDB type names, and row values. []byte values are materialized as
// strings.
type QueryResult struct {
	Columns   []string
	Types     []string
	Rows      [][]any
	Truncated bool
}

// Query runs an ad-hoc statement and materializes up to maxRows rows;
// maxRows <= 0 means no cap. Callers own read-only enforcement.
func (s *Store) Query(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	result := &QueryResult{Columns: columns, Types: make([]string, len(colTypes))}
	for i, ct := range colTypes {
		result.Types[i] = ct.DatabaseTypeName()
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
