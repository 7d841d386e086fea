package query

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Rows is a query result: one map per row keyed by column name.
type Rows []map[string]any

// Queryer executes SQL that returns rows. *sql.DB satisfies it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// scanRows reads every row of rs. Byte slices are returned as strings so a
// cached result and a fresh one carry the same value types.
func scanRows(rs *sql.Rows) (Rows, error) {
	defer rs.Close()
	cols, err := rs.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}
	out := Rows{}
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return out, nil
}

func execute(ctx context.Context, db Queryer, query string) (Rows, error) {
	rs, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanRows(rs)
}
