package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
)

type execCall struct {
	query string
	args  []any
}

// fakeQuerier records statements. Every Exec reports rowsAffected.
type fakeQuerier struct {
	calls        []execCall
	rowsAffected int64
}

func (q *fakeQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q.calls = append(q.calls, execCall{query: query, args: args})
	return driver.RowsAffected(q.rowsAffected), nil
}

func (q *fakeQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (q *fakeQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("queries are not supported")
}

// fakeRow scans values into destinations of exactly the same type.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		value := reflect.ValueOf(r.values[i])
		if !value.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("column %d: cannot scan %s into %s", i, value.Type(), target.Type())
		}
		target.Set(value)
	}
	return nil
}
