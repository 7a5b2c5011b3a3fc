package store

import (
	"database/sql"
	"fmt"
)

// Cursor iterates the rows of a query.
type Cursor interface {
	Next() bool
	FieldCount() int
	Name(i int) string
	Value(i int) any
	Err() error
	Close() error
}

type rowsCursor struct {
	rows   *sql.Rows
	cols   []string
	values []any
	err    error
}

func (c *rowsCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	values := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan: %w", err)
		return false
	}
	for i := range values {
		values[i] = normalizeValue(values[i])
	}
	c.values = values
	return true
}

func (c *rowsCursor) FieldCount() int   { return len(c.cols) }
func (c *rowsCursor) Name(i int) string { return c.cols[i] }
func (c *rowsCursor) Value(i int) any   { return c.values[i] }

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}

func (c *rowsCursor) Close() error { return c.rows.Close() }

// Table is a fully buffered result set.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// ReadTable drains and closes a cursor.
func ReadTable(cur Cursor) (*Table, error) {
	defer cur.Close()

	t := &Table{Columns: make([]string, cur.FieldCount())}
	for i := range t.Columns {
		t.Columns[i] = cur.Name(i)
	}
	for cur.Next() {
		row := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			row[col] = cur.Value(i)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[name]
	}
	return out
}
