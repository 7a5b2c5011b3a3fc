package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rowgraph/internal/metadata"
)

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &numberedParamBuilder{prefix: "?"}
}

func (d *SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *SQLiteDialect) SupportsReturning() bool { return true }

func (d *SQLiteDialect) ColumnType(t metadata.FieldType, _ int) string {
	switch t {
	case metadata.TypeInt, metadata.TypeBool:
		return "INTEGER"
	case metadata.TypeFloat, metadata.TypeDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) GeneratedKeyDef(column string, t metadata.FieldType) string {
	if t == metadata.TypeInt {
		return d.QuoteIdent(column) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return d.QuoteIdent(column) + " " + d.ColumnType(t, 0) + " PRIMARY KEY"
}

func (d *SQLiteDialect) ProcedureCall(name string, _ []Param, _ ParamBuilder) (string, error) {
	return "", fmt.Errorf("%w: sqlite has no stored procedures (%s)", ErrUnsupported, name)
}

func (d *SQLiteDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		table,
	).Scan(&count)
	return count > 0, err
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
