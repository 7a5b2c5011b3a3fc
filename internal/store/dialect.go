package store

import (
	"context"
	"fmt"

	"rowgraph/internal/metadata"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres", "sqlite" or "mysql".
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// QuoteIdent quotes a table, column or alias name.
	QuoteIdent(name string) string

	// SupportsReturning reports whether INSERT ... RETURNING yields generated keys.
	// Dialects without it report keys through LastInsertId.
	SupportsReturning() bool

	// ColumnType maps a metadata field type to the database DDL type.
	ColumnType(t metadata.FieldType, precision int) string

	// GeneratedKeyDef returns the column definition of a database-generated key.
	GeneratedKeyDef(column string, t metadata.FieldType) string

	// ProcedureCall renders a stored procedure call returning rows.
	ProcedureCall(name string, params []Param, pb ParamBuilder) (string, error)

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, q Querier, table string) (bool, error)

	// GetColumns returns existing column names of a table.
	GetColumns(ctx context.Context, q Querier, table string) (map[string]bool, error)

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// Param is a named stored procedure argument.
type Param struct {
	Name  string
	Value any
}

// NewDialect creates a Dialect for a configured driver: "postgres" (pgx),
// "pq" (lib/pq), "sqlite" or "mysql".
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx", "":
		return &PostgresDialect{driver: "pgx"}, nil
	case "pq":
		return &PostgresDialect{driver: "postgres"}, nil
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// --- numbered ParamBuilder ($n or ?n) ---

type numberedParamBuilder struct {
	prefix string
	params []any
	n      int
}

func (p *numberedParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("%s%d", p.prefix, p.n)
}

func (p *numberedParamBuilder) Params() []any { return p.params }
func (p *numberedParamBuilder) Count() int    { return p.n }

// --- positional ParamBuilder (?) ---

type positionalParamBuilder struct {
	params []any
}

func (p *positionalParamBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return "?"
}

func (p *positionalParamBuilder) Params() []any { return p.params }
func (p *positionalParamBuilder) Count() int    { return len(p.params) }
