package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"rowgraph/internal/metadata"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib or lib/pq.
type PostgresDialect struct {
	driver string
}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) DriverName() string {
	if d.driver == "" {
		return "pgx"
	}
	return d.driver
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &numberedParamBuilder{prefix: "$"}
}

func (d *PostgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgresDialect) SupportsReturning() bool { return true }

func (d *PostgresDialect) ColumnType(t metadata.FieldType, precision int) string {
	switch t {
	case metadata.TypeInt:
		return "BIGINT"
	case metadata.TypeFloat:
		return "DOUBLE PRECISION"
	case metadata.TypeDecimal:
		if precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", precision)
		}
		return "NUMERIC"
	case metadata.TypeBool:
		return "BOOLEAN"
	case metadata.TypeTime:
		return "TIMESTAMPTZ"
	case metadata.TypeUUID:
		return "UUID"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) GeneratedKeyDef(column string, t metadata.FieldType) string {
	if t == metadata.TypeUUID {
		return d.QuoteIdent(column) + " UUID PRIMARY KEY DEFAULT gen_random_uuid()"
	}
	return d.QuoteIdent(column) + " BIGSERIAL PRIMARY KEY"
}

// ProcedureCall uses named notation so argument order does not matter.
func (d *PostgresDialect) ProcedureCall(name string, params []Param, pb ParamBuilder) (string, error) {
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = fmt.Sprintf("%s => %s", p.Name, pb.Add(p.Value))
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(args, ", ")), nil
}

func (d *PostgresDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		table,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNames(rows)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
