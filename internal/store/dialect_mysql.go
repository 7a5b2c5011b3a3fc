package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"rowgraph/internal/metadata"
)

// MySQLDialect implements Dialect for MySQL and MariaDB.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) Placeholder(int) string { return "?" }

func (d *MySQLDialect) NewParamBuilder() ParamBuilder {
	return &positionalParamBuilder{}
}

func (d *MySQLDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SupportsReturning is false: generated keys come from LastInsertId.
func (d *MySQLDialect) SupportsReturning() bool { return false }

func (d *MySQLDialect) ColumnType(t metadata.FieldType, precision int) string {
	switch t {
	case metadata.TypeInt:
		return "BIGINT"
	case metadata.TypeFloat:
		return "DOUBLE"
	case metadata.TypeDecimal:
		if precision > 0 {
			return fmt.Sprintf("DECIMAL(18,%d)", precision)
		}
		return "DECIMAL(18,4)"
	case metadata.TypeBool:
		return "TINYINT(1)"
	case metadata.TypeTime:
		return "DATETIME(6)"
	case metadata.TypeUUID:
		return "CHAR(36)"
	default:
		return "VARCHAR(255)"
	}
}

func (d *MySQLDialect) GeneratedKeyDef(column string, t metadata.FieldType) string {
	if t == metadata.TypeInt {
		return d.QuoteIdent(column) + " BIGINT AUTO_INCREMENT PRIMARY KEY"
	}
	return d.QuoteIdent(column) + " " + d.ColumnType(t, 0) + " PRIMARY KEY"
}

// ProcedureCall passes arguments positionally in the given order.
func (d *MySQLDialect) ProcedureCall(name string, params []Param, pb ParamBuilder) (string, error) {
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = pb.Add(p.Value)
	}
	return fmt.Sprintf("CALL %s(%s)", name, strings.Join(args, ", ")), nil
}

func (d *MySQLDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
		table,
	).Scan(&count)
	return count > 0, err
}

func (d *MySQLDialect) GetColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`,
		table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNames(rows)
}

func (d *MySQLDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
