package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, dialect), mock
}

func TestExecuteNonQuery(t *testing.T) {
	s, mock := newMockStore(t, &PostgresDialect{})
	mock.ExpectExec(`UPDATE "Line" SET "Active" = $1 WHERE "LineId" = $2`).
		WithArgs(false, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.ExecuteNonQuery(context.Background(), `UPDATE "Line" SET "Active" = $1 WHERE "LineId" = $2`, false, int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteScalar(t *testing.T) {
	s, mock := newMockStore(t, &PostgresDialect{})
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT 2`).WillReturnRows(sqlmock.NewRows([]string{"n"}))

	v, err := s.ExecuteScalar(context.Background(), `SELECT 1`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.ExecuteScalar(context.Background(), `SELECT 2`)
	require.NoError(t, err)
	assert.Nil(t, v, "no rows yields nil")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteInsert_Returning(t *testing.T) {
	s, mock := newMockStore(t, &PostgresDialect{})
	query := `INSERT INTO "Customer" ("Name") VALUES ($1) RETURNING "CustomerId"`
	mock.ExpectQuery(query).WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"CustomerId"}).AddRow(int64(17)))

	id, err := s.ExecuteInsert(context.Background(), query, "Acme")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteInsert_LastInsertID(t *testing.T) {
	s, mock := newMockStore(t, &MySQLDialect{})
	query := "INSERT INTO `Customer` (`Name`) VALUES (?)"
	mock.ExpectExec(query).WithArgs("Acme").WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := s.ExecuteInsert(context.Background(), query, "Acme")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReader_Table(t *testing.T) {
	s, mock := newMockStore(t, &SQLiteDialect{})
	mock.ExpectQuery(`SELECT t0."Name" AS "Name" FROM "Customer" t0`).
		WillReturnRows(sqlmock.NewRows([]string{"Name", "Customer.Vip"}).
			AddRow([]byte("Acme"), int64(1)).
			AddRow("Globex", int64(0)))

	cur, err := s.ExecuteReader(context.Background(), `SELECT t0."Name" AS "Name" FROM "Customer" t0`)
	require.NoError(t, err)
	table, err := ReadTable(cur)
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Customer.Vip"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Acme", table.Rows[0]["Name"], "bytes are normalized to strings")
	assert.Equal(t, []any{int64(1), int64(0)}, table.Column("Customer.Vip"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteTabular(t *testing.T) {
	s, mock := newMockStore(t, &PostgresDialect{})
	mock.ExpectQuery(`SELECT * FROM sales_by_customer(customer_id => $1, year => $2)`).
		WithArgs(int64(5), 2024).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(99.5))

	table, err := s.ExecuteTabular(context.Background(), "sales_by_customer",
		Param{Name: "customer_id", Value: int64(5)},
		Param{Name: "year", Value: 2024},
	)
	require.NoError(t, err)
	assert.Equal(t, 99.5, table.Rows[0]["total"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteTabular_SQLiteUnsupported(t *testing.T) {
	s, _ := newMockStore(t, &SQLiteDialect{})
	_, err := s.ExecuteTabular(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTransaction(t *testing.T) {
	s, mock := newMockStore(t, &PostgresDialect{})
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "Tag"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	n, err := tx.ExecuteNonQuery(context.Background(), `DELETE FROM "Tag"`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = tx.Begin(context.Background())
	assert.ErrorIs(t, err, ErrNestedTx)

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name    string
		dialect Dialect
		err     error
	}{
		{"pgx", &PostgresDialect{}, &pgconn.PgError{Code: "23505"}},
		{"pq", &PostgresDialect{driver: "postgres"}, &pq.Error{Code: "23505"}},
		{"mysql", &MySQLDialect{}, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}},
		{"sqlite", &SQLiteDialect{}, errors.New("constraint failed: UNIQUE constraint failed: Customer.Name")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.dialect.MapError(tc.err), ErrUniqueViolation)
		})
	}

	other := errors.New("connection reset")
	assert.Same(t, other, (&PostgresDialect{}).MapError(other))
}

func TestNewDialect(t *testing.T) {
	for driver, want := range map[string]string{"postgres": "pgx", "pq": "postgres", "sqlite": "sqlite", "mysql": "mysql"} {
		d, err := NewDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.DriverName())
	}
	_, err := NewDialect("oracle")
	assert.Error(t, err)
}

func TestParamBuilders(t *testing.T) {
	pg := (&PostgresDialect{}).NewParamBuilder()
	assert.Equal(t, "$1", pg.Add("a"))
	assert.Equal(t, "$2", pg.Add("b"))

	lite := (&SQLiteDialect{}).NewParamBuilder()
	assert.Equal(t, "?1", lite.Add("a"))

	my := (&MySQLDialect{}).NewParamBuilder()
	assert.Equal(t, "?", my.Add("a"))
	assert.Equal(t, "?", my.Add("b"))
	assert.Equal(t, 2, my.Count())
	assert.Equal(t, []any{"a", "b"}, my.Params())
}
