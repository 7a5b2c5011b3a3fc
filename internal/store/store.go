package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql" // Register mysql as database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "github.com/lib/pq"              // Register lib/pq as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"rowgraph/internal/config"
	"rowgraph/internal/instrument"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrUnsupported     = errors.New("unsupported by dialect")
	ErrNestedTx        = errors.New("transaction already open")
)

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Executor runs statement text against a database or an open transaction.
type Executor interface {
	Dialect() Dialect

	// ExecuteNonQuery runs a statement and returns the number of rows affected.
	ExecuteNonQuery(ctx context.Context, query string, args ...any) (int64, error)

	// ExecuteScalar returns the first column of the first row, or nil.
	ExecuteScalar(ctx context.Context, query string, args ...any) (any, error)

	// ExecuteInsert runs an insert and returns the generated key, taken from
	// RETURNING when the dialect supports it and from LastInsertId otherwise.
	ExecuteInsert(ctx context.Context, query string, args ...any) (any, error)

	// ExecuteReader runs a query and returns a cursor over its rows.
	ExecuteReader(ctx context.Context, query string, args ...any) (Cursor, error)

	// ExecuteTabular calls a stored procedure and buffers its result.
	ExecuteTabular(ctx context.Context, procedure string, params ...Param) (*Table, error)

	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an Executor bound to an open transaction.
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

type Option func(*conn)

// WithLogger sets the logger used for statement tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInstrumenter records one span per statement.
func WithInstrumenter(inst instrument.Instrumenter) Option {
	return func(c *conn) {
		if inst != nil {
			c.inst = inst
		}
	}
}

// Store wraps a database connection and dialect.
type Store struct {
	conn
	DB *sql.DB
}

// Open creates a Store from config.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	dialect, err := NewDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect.Name() == "sqlite" {
		// SQLite: single writer
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return New(db, dialect, opts...), nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{DB: db}
	s.conn = conn{q: db, dialect: dialect, logger: slog.Default(), inst: &instrument.NoopInstrumenter{}}
	for _, opt := range opts {
		opt(&s.conn)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Begin starts a new transaction.
func (s *Store) Begin(ctx context.Context) (Tx, error) {
	_, span := s.inst.StartSpan(ctx, "store", "begin")
	defer span.End()

	sqlTx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("begin: %w", err)
	}
	s.logger.Debug("transaction opened")
	txc := s.conn
	txc.q = sqlTx
	return &tx{conn: txc, sqlTx: sqlTx}, nil
}

type tx struct {
	conn
	sqlTx *sql.Tx
}

func (t *tx) Begin(context.Context) (Tx, error) {
	return nil, ErrNestedTx
}

func (t *tx) Commit() error {
	if err := t.sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

func (t *tx) Rollback() error {
	if err := t.sqlTx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return fmt.Errorf("rollback: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// conn implements the statement methods shared by Store and tx.
type conn struct {
	q       Querier
	dialect Dialect
	logger  *slog.Logger
	inst    instrument.Instrumenter
}

func (c *conn) Dialect() Dialect { return c.dialect }

func (c *conn) trace(ctx context.Context, action, query string, args []any) func(error) {
	_, span := c.inst.StartSpan(ctx, "store", action)
	c.logger.Debug("sql", "action", action, "query", query, "args", len(args))
	return func(err error) {
		span.SetStatus(instrument.Status(err))
		span.End()
	}
}

func (c *conn) ExecuteNonQuery(ctx context.Context, query string, args ...any) (n int64, err error) {
	done := c.trace(ctx, "exec", query, args)
	defer func() { done(err) }()

	result, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", c.dialect.MapError(err))
	}
	n, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (c *conn) ExecuteScalar(ctx context.Context, query string, args ...any) (v any, err error) {
	done := c.trace(ctx, "scalar", query, args)
	defer func() { done(err) }()

	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scalar: %w", c.dialect.MapError(err))
	}
	return normalizeValue(v), nil
}

func (c *conn) ExecuteInsert(ctx context.Context, query string, args ...any) (any, error) {
	if c.dialect.SupportsReturning() {
		return c.ExecuteScalar(ctx, query, args...)
	}

	var err error
	done := c.trace(ctx, "insert", query, args)
	defer func() { done(err) }()

	result, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("insert: %w", c.dialect.MapError(err))
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("last insert id: %w", err)
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	return id, nil
}

func (c *conn) ExecuteReader(ctx context.Context, query string, args ...any) (cur Cursor, err error) {
	done := c.trace(ctx, "query", query, args)
	defer func() { done(err) }()

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", c.dialect.MapError(err))
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("get columns: %w", err)
	}
	return &rowsCursor{rows: rows, cols: cols}, nil
}

func (c *conn) ExecuteTabular(ctx context.Context, procedure string, params ...Param) (*Table, error) {
	pb := c.dialect.NewParamBuilder()
	query, err := c.dialect.ProcedureCall(procedure, params, pb)
	if err != nil {
		return nil, err
	}
	cur, err := c.ExecuteReader(ctx, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", procedure, err)
	}
	return ReadTable(cur)
}

// normalizeValue turns driver byte slices into strings. Everything else is
// passed through; typed conversion happens where the field type is known.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// ParseTime parses the text forms drivers use for timestamps, such as the
// one modernc sqlite writes for time.Time arguments.
func ParseTime(s string) (time.Time, bool) {
	if len(s) < 19 || s[4] != '-' || s[7] != '-' || s[13] != ':' {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func scanNames(rows *sql.Rows) (map[string]bool, error) {
	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
