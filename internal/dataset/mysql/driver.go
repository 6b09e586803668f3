// Package mysql implements the dataset capability on MySQL, backed by
// database/sql. Import for side effects to register the driver.
//
// Generated SQL uses ANSI double-quoted identifiers, so the connection
// forces sql_mode ANSI_QUOTES when it is not already in the DSN.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/errs"
)

func init() {
	dataset.Register(dataset.KindMySQL, func(ctx context.Context, cfg dataset.Config) (dataset.Conn, error) {
		return New(ctx, cfg)
	})
}

// Conn is a MySQL implementation of dataset.Conn.
// It is safe for concurrent use by multiple goroutines.
type Conn struct {
	db *sql.DB
}

// New opens a MySQL connection pool using the provided Config and returns
// a Conn. It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg dataset.Config) (*Conn, error) {
	db, err := sql.Open("mysql", withAnsiQuotes(cfg.DSN))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionFailed, "invalid DSN", err)
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	c := &Conn{db: db}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := c.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

// withAnsiQuotes appends sql_mode=ANSI_QUOTES unless the DSN already
// configures sql_mode.
func withAnsiQuotes(dsn string) string {
	if strings.Contains(dsn, "sql_mode") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "sql_mode=%27ANSI_QUOTES%27"
}

// --- dataset.Conn implementation ---

// Table returns a lazily evaluated expression over schema.name.
// MySQL has no separate schema level below the database, so the schema
// qualifier addresses a database; queries always emit the qualified
// "schema"."table" form.
func (c *Conn) Table(_ context.Context, name, schema string) (dataset.Table, error) {
	return dataset.NewSQLTable(c, name, schema), nil
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (c *Conn) Close() {
	_ = c.db.Close()
}

// --- dataset.SQLClient implementation ---

func (c *Conn) QueryRows(ctx context.Context, query string, args []any) ([]dataset.Row, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return dataset.ScanRows(&mysqlRows{rows: rows})
}

func (c *Conn) Placeholder(_ int) string {
	return "?"
}

// --- dataset.Inspector implementation ---

func (c *Conn) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.db.QueryContext(ctx, q, schema)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (c *Conn) InspectTable(ctx context.Context, schema, table string) (*dataset.TableSchema, error) {
	columns, pks, err := c.fetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	fks, err := c.fetchForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	return &dataset.TableSchema{
		Schema:      schema,
		Name:        table,
		Columns:     columns,
		PrimaryKey:  pks,
		ForeignKeys: fks,
	}, nil
}

func (c *Conn) fetchColumns(ctx context.Context, schema, table string) ([]dataset.ColumnSchema, []string, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES',
		       column_key
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := c.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []dataset.ColumnSchema
	var pks []string

	for rows.Next() {
		var col dataset.ColumnSchema
		var columnKey string
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &columnKey); err != nil {
			return nil, nil, mapError(err, "failed to scan column info")
		}
		col.Primary = columnKey == "PRI"
		if col.Primary {
			pks = append(pks, col.Name)
		}
		cols = append(cols, col)
	}

	return cols, pks, rows.Err()
}

func (c *Conn) fetchForeignKeys(ctx context.Context, schema, table string) ([]dataset.ForeignKeyRef, error) {
	const q = `
		SELECT column_name,
		       referenced_table_name,
		       referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema           = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name             = ?
		  AND referenced_table_name IS NOT NULL`

	rows, err := c.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var fks []dataset.ForeignKeyRef
	for rows.Next() {
		var fk dataset.ForeignKeyRef
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.KindQueryFailed, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.KindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to error kinds.
func classifyMySQLCode(code uint16) errs.Kind {
	switch code {
	case 1044, 1045, 1046, 1049:
		return errs.KindConnectionFailed
	case 1040, 1203:
		return errs.KindConnectionFailed
	case 1054, 1064, 1146:
		return errs.KindQueryFailed
	default:
		return errs.KindQueryFailed
	}
}
