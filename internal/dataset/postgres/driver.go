// Package postgres implements the dataset capability on PostgreSQL,
// backed by pgxpool. Import for side effects to register the driver.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/errs"
)

func init() {
	dataset.Register(dataset.KindPostgres, func(ctx context.Context, cfg dataset.Config) (dataset.Conn, error) {
		return New(ctx, cfg)
	})
}

// Conn is a PostgreSQL implementation of dataset.Conn.
// It is safe for concurrent use by multiple goroutines.
type Conn struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a Conn.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg dataset.Config) (*Conn, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionFailed, "failed to create connection pool", err)
	}

	c := &Conn{pool: pool}

	if err := c.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return c, nil
}

// --- dataset.Conn implementation ---

// Table returns a lazily evaluated expression over schema.name.
func (c *Conn) Table(_ context.Context, name, schema string) (dataset.Table, error) {
	return dataset.NewSQLTable(c, name, schema), nil
}

// Ping verifies the database is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (c *Conn) Close() {
	c.pool.Close()
}

// --- dataset.SQLClient implementation ---

func (c *Conn) QueryRows(ctx context.Context, sql string, args []any) ([]dataset.Row, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return dataset.ScanRows(&pgxRows{rows: rows})
}

func (c *Conn) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// --- dataset.Inspector implementation ---

// ListTables returns all user-defined table names in the given schema.
func (c *Conn) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.pool.Query(ctx, q, schema)
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

// InspectTable fetches column, primary key, and foreign key info for one table.
func (c *Conn) InspectTable(ctx context.Context, schema, table string) (*dataset.TableSchema, error) {
	columns, err := c.fetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	pks, err := c.fetchPrimaryKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	fks, err := c.fetchForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	pkSet := toSet(pks)
	for i := range columns {
		columns[i].Primary = pkSet[columns[i].Name]
	}

	return &dataset.TableSchema{
		Schema:      schema,
		Name:        table,
		Columns:     columns,
		PrimaryKey:  pks,
		ForeignKeys: fks,
	}, nil
}

func (c *Conn) fetchColumns(ctx context.Context, schema, table string) ([]dataset.ColumnSchema, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name   = $2
		ORDER BY ordinal_position`

	rows, err := c.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []dataset.ColumnSchema
	for rows.Next() {
		var col dataset.ColumnSchema
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (c *Conn) fetchPrimaryKeys(ctx context.Context, schema, table string) ([]string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2
		ORDER BY kcu.ordinal_position`

	rows, err := c.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch primary keys")
	}
	defer rows.Close()

	var pks []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, mapError(err, "failed to scan primary key")
		}
		pks = append(pks, s)
	}
	return pks, rows.Err()
}

func (c *Conn) fetchForeignKeys(ctx context.Context, schema, table string) ([]dataset.ForeignKeyRef, error) {
	const q = `
		SELECT kcu.column_name,
		       ccu.table_name  AS ref_table,
		       ccu.column_name AS ref_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2`

	rows, err := c.pool.Query(ctx, q, schema, table)
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

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy dataset.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.KindQueryFailed, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.KindQueryFailed
		// Class 08: connection errors
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			kind = errs.KindConnectionFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.KindConnectionFailed, msg, err)
}

// --- helpers ---

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
