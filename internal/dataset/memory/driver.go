// Package memory implements the dataset capability over in-process tables.
// It exists for tests, local experiments, and seeded demo projects; it
// executes the same filter/join/aggregate/sort/limit pipeline a SQL driver
// delegates to its backend.
//
// Stores are named: Open resolves cfg.DSN against the process-wide store
// registry, so a config entry `kind: memory, dsn: demo` attaches to the
// store created by Shared("demo"). Tests normally bypass Open and hand a
// *Store to the engine directly through its connector.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/errs"
)

func init() {
	dataset.Register(dataset.KindMemory, func(_ context.Context, cfg dataset.Config) (dataset.Conn, error) {
		return Shared(cfg.DSN), nil
	})
}

var (
	sharedMu sync.Mutex
	shared   = make(map[string]*Store)
)

// Shared returns the process-wide store registered under name, creating
// it on first use.
func Shared(name string) *Store {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	s, ok := shared[name]
	if !ok {
		s = NewStore()
		shared[name] = s
	}
	return s
}

// Store holds named in-memory tables and implements dataset.Conn.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]dataset.Row
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string][]dataset.Row)}
}

// AddTable registers rows under schema.name, replacing any previous table.
// Rows are stored as given; callers must not mutate them afterwards.
func (s *Store) AddTable(schema, name string, rows []dataset.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[tableKey(schema, name)] = rows
}

func tableKey(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// --- dataset.Conn implementation ---

func (s *Store) Table(_ context.Context, name, schema string) (dataset.Table, error) {
	return &memTable{store: s, schema: schema, name: name}, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

func (s *Store) fetch(schema, name string) ([]dataset.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[tableKey(schema, name)]
	if !ok {
		return nil, errs.Newf(errs.KindQueryFailed,
			"table %q not found in memory store", tableKey(schema, name))
	}
	return rows, nil
}

// --- dataset.Inspector implementation ---

// ListTables returns the names of tables registered under schema.
func (s *Store) ListTables(_ context.Context, schema string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := ""
	if schema != "" {
		prefix = schema + "."
	}
	var names []string
	for key := range s.tables {
		if strings.HasPrefix(key, prefix) {
			names = append(names, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// InspectTable derives a column schema from the table's first row.
// Data types are reported with SQL-ish names so scaffolding treats the
// store like any relational source.
func (s *Store) InspectTable(_ context.Context, schema, table string) (*dataset.TableSchema, error) {
	rows, err := s.fetch(schema, table)
	if err != nil {
		return nil, err
	}

	ts := &dataset.TableSchema{Schema: schema, Name: table}
	if len(rows) == 0 {
		return ts, nil
	}

	names := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		names = append(names, col)
	}
	sort.Strings(names)
	for _, col := range names {
		ts.Columns = append(ts.Columns, dataset.ColumnSchema{
			Name:     col,
			DataType: sqlTypeName(rows[0][col]),
			Nullable: true,
		})
	}
	return ts, nil
}

func sqlTypeName(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "bigint"
	case float32, float64:
		return "double precision"
	case bool:
		return "boolean"
	default:
		return "varchar"
	}
}

// --- helpers shared with the table expression ---

func groupKey(parts []any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return strings.Join(strs, "\x00")
}
