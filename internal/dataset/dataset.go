// Package dataset defines the data access capability consumed by the query
// engine: a connection that resolves named tables into composable table
// expressions supporting filters, equality joins, grouped aggregation,
// sorting, and row limits.
//
// All layers above this package talk only to these interfaces and never
// import the postgres, mysql, or memory packages directly. Drivers register
// themselves under a Kind; callers blank-import the drivers they need:
//
//	import (
//	    "github.com/ai4data/dazense/internal/dataset"
//	    _ "github.com/ai4data/dazense/internal/dataset/postgres"
//	)
//
//	conn, err := dataset.Open(ctx, cfg)
//	if err != nil { ... }
//	defer conn.Close()
//
//	tbl, err := conn.Table(ctx, "orders", "main")
package dataset

import "context"

// Conn is a live connection to one backing data source.
// A Conn is opened once, reused for the life of its owner, and never
// shared across unrelated owners.
type Conn interface {
	// Table resolves a named table, optionally within a named schema,
	// into a table expression. Resolution is lazy for SQL backends;
	// an unknown table surfaces on Execute, not here.
	Table(ctx context.Context, name, schema string) (Table, error)

	// Ping verifies the data source is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection.
	Close()
}

// Table is an immutable table expression. Every method returns a new
// expression; the receiver is never modified, so partial pipelines can be
// shared safely. Composition mistakes (joining tables from different
// connections, aggregating twice) are reported by Execute.
type Table interface {
	// Filter restricts rows to those satisfying the predicate.
	// Successive filters combine as a conjunction.
	Filter(p Predicate) Table

	// Join inner-joins the related table on
	// base[foreignKey] == related[relatedKey]. The alias becomes the
	// qualifier under which Field can address the related table's columns.
	Join(alias string, related Table, foreignKey, relatedKey string) Table

	// Aggregate groups by the given fields and computes the named
	// aggregates per group. With no group fields it produces a single
	// ungrouped row. With no aggregates it produces distinct group rows.
	Aggregate(groups []Field, aggs []Aggregate) Table

	// OrderBy sorts by the given keys in listed order (first is primary).
	OrderBy(keys ...SortKey) Table

	// Limit truncates the result to at most n rows, after ordering.
	Limit(n int) Table

	// Execute runs the assembled expression and returns all result rows.
	Execute(ctx context.Context) ([]Row, error)
}

// Row is a single result row keyed by output column name.
type Row map[string]any

// CompareOp is a closed set of predicate operators. Adding a member
// requires updating every switch over CompareOp; the compiler flags the
// SQL generator and memory evaluator via their default-error branches.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn    // value must be a sequence
	OpNotIn // value must be a sequence
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not_in"
	default:
		return "invalid"
	}
}

// Predicate is a single scalar or set-membership condition on a column of
// the expression's base table.
type Predicate struct {
	Column string
	Op     CompareOp
	Value  any
}

// AggKind is the closed set of aggregate constructions.
type AggKind int

const (
	AggCount AggKind = iota // row count; Column is ignored
	AggCountDistinct
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (k AggKind) String() string {
	switch k {
	case AggCount:
		return "count"
	case AggCountDistinct:
		return "count_distinct"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	default:
		return "invalid"
	}
}

// Aggregate names one aggregate output column.
type Aggregate struct {
	Kind   AggKind
	Column string // source column on the base table; unused for AggCount
	Alias  string // output column name
}

// Field names one grouping column. Qualifier selects the table the column
// lives on: empty for the base table, otherwise the alias given to a Join.
type Field struct {
	Qualifier string
	Column    string
	Alias     string // output column name
}

// SortKey orders results by an output column.
type SortKey struct {
	Column     string
	Descending bool
}
