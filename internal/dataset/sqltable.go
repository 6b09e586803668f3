package dataset

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/ai4data/dazense/internal/errs"
)

// SQLClient is the hook SQL-backed drivers supply to the shared table
// expression. Values are never interpolated into the SQL string; they always
// passed as args. Placeholder returns the dialect's parameter marker for
// the n-th argument (Postgres: $1, $2, …  MySQL: ?).
type SQLClient interface {
	QueryRows(ctx context.Context, sql string, args []any) ([]Row, error)
	Placeholder(n int) string
}

// NewSQLTable returns a table expression over schema.name that compiles to
// a single parameterized SELECT on Execute. Both the postgres and mysql
// drivers build on this; only connection handling and the placeholder
// style differ per driver.
func NewSQLTable(client SQLClient, name, schema string) Table {
	return &sqlTable{client: client, base: tableRef{schema: schema, name: name}}
}

type tableRef struct {
	schema string
	name   string
}

type sqlJoin struct {
	alias      string
	table      tableRef
	foreignKey string
	relatedKey string
}

// sqlTable accumulates an immutable SELECT description. Composition
// errors are held in err and surfaced by Execute.
type sqlTable struct {
	client     SQLClient
	base       tableRef
	joins      []sqlJoin
	where      []Predicate
	aggregated bool
	groups     []Field
	aggs       []Aggregate
	order      []SortKey
	limit      *int
	err        error
}

func (t *sqlTable) clone() *sqlTable {
	c := *t
	c.joins = append([]sqlJoin(nil), t.joins...)
	c.where = append([]Predicate(nil), t.where...)
	c.groups = append([]Field(nil), t.groups...)
	c.aggs = append([]Aggregate(nil), t.aggs...)
	c.order = append([]SortKey(nil), t.order...)
	return &c
}

func (t *sqlTable) fail(err error) Table {
	c := t.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

func (t *sqlTable) Filter(p Predicate) Table {
	c := t.clone()
	c.where = append(c.where, p)
	return c
}

func (t *sqlTable) Join(alias string, related Table, foreignKey, relatedKey string) Table {
	rt, ok := related.(*sqlTable)
	if !ok || rt.client != t.client {
		return t.fail(errs.New(errs.KindQueryFailed,
			"cannot join tables from different connections"))
	}
	if len(rt.joins) > 0 || rt.aggregated || len(rt.where) > 0 {
		return t.fail(errs.New(errs.KindQueryFailed,
			"join target must be a plain table reference"))
	}
	c := t.clone()
	c.joins = append(c.joins, sqlJoin{
		alias:      alias,
		table:      rt.base,
		foreignKey: foreignKey,
		relatedKey: relatedKey,
	})
	return c
}

func (t *sqlTable) Aggregate(groups []Field, aggs []Aggregate) Table {
	if t.aggregated {
		return t.fail(errs.New(errs.KindQueryFailed, "expression is already aggregated"))
	}
	c := t.clone()
	c.aggregated = true
	c.groups = append([]Field(nil), groups...)
	c.aggs = append([]Aggregate(nil), aggs...)
	return c
}

func (t *sqlTable) OrderBy(keys ...SortKey) Table {
	c := t.clone()
	c.order = append(c.order, keys...)
	return c
}

func (t *sqlTable) Limit(n int) Table {
	c := t.clone()
	c.limit = &n
	return c
}

func (t *sqlTable) Execute(ctx context.Context) ([]Row, error) {
	if t.err != nil {
		return nil, t.err
	}
	sql, args, err := t.build()
	if err != nil {
		return nil, err
	}
	return t.client.QueryRows(ctx, sql, args)
}

// build compiles the accumulated state into one SELECT statement.
func (t *sqlTable) build() (string, []any, error) {
	// Physical aliases: base is t0, joined tables t1, t2, … in join order.
	qualifiers := map[string]string{"": "t0"}
	for i, j := range t.joins {
		qualifiers[j.alias] = fmt.Sprintf("t%d", i+1)
	}

	var sb strings.Builder
	var args []any
	argIdx := 1

	next := func() string {
		ph := t.client.Placeholder(argIdx)
		argIdx++
		return ph
	}

	// --- SELECT list ---
	sb.WriteString("SELECT ")
	if t.aggregated {
		parts := make([]string, 0, len(t.groups)+len(t.aggs))
		for _, g := range t.groups {
			q, ok := qualifiers[g.Qualifier]
			if !ok {
				return "", nil, errs.Newf(errs.KindQueryFailed,
					"unknown table qualifier %q", g.Qualifier)
			}
			parts = append(parts, fmt.Sprintf("%s.%s AS %s", q, quoteIdent(g.Column), quoteIdent(g.Alias)))
		}
		for _, a := range t.aggs {
			expr, err := aggregateSQL(a, "t0")
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, fmt.Sprintf("%s AS %s", expr, quoteIdent(a.Alias)))
		}
		if len(parts) == 0 {
			return "", nil, errs.New(errs.KindQueryFailed, "aggregation produced no output columns")
		}
		sb.WriteString(strings.Join(parts, ", "))
	} else {
		sb.WriteString("t0.*")
	}

	// --- FROM / JOIN ---
	fmt.Fprintf(&sb, " FROM %s AS t0", qualifyTable(t.base))
	for i, j := range t.joins {
		fmt.Fprintf(&sb, " JOIN %s AS t%d ON t0.%s = t%d.%s",
			qualifyTable(j.table), i+1, quoteIdent(j.foreignKey), i+1, quoteIdent(j.relatedKey))
	}

	// --- WHERE ---
	if len(t.where) > 0 {
		parts := make([]string, 0, len(t.where))
		for _, p := range t.where {
			clause, err := predicateSQL(p, next, &args)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, clause)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	// --- GROUP BY ---
	if t.aggregated && len(t.groups) > 0 {
		ordinals := make([]string, len(t.groups))
		for i := range t.groups {
			ordinals[i] = fmt.Sprintf("%d", i+1)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(ordinals, ", "))
	}

	// --- ORDER BY ---
	if len(t.order) > 0 {
		parts := make([]string, len(t.order))
		for i, k := range t.order {
			dir := "ASC"
			if k.Descending {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", quoteIdent(k.Column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT ---
	if t.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %s", next())
		args = append(args, *t.limit)
	}

	return sb.String(), args, nil
}

// predicateSQL renders one predicate, appending its values to args.
func predicateSQL(p Predicate, next func() string, args *[]any) (string, error) {
	col := "t0." + quoteIdent(p.Column)

	switch p.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		*args = append(*args, p.Value)
		return fmt.Sprintf("%s %s %s", col, scalarOpSQL(p.Op), next()), nil

	case OpIn, OpNotIn:
		values, err := Sequence(p.Value)
		if err != nil {
			return "", errs.Newf(errs.KindInvalidQuery,
				"operator %q requires a sequence value, got %T", p.Op, p.Value)
		}
		// Empty set: IN matches nothing, NOT IN matches everything.
		if len(values) == 0 {
			if p.Op == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		phs := make([]string, len(values))
		for i, v := range values {
			*args = append(*args, v)
			phs[i] = next()
		}
		kw := "IN"
		if p.Op == OpNotIn {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, strings.Join(phs, ", ")), nil

	default:
		return "", errs.Newf(errs.KindUnsupportedFilterOperator,
			"unsupported filter operator %q", p.Op)
	}
}

func scalarOpSQL(op CompareOp) string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	}
	return ""
}

// aggregateSQL renders one aggregate over the base table.
func aggregateSQL(a Aggregate, baseQualifier string) (string, error) {
	col := baseQualifier + "." + quoteIdent(a.Column)
	switch a.Kind {
	case AggCount:
		return "COUNT(*)", nil
	case AggCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", col), nil
	case AggSum:
		return fmt.Sprintf("SUM(%s)", col), nil
	case AggAvg:
		return fmt.Sprintf("AVG(%s)", col), nil
	case AggMin:
		return fmt.Sprintf("MIN(%s)", col), nil
	case AggMax:
		return fmt.Sprintf("MAX(%s)", col), nil
	default:
		return "", errs.Newf(errs.KindQueryFailed, "unknown aggregate kind %q", a.Kind)
	}
}

// Sequence flattens a slice of any element type into []any. It is the
// shared "value must be a sequence" check for the in / not_in operators.
func Sequence(v any) ([]any, error) {
	if vs, ok := v.([]any); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("not a sequence: %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func qualifyTable(ref tableRef) string {
	if ref.schema == "" {
		return quoteIdent(ref.name)
	}
	return quoteIdent(ref.schema) + "." + quoteIdent(ref.name)
}

// quoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// MySQL accepts this with ANSI_QUOTES enabled, which the mysql driver
// requests in its DSN.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
