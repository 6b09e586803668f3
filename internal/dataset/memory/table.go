package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/errs"
)

type memJoin struct {
	alias      string
	schema     string
	name       string
	foreignKey string
	relatedKey string
}

// memTable is an immutable expression evaluated eagerly on Execute.
// Joined columns live in merged rows under "alias.column" keys, matching
// the qualifier addressing of dataset.Field.
type memTable struct {
	store      *Store
	schema     string
	name       string
	joins      []memJoin
	where      []dataset.Predicate
	aggregated bool
	groups     []dataset.Field
	aggs       []dataset.Aggregate
	order      []dataset.SortKey
	limit      *int
	err        error
}

func (t *memTable) clone() *memTable {
	c := *t
	c.joins = append([]memJoin(nil), t.joins...)
	c.where = append([]dataset.Predicate(nil), t.where...)
	c.groups = append([]dataset.Field(nil), t.groups...)
	c.aggs = append([]dataset.Aggregate(nil), t.aggs...)
	c.order = append([]dataset.SortKey(nil), t.order...)
	return &c
}

func (t *memTable) fail(err error) dataset.Table {
	c := t.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

func (t *memTable) Filter(p dataset.Predicate) dataset.Table {
	c := t.clone()
	c.where = append(c.where, p)
	return c
}

func (t *memTable) Join(alias string, related dataset.Table, foreignKey, relatedKey string) dataset.Table {
	rt, ok := related.(*memTable)
	if !ok || rt.store != t.store {
		return t.fail(errs.New(errs.KindQueryFailed,
			"cannot join tables from different connections"))
	}
	c := t.clone()
	c.joins = append(c.joins, memJoin{
		alias:      alias,
		schema:     rt.schema,
		name:       rt.name,
		foreignKey: foreignKey,
		relatedKey: relatedKey,
	})
	return c
}

func (t *memTable) Aggregate(groups []dataset.Field, aggs []dataset.Aggregate) dataset.Table {
	if t.aggregated {
		return t.fail(errs.New(errs.KindQueryFailed, "expression is already aggregated"))
	}
	c := t.clone()
	c.aggregated = true
	c.groups = append([]dataset.Field(nil), groups...)
	c.aggs = append([]dataset.Aggregate(nil), aggs...)
	return c
}

func (t *memTable) OrderBy(keys ...dataset.SortKey) dataset.Table {
	c := t.clone()
	c.order = append(c.order, keys...)
	return c
}

func (t *memTable) Limit(n int) dataset.Table {
	c := t.clone()
	c.limit = &n
	return c
}

func (t *memTable) Execute(_ context.Context) ([]dataset.Row, error) {
	if t.err != nil {
		return nil, t.err
	}

	rows, err := t.store.fetch(t.schema, t.name)
	if err != nil {
		return nil, err
	}

	// Joins multiply rows; copy lazily so the stored tables stay untouched.
	for _, j := range t.joins {
		rows, err = t.applyJoin(rows, j)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range t.where {
		rows, err = applyPredicate(rows, p)
		if err != nil {
			return nil, err
		}
	}

	out := rows
	if t.aggregated {
		out, err = t.aggregate(rows)
		if err != nil {
			return nil, err
		}
	}

	sortRows(out, t.order)

	if t.limit != nil && len(out) > *t.limit {
		out = out[:*t.limit]
	}
	return out, nil
}

// applyJoin performs an inner hash join, merging matched related rows into
// each base row under "alias.column" keys.
func (t *memTable) applyJoin(rows []dataset.Row, j memJoin) ([]dataset.Row, error) {
	related, err := t.store.fetch(j.schema, j.name)
	if err != nil {
		return nil, err
	}

	index := make(map[string][]dataset.Row, len(related))
	for _, r := range related {
		key := fmt.Sprint(r[j.relatedKey])
		index[key] = append(index[key], r)
	}

	var out []dataset.Row
	for _, base := range rows {
		for _, match := range index[fmt.Sprint(base[j.foreignKey])] {
			merged := make(dataset.Row, len(base)+len(match))
			for k, v := range base {
				merged[k] = v
			}
			for k, v := range match {
				merged[j.alias+"."+k] = v
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

func applyPredicate(rows []dataset.Row, p dataset.Predicate) ([]dataset.Row, error) {
	out := make([]dataset.Row, 0, len(rows))
	for _, row := range rows {
		ok, err := evalPredicate(row, p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func evalPredicate(row dataset.Row, p dataset.Predicate) (bool, error) {
	v := row[p.Column]

	switch p.Op {
	case dataset.OpEq:
		return valuesEqual(v, p.Value), nil
	case dataset.OpNe:
		return !valuesEqual(v, p.Value), nil
	case dataset.OpGt, dataset.OpGte, dataset.OpLt, dataset.OpLte:
		c, ok := compareOrdered(v, p.Value)
		if !ok {
			return false, nil
		}
		switch p.Op {
		case dataset.OpGt:
			return c > 0, nil
		case dataset.OpGte:
			return c >= 0, nil
		case dataset.OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case dataset.OpIn, dataset.OpNotIn:
		values, err := dataset.Sequence(p.Value)
		if err != nil {
			return false, errs.Newf(errs.KindInvalidQuery,
				"operator %q requires a sequence value, got %T", p.Op, p.Value)
		}
		member := false
		for _, candidate := range values {
			if valuesEqual(v, candidate) {
				member = true
				break
			}
		}
		if p.Op == dataset.OpNotIn {
			return !member, nil
		}
		return member, nil
	default:
		return false, errs.Newf(errs.KindUnsupportedFilterOperator,
			"unsupported filter operator %q", p.Op)
	}
}

// aggregate groups rows and computes every aggregate per group, preserving
// first-seen group order.
func (t *memTable) aggregate(rows []dataset.Row) ([]dataset.Row, error) {
	if len(t.groups) == 0 {
		out := make(dataset.Row, len(t.aggs))
		for _, a := range t.aggs {
			v, err := computeAggregate(rows, a)
			if err != nil {
				return nil, err
			}
			out[a.Alias] = v
		}
		return []dataset.Row{out}, nil
	}

	grouped := make(map[string][]dataset.Row)
	var order []string
	values := make(map[string][]any)

	for _, row := range rows {
		parts := make([]any, len(t.groups))
		for i, g := range t.groups {
			parts[i] = fieldValue(row, g)
		}
		key := groupKey(parts)
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
			values[key] = parts
		}
		grouped[key] = append(grouped[key], row)
	}

	out := make([]dataset.Row, 0, len(order))
	for _, key := range order {
		row := make(dataset.Row, len(t.groups)+len(t.aggs))
		for i, g := range t.groups {
			row[g.Alias] = values[key][i]
		}
		for _, a := range t.aggs {
			v, err := computeAggregate(grouped[key], a)
			if err != nil {
				return nil, err
			}
			row[a.Alias] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func fieldValue(row dataset.Row, f dataset.Field) any {
	if f.Qualifier == "" {
		return row[f.Column]
	}
	return row[f.Qualifier+"."+f.Column]
}

func computeAggregate(rows []dataset.Row, a dataset.Aggregate) (any, error) {
	switch a.Kind {
	case dataset.AggCount:
		return int64(len(rows)), nil

	case dataset.AggCountDistinct:
		seen := make(map[string]bool)
		for _, row := range rows {
			seen[fmt.Sprint(row[a.Column])] = true
		}
		return int64(len(seen)), nil

	case dataset.AggSum:
		var total float64
		for _, row := range rows {
			f, ok := toFloat(row[a.Column])
			if !ok {
				return nil, errs.Newf(errs.KindQueryFailed,
					"sum over non-numeric column %q", a.Column)
			}
			total += f
		}
		return total, nil

	case dataset.AggAvg:
		if len(rows) == 0 {
			return nil, nil
		}
		var total float64
		for _, row := range rows {
			f, ok := toFloat(row[a.Column])
			if !ok {
				return nil, errs.Newf(errs.KindQueryFailed,
					"avg over non-numeric column %q", a.Column)
			}
			total += f
		}
		return total / float64(len(rows)), nil

	case dataset.AggMin, dataset.AggMax:
		if len(rows) == 0 {
			return nil, nil
		}
		var best float64
		for i, row := range rows {
			f, ok := toFloat(row[a.Column])
			if !ok {
				return nil, errs.Newf(errs.KindQueryFailed,
					"%s over non-numeric column %q", a.Kind, a.Column)
			}
			if i == 0 || (a.Kind == dataset.AggMin && f < best) || (a.Kind == dataset.AggMax && f > best) {
				best = f
			}
		}
		return best, nil

	default:
		return nil, errs.Newf(errs.KindQueryFailed, "unknown aggregate kind %q", a.Kind)
	}
}

func sortRows(rows []dataset.Row, keys []dataset.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.Column], rows[j][k.Column])
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// --- value comparison ---

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareOrdered compares two values when both are numeric or both are
// strings; ok is false otherwise.
func compareOrdered(a, b any) (int, bool) {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		switch {
		case sa < sb:
			return -1, true
		case sa > sb:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// compareValues is the sort comparator: nils first, then numeric, string,
// and finally formatted fallback.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareOrdered(a, b); ok {
		return c
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
