// Package engine translates metric queries against a semantic catalog
// into dataset expressions and executes them.
//
// One Engine serves one logical request: it is bound to a catalog and a
// set of database configurations, opens connections lazily through an
// injected Connector, and caches them for its own lifetime only. It is
// not safe for concurrent use; callers construct a fresh Engine per
// inbound request.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/errs"
	"github.com/ai4data/dazense/internal/logger"
	"github.com/ai4data/dazense/internal/semantic"
)

// joinSeparator splits a dimension path into a join alias and a field
// on the related model, e.g. "customer.first_name".
const joinSeparator = "."

// Connector opens a connection for a database configuration. The
// default is dataset.Open; tests inject fakes.
type Connector func(ctx context.Context, cfg dataset.Config) (dataset.Conn, error)

// Engine resolves metric queries against one catalog and one set of
// database configurations.
type Engine struct {
	catalog   *semantic.Catalog
	databases map[string]dataset.Config
	connect   Connector
	conns     map[string]dataset.Conn
	log       *logger.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithConnector replaces the default connection opener.
func WithConnector(c Connector) Option {
	return func(e *Engine) { e.connect = c }
}

// WithLogger attaches a logger. Engines log at debug level only.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an Engine over catalog and databases.
func New(catalog *semantic.Catalog, databases []dataset.Config, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		databases: make(map[string]dataset.Config, len(databases)),
		connect:   dataset.Open,
		conns:     make(map[string]dataset.Conn),
		log:       logger.Discard(),
	}
	for _, cfg := range databases {
		e.databases[cfg.Name] = cfg
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases every connection the engine opened.
func (e *Engine) Close() {
	for name, conn := range e.conns {
		conn.Close()
		delete(e.conns, name)
	}
}

// --- query pipeline ---

// Query runs one metric query: model resolution, connection selection,
// join resolution, filters, aggregation, ordering, limit, execution,
// and value normalization, in that order.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	model, err := e.catalog.GetModel(req.Model)
	if err != nil {
		return nil, err
	}
	if len(req.Measures) == 0 && len(req.Dimensions) == 0 {
		return nil, errs.New(errs.KindInvalidQuery,
			"query must request at least one measure or dimension")
	}

	table, err := e.modelTable(ctx, model)
	if err != nil {
		return nil, err
	}

	table, err = e.applyJoins(ctx, model, req.Model, req.Dimensions, table)
	if err != nil {
		return nil, err
	}

	table, err = applyFilters(table, req.Filters)
	if err != nil {
		return nil, err
	}

	groups, columns, err := resolveDimensions(model, req.Dimensions)
	if err != nil {
		return nil, err
	}
	aggs, err := resolveMeasures(model, req.Measures)
	if err != nil {
		return nil, err
	}
	for _, agg := range aggs {
		columns = append(columns, agg.Alias)
	}
	table = table.Aggregate(groups, aggs)

	if len(req.OrderBy) > 0 {
		keys := make([]dataset.SortKey, len(req.OrderBy))
		for i, o := range req.OrderBy {
			keys[i] = dataset.SortKey{Column: o.Column, Descending: !o.ascending()}
		}
		table = table.OrderBy(keys...)
	}
	if req.Limit != nil {
		table = table.Limit(*req.Limit)
	}

	rows, err := table.Execute(ctx)
	if err != nil {
		return nil, err
	}

	e.log.With().Str("model", req.Model).Int("rows", len(rows)).Logger().
		Debug("metric query executed")

	return &Result{Columns: columns, Rows: NormalizeRows(rows)}, nil
}

// modelTable resolves the model's database and returns its base table
// handle on a (possibly cached) connection.
func (e *Engine) modelTable(ctx context.Context, model *semantic.Model) (dataset.Table, error) {
	dbName, err := e.ResolveDatabase(model)
	if err != nil {
		return nil, err
	}
	conn, err := e.Connection(ctx, dbName)
	if err != nil {
		return nil, err
	}
	return conn.Table(ctx, model.Table, model.SchemaName)
}

// ResolveDatabase picks the database a model queries against: the
// model's own pin if set, otherwise the sole configured database.
func (e *Engine) ResolveDatabase(model *semantic.Model) (string, error) {
	if model.Database != "" {
		return model.Database, nil
	}
	if len(e.databases) == 1 {
		for name := range e.databases {
			return name, nil
		}
	}
	return "", errs.NotFound(errs.KindAmbiguousDatabase,
		fmt.Sprintf("model %q does not pin a database and %d are configured",
			model.Table, len(e.databases)),
		e.databaseNames())
}

// Connection returns the cached connection for name, opening it on
// first use. Open failures are fatal for the current request.
func (e *Engine) Connection(ctx context.Context, name string) (dataset.Conn, error) {
	if conn, ok := e.conns[name]; ok {
		return conn, nil
	}
	cfg, ok := e.databases[name]
	if !ok {
		return nil, errs.NotFound(errs.KindDatabaseNotFound,
			fmt.Sprintf("database %q is not configured", name),
			e.databaseNames())
	}
	conn, err := e.connect(ctx, cfg)
	if err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindConnectionFailed,
			fmt.Sprintf("opening database %q", name), err)
	}
	e.conns[name] = conn
	return conn, nil
}

func (e *Engine) databaseNames() []string {
	names := make([]string, 0, len(e.databases))
	for name := range e.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyJoins attaches one join per distinct alias referenced by the
// requested dimension paths. Deeper paths ("a.b.field") are rejected.
func (e *Engine) applyJoins(ctx context.Context, model *semantic.Model, modelName string, dimensions []string, table dataset.Table) (dataset.Table, error) {
	seen := make(map[string]bool)
	for _, dim := range dimensions {
		if !strings.Contains(dim, joinSeparator) {
			continue
		}
		if strings.Count(dim, joinSeparator) > 1 {
			return nil, errs.Newf(errs.KindInvalidQuery,
				"dimension %q uses a chained join path; only single-hop joins are supported", dim)
		}
		alias, _, _ := strings.Cut(dim, joinSeparator)
		if seen[alias] {
			continue
		}
		seen[alias] = true

		join, ok := model.Joins[alias]
		if !ok {
			return nil, errs.NotFound(errs.KindJoinNotFound,
				fmt.Sprintf("join %q is not defined on model %q", alias, modelName),
				model.JoinNames())
		}
		target, err := e.catalog.GetModel(join.ToModel)
		if err != nil {
			return nil, err
		}
		targetTable, err := e.modelTable(ctx, target)
		if err != nil {
			return nil, err
		}
		table = table.Join(alias, targetTable, join.ForeignKey, join.RelatedKey)
	}
	return table, nil
}

// applyFilters ANDs every clause onto the table in listed order.
func applyFilters(table dataset.Table, filters []Filter) (dataset.Table, error) {
	for _, f := range filters {
		op, err := parseOperator(f.Operator)
		if err != nil {
			return nil, err
		}
		table = table.Filter(dataset.Predicate{Column: f.Column, Op: op, Value: f.Value})
	}
	return table, nil
}

// resolveDimensions maps requested dimension names to grouping fields
// and their output column names. Plain names go through the model's
// dimension map; alias-qualified names address the joined table
// directly and flatten to alias_field.
func resolveDimensions(model *semantic.Model, dimensions []string) ([]dataset.Field, []string, error) {
	groups := make([]dataset.Field, 0, len(dimensions))
	columns := make([]string, 0, len(dimensions))
	for _, name := range dimensions {
		if alias, field, ok := strings.Cut(name, joinSeparator); ok {
			label := alias + "_" + field
			groups = append(groups, dataset.Field{Qualifier: alias, Column: field, Alias: label})
			columns = append(columns, label)
			continue
		}
		dim, ok := model.Dimensions[name]
		if !ok {
			return nil, nil, errs.NotFound(errs.KindDimensionNotFound,
				fmt.Sprintf("dimension %q is not defined", name),
				model.DimensionNames())
		}
		groups = append(groups, dataset.Field{Column: dim.Column, Alias: name})
		columns = append(columns, name)
	}
	return groups, columns, nil
}

// resolveMeasures maps requested measure names to aggregates labeled
// with the measure name.
func resolveMeasures(model *semantic.Model, measures []string) ([]dataset.Aggregate, error) {
	aggs := make([]dataset.Aggregate, 0, len(measures))
	for _, name := range measures {
		measure, ok := model.Measures[name]
		if !ok {
			return nil, errs.NotFound(errs.KindMeasureNotFound,
				fmt.Sprintf("measure %q is not defined", name),
				model.MeasureNames())
		}
		kind, err := aggKind(measure.Type)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, dataset.Aggregate{Kind: kind, Column: measure.Column, Alias: name})
	}
	return aggs, nil
}

func aggKind(t semantic.AggregationType) (dataset.AggKind, error) {
	switch t {
	case semantic.AggregationCount:
		return dataset.AggCount, nil
	case semantic.AggregationCountDistinct:
		return dataset.AggCountDistinct, nil
	case semantic.AggregationSum:
		return dataset.AggSum, nil
	case semantic.AggregationAvg:
		return dataset.AggAvg, nil
	case semantic.AggregationMin:
		return dataset.AggMin, nil
	case semantic.AggregationMax:
		return dataset.AggMax, nil
	default:
		return 0, errs.Newf(errs.KindMeasureValidation,
			"unsupported aggregation type %q", string(t))
	}
}

func parseOperator(s string) (dataset.CompareOp, error) {
	switch s {
	case "", "eq":
		return dataset.OpEq, nil
	case "ne":
		return dataset.OpNe, nil
	case "gt":
		return dataset.OpGt, nil
	case "gte":
		return dataset.OpGte, nil
	case "lt":
		return dataset.OpLt, nil
	case "lte":
		return dataset.OpLte, nil
	case "in":
		return dataset.OpIn, nil
	case "not_in":
		return dataset.OpNotIn, nil
	default:
		return 0, errs.Newf(errs.KindUnsupportedFilterOperator,
			"unsupported filter operator %q", s)
	}
}

// --- model introspection ---

// DimensionInfo describes one dimension of a model.
type DimensionInfo struct {
	Column      string `json:"column"`
	Description string `json:"description,omitempty"`
}

// MeasureInfo describes one measure of a model.
type MeasureInfo struct {
	Type        string `json:"type"`
	Column      string `json:"column,omitempty"`
	Description string `json:"description,omitempty"`
}

// JoinInfo describes one join of a model.
type JoinInfo struct {
	ToModel     string `json:"to_model"`
	ForeignKey  string `json:"foreign_key"`
	RelatedKey  string `json:"related_key"`
	Cardinality string `json:"type"`
}

// ModelInfo is query-free metadata about one model. Dimensions,
// measures, and joins are keyed by their catalog names.
type ModelInfo struct {
	Name          string                   `json:"name"`
	Table         string                   `json:"table"`
	Schema        string                   `json:"schema,omitempty"`
	Database      string                   `json:"database,omitempty"`
	Description   string                   `json:"description,omitempty"`
	PrimaryKey    string                   `json:"primary_key,omitempty"`
	TimeDimension string                   `json:"time_dimension,omitempty"`
	Dimensions    map[string]DimensionInfo `json:"dimensions"`
	Measures      map[string]MeasureInfo   `json:"measures"`
	Joins         map[string]JoinInfo      `json:"joins"`
}

// ModelInfo describes a model without touching any connection.
func (e *Engine) ModelInfo(name string) (*ModelInfo, error) {
	model, err := e.catalog.GetModel(name)
	if err != nil {
		return nil, err
	}

	dims := make(map[string]DimensionInfo, len(model.Dimensions))
	for dn, d := range model.Dimensions {
		dims[dn] = DimensionInfo{Column: d.Column, Description: d.Description}
	}
	measures := make(map[string]MeasureInfo, len(model.Measures))
	for mn, m := range model.Measures {
		measures[mn] = MeasureInfo{
			Type:        string(m.Type),
			Column:      m.Column,
			Description: m.Description,
		}
	}
	joins := make(map[string]JoinInfo, len(model.Joins))
	for jn, j := range model.Joins {
		joins[jn] = JoinInfo{
			ToModel:     j.ToModel,
			ForeignKey:  j.ForeignKey,
			RelatedKey:  j.RelatedKey,
			Cardinality: string(j.Cardinality),
		}
	}

	return &ModelInfo{
		Name:          name,
		Table:         model.Table,
		Schema:        model.SchemaName,
		Database:      model.Database,
		Description:   model.Description,
		PrimaryKey:    model.PrimaryKey,
		TimeDimension: model.TimeDimension,
		Dimensions:    dims,
		Measures:      measures,
		Joins:         joins,
	}, nil
}

// ListModels names every model in the catalog, sorted.
func (e *Engine) ListModels() []string {
	return e.catalog.ListModels()
}
