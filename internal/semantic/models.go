// Package semantic holds the declarative model catalog: named models over
// physical tables, each exposing dimensions, measures, and one-hop joins
// under stable names. The catalog is parsed from a YAML document, validated
// eagerly, and immutable afterwards.
package semantic

import (
	"fmt"
	"sort"

	"github.com/ai4data/dazense/internal/errs"
)

// AggregationType is the closed set of measure aggregations.
type AggregationType string

const (
	AggregationCount         AggregationType = "count"
	AggregationCountDistinct AggregationType = "count_distinct"
	AggregationSum           AggregationType = "sum"
	AggregationAvg           AggregationType = "avg"
	AggregationMin           AggregationType = "min"
	AggregationMax           AggregationType = "max"
)

// Valid reports whether t is a member of the closed set.
func (t AggregationType) Valid() bool {
	switch t {
	case AggregationCount, AggregationCountDistinct, AggregationSum,
		AggregationAvg, AggregationMin, AggregationMax:
		return true
	}
	return false
}

// RequiresColumn reports whether measures of this type must name a source
// column. Only count aggregates over rows rather than a column.
func (t AggregationType) RequiresColumn() bool {
	return t != AggregationCount
}

// Cardinality describes a join relationship. It is metadata for
// consumers; join execution is always an inner equality join.
type Cardinality string

const (
	ManyToOne Cardinality = "many_to_one"
	OneToOne  Cardinality = "one_to_one"
	OneToMany Cardinality = "one_to_many"
)

// Valid reports whether c is a member of the closed set.
func (c Cardinality) Valid() bool {
	switch c {
	case ManyToOne, OneToOne, OneToMany:
		return true
	}
	return false
}

// Dimension exposes one column under a stable name.
type Dimension struct {
	Column      string `yaml:"column"`
	Description string `yaml:"description,omitempty"`
}

// Measure names an aggregation over a column (or the row count).
type Measure struct {
	Type        AggregationType `yaml:"type"`
	Column      string          `yaml:"column,omitempty"`
	Description string          `yaml:"description,omitempty"`
}

// Join declares a one-hop equality relationship to another model.
type Join struct {
	ToModel     string      `yaml:"to_model"`
	ForeignKey  string      `yaml:"foreign_key"`
	RelatedKey  string      `yaml:"related_key"`
	Cardinality Cardinality `yaml:"type,omitempty"`
}

// Model describes one queryable table plus its dimensions, measures, and
// joins. Map keys double as result column aliases.
type Model struct {
	Table         string               `yaml:"table"`
	SchemaName    string               `yaml:"schema,omitempty"`
	Database      string               `yaml:"database,omitempty"`
	Description   string               `yaml:"description,omitempty"`
	PrimaryKey    string               `yaml:"primary_key,omitempty"`
	TimeDimension string               `yaml:"time_dimension,omitempty"`
	Dimensions    map[string]Dimension `yaml:"dimensions,omitempty"`
	Measures      map[string]Measure   `yaml:"measures,omitempty"`
	Joins         map[string]Join      `yaml:"joins,omitempty"`
}

// DimensionNames returns the model's dimension names, sorted.
func (m *Model) DimensionNames() []string {
	return sortedKeys(m.Dimensions)
}

// MeasureNames returns the model's measure names, sorted.
func (m *Model) MeasureNames() []string {
	return sortedKeys(m.Measures)
}

// JoinNames returns the model's join aliases, sorted.
func (m *Model) JoinNames() []string {
	return sortedKeys(m.Joins)
}

// Catalog is the full set of loaded models for one project.
// It is immutable after construction.
type Catalog struct {
	models map[string]*Model
}

// GetModel looks a model up by exact name. The returned error lists every
// valid model name.
func (c *Catalog) GetModel(name string) (*Model, error) {
	m, ok := c.models[name]
	if !ok {
		return nil, errs.NotFound(errs.KindModelNotFound,
			fmt.Sprintf("model %q not found", name), c.ListModels())
	}
	return m, nil
}

// ListModels returns all model names, sorted.
func (c *Catalog) ListModels() []string {
	return sortedKeys(c.models)
}

// Len returns the number of models in the catalog.
func (c *Catalog) Len() int {
	return len(c.models)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
