package semantic

import (
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ai4data/dazense/internal/dataset"
)

// Scaffold drafts a catalog from an introspected schema: one model per
// table, every column as a dimension, a row-count measure, a sum measure
// per non-key numeric column, and a many_to_one join per foreign key.
// The draft is a starting point for hand editing, not a finished model.
func Scaffold(info *dataset.SchemaInfo) *Catalog {
	models := make(map[string]*Model, len(info.Tables))

	for _, table := range info.Tables {
		m := &Model{
			Table:      table.Name,
			SchemaName: schemaOrDefault(table.Schema),
			Dimensions: make(map[string]Dimension, len(table.Columns)),
			Measures:   map[string]Measure{"count": {Type: AggregationCount}},
			Joins:      make(map[string]Join, len(table.ForeignKeys)),
		}
		if len(table.PrimaryKey) == 1 {
			m.PrimaryKey = table.PrimaryKey[0]
		}

		keyCols := make(map[string]bool, len(table.ForeignKeys)+len(table.PrimaryKey))
		for _, pk := range table.PrimaryKey {
			keyCols[pk] = true
		}
		for _, fk := range table.ForeignKeys {
			keyCols[fk.Column] = true
		}

		for _, col := range table.Columns {
			m.Dimensions[col.Name] = Dimension{Column: col.Name}
			if numericType(col.DataType) && !keyCols[col.Name] {
				m.Measures["total_"+col.Name] = Measure{Type: AggregationSum, Column: col.Name}
			}
		}

		for _, fk := range table.ForeignKeys {
			m.Joins[fk.RefTable] = Join{
				ToModel:     fk.RefTable,
				ForeignKey:  fk.Column,
				RelatedKey:  fk.RefColumn,
				Cardinality: ManyToOne,
			}
		}

		models[table.Name] = m
	}

	// Drop joins pointing at tables outside the introspected schema, so
	// the draft always validates.
	for _, m := range models {
		for alias, j := range m.Joins {
			if _, ok := models[j.ToModel]; !ok {
				delete(m.Joins, alias)
			}
		}
	}

	return &Catalog{models: models}
}

// MarshalDocument renders a catalog back into document bytes, suitable
// for writing to the project's DocumentPath.
func MarshalDocument(c *Catalog) ([]byte, error) {
	return yaml.Marshal(document{Models: c.models})
}

func schemaOrDefault(schema string) string {
	if schema == "" {
		return DefaultSchema
	}
	return schema
}

func numericType(dataType string) bool {
	t := strings.ToLower(dataType)
	for _, prefix := range []string{"int", "bigint", "smallint", "decimal", "numeric", "double", "float", "real", "money"} {
		if strings.Contains(t, prefix) {
			return true
		}
	}
	return false
}
