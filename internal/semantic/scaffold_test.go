package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4data/dazense/internal/dataset"
)

func sampleSchema() *dataset.SchemaInfo {
	return &dataset.SchemaInfo{
		Tables: []dataset.TableSchema{
			{
				Schema: "main",
				Name:   "orders",
				Columns: []dataset.ColumnSchema{
					{Name: "order_id", DataType: "bigint", Primary: true},
					{Name: "user_id", DataType: "bigint"},
					{Name: "status", DataType: "varchar"},
					{Name: "amount", DataType: "numeric(10,2)"},
				},
				PrimaryKey: []string{"order_id"},
				ForeignKeys: []dataset.ForeignKeyRef{
					{Column: "user_id", RefTable: "customers", RefColumn: "customer_id"},
					{Column: "promo_id", RefTable: "promotions", RefColumn: "promo_id"},
				},
			},
			{
				Schema: "main",
				Name:   "customers",
				Columns: []dataset.ColumnSchema{
					{Name: "customer_id", DataType: "bigint", Primary: true},
					{Name: "first_name", DataType: "varchar"},
				},
				PrimaryKey: []string{"customer_id"},
			},
		},
	}
}

func TestScaffold(t *testing.T) {
	catalog := Scaffold(sampleSchema())
	assert.Equal(t, []string{"customers", "orders"}, catalog.ListModels())

	orders, err := catalog.GetModel("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", orders.Table)
	assert.Equal(t, "main", orders.SchemaName)
	assert.Equal(t, "order_id", orders.PrimaryKey)

	// every column becomes a dimension
	assert.Equal(t, []string{"amount", "order_id", "status", "user_id"}, orders.DimensionNames())

	// count always, sum only for non-key numeric columns
	assert.Equal(t, AggregationCount, orders.Measures["count"].Type)
	assert.Equal(t, Measure{Type: AggregationSum, Column: "amount"}, orders.Measures["total_amount"])
	assert.NotContains(t, orders.Measures, "total_order_id")
	assert.NotContains(t, orders.Measures, "total_user_id")

	// foreign keys become joins; targets outside the schema are dropped
	require.Contains(t, orders.Joins, "customers")
	join := orders.Joins["customers"]
	assert.Equal(t, Join{ToModel: "customers", ForeignKey: "user_id", RelatedKey: "customer_id", Cardinality: ManyToOne}, join)
	assert.NotContains(t, orders.Joins, "promotions")
}

func TestScaffoldRoundTrips(t *testing.T) {
	// A scaffolded catalog must always parse back cleanly.
	data, err := MarshalDocument(Scaffold(sampleSchema()))
	require.NoError(t, err)

	catalog, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())
}
