package semantic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4data/dazense/internal/errs"
)

const validDocument = `
models:
  orders:
    table: orders
    description: Customer orders
    primary_key: order_id
    dimensions:
      status:
        column: status
    measures:
      order_count:
        type: count
      total_amount:
        type: sum
        column: amount
    joins:
      customer:
        to_model: customers
        foreign_key: user_id
        related_key: customer_id
  customers:
    table: customers
    schema: crm
    dimensions:
      first_name:
        column: first_name
    measures:
      customer_count:
        type: count
`

func TestParse(t *testing.T) {
	catalog, err := Parse([]byte(validDocument))
	require.NoError(t, err)

	assert.Equal(t, 2, catalog.Len())
	assert.Equal(t, []string{"customers", "orders"}, catalog.ListModels())

	orders, err := catalog.GetModel("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", orders.Table)
	assert.Equal(t, "order_id", orders.PrimaryKey)
	assert.Equal(t, AggregationSum, orders.Measures["total_amount"].Type)
	assert.Equal(t, "amount", orders.Measures["total_amount"].Column)
}

func TestParseDefaults(t *testing.T) {
	catalog, err := Parse([]byte(validDocument))
	require.NoError(t, err)

	orders, err := catalog.GetModel("orders")
	require.NoError(t, err)

	// schema falls back to main, joins default to many_to_one
	assert.Equal(t, DefaultSchema, orders.SchemaName)
	assert.Equal(t, ManyToOne, orders.Joins["customer"].Cardinality)

	// explicit schema is preserved
	customers, err := catalog.GetModel("customers")
	require.NoError(t, err)
	assert.Equal(t, "crm", customers.SchemaName)
}

func TestGetModelUnknownListsAlternatives(t *testing.T) {
	catalog, err := Parse([]byte(validDocument))
	require.NoError(t, err)

	_, err = catalog.GetModel("invoices")
	require.Error(t, err)
	assert.Equal(t, errs.KindModelNotFound, errs.KindOf(err))
	assert.Contains(t, err.Error(), "customers")
	assert.Contains(t, err.Error(), "orders")
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("models: [not a map"))
	require.Error(t, err)
	assert.Equal(t, errs.KindModelDocument, errs.KindOf(err))
}

func TestParseNoModels(t *testing.T) {
	_, err := Parse([]byte("models: {}\n"))
	require.Error(t, err)
	assert.Equal(t, errs.KindModelDocument, errs.KindOf(err))
}

func TestParseCollectsAllViolations(t *testing.T) {
	// One document, many independent problems. All must be reported in
	// a single pass.
	doc := `
models:
  orders:
    table: orders
    dimensions:
      status: {}
    measures:
      total_amount:
        type: sum
      mystery:
        type: median
        column: amount
    joins:
      customer:
        to_model: customers
        related_key: customer_id
      warehouse:
        to_model: warehouses
        foreign_key: warehouse_id
        related_key: warehouse_id
  customers: {}
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Equal(t, errs.KindMeasureValidation, errs.KindOf(err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	details := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		details[i] = v.String()
	}

	assert.Len(t, verr.Violations, 6)
	assert.Contains(t, details, `model "customers": missing 'table'`)
	assert.Contains(t, details, `model "orders", dimension status: missing 'column'`)
	assert.Contains(t, details, `model "orders", measure total_amount: type "sum" requires a 'column' field`)
	assert.Contains(t, details, `model "orders", measure mystery: unknown aggregation type "median"`)
	assert.Contains(t, details, `model "orders", join customer: missing 'foreign_key'`)
	assert.Contains(t, details, `model "orders", join warehouse: target model "warehouses" is not defined`)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, filepath.FromSlash(DocumentPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(validDocument), 0o644))

	catalog, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())
}

func TestLoadMissingDocument(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestAggregationType(t *testing.T) {
	assert.True(t, AggregationCountDistinct.Valid())
	assert.False(t, AggregationType("median").Valid())

	assert.False(t, AggregationCount.RequiresColumn())
	assert.True(t, AggregationAvg.RequiresColumn())
}
