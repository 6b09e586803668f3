package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/dataset/memory"
	"github.com/ai4data/dazense/internal/document"
	"github.com/ai4data/dazense/internal/logger"
	"github.com/ai4data/dazense/internal/semantic"
)

const testDocument = `
models:
  orders:
    table: orders
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
    dimensions:
      first_name:
        column: first_name
    measures:
      customer_count:
        type: count
`

func newTestServer(t *testing.T, doc string) *Server {
	t.Helper()

	dir := t.TempDir()
	if doc != "" {
		path := filepath.Join(dir, filepath.FromSlash(semantic.DocumentPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}

	store := memory.NewStore()
	store.AddTable("main", "orders", []dataset.Row{
		{"order_id": 1, "user_id": 1, "status": "completed", "amount": 100.0},
		{"order_id": 2, "user_id": 1, "status": "completed", "amount": 50.0},
		{"order_id": 3, "user_id": 2, "status": "cancelled", "amount": 75.0},
		{"order_id": 4, "user_id": 3, "status": "completed", "amount": 200.0},
		{"order_id": 5, "user_id": 2, "status": "completed", "amount": 125.0},
	})
	store.AddTable("main", "customers", []dataset.Row{
		{"customer_id": 1, "first_name": "Alice"},
		{"customer_id": 2, "first_name": "Bob"},
		{"customer_id": 3, "first_name": "Charlie"},
	})

	return New(
		document.NewLocalSource(dir),
		[]dataset.Config{{Name: "main", Kind: dataset.KindMemory}},
		logger.Discard(),
		WithConnector(func(context.Context, dataset.Config) (dataset.Conn, error) {
			return store, nil
		}),
	)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testDocument)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestQueryMetrics(t *testing.T) {
	srv := newTestServer(t, testDocument)
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/query_metrics", map[string]any{
		"model":      "orders",
		"measures":   []string{"order_count"},
		"dimensions": []string{"status"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"status", "order_count"}, body["columns"])

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)

	counts := map[any]any{}
	for _, r := range rows {
		row := r.(map[string]any)
		counts[row["status"]] = row["order_count"]
	}
	assert.Equal(t, float64(4), counts["completed"])
	assert.Equal(t, float64(1), counts["cancelled"])
}

func TestQueryMetricsWithJoinAndFilter(t *testing.T) {
	srv := newTestServer(t, testDocument)
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/query_metrics", map[string]any{
		"model":      "orders",
		"measures":   []string{"total_amount"},
		"dimensions": []string{"customer.first_name"},
		"filters": []map[string]any{
			{"column": "status", "operator": "eq", "value": "completed"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"customer_first_name", "total_amount"}, body["columns"])
	assert.Len(t, body["rows"], 3)
}

func TestQueryMetricsClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{
			name:     "unknown model",
			body:     map[string]any{"model": "invoices", "measures": []string{"order_count"}},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "unknown measure",
			body:     map[string]any{"model": "orders", "measures": []string{"revenue"}},
			wantCode: http.StatusNotFound,
		},
		{
			name: "unsupported operator",
			body: map[string]any{
				"model":    "orders",
				"measures": []string{"order_count"},
				"filters":  []map[string]any{{"column": "status", "operator": "like", "value": "x"}},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing model",
			body:     map[string]any{"measures": []string{"order_count"}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty measures and dimensions",
			body:     map[string]any{"model": "orders"},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, testDocument)
			rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/query_metrics", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestQueryMetricsMalformedBody(t *testing.T) {
	srv := newTestServer(t, testDocument)
	req := httptest.NewRequest(http.MethodPost, "/query_metrics", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoDocumentConfigured(t *testing.T) {
	srv := newTestServer(t, "")
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/query_metrics", map[string]any{
		"model":    "orders",
		"measures": []string{"order_count"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "no semantic model configured")
}

func TestListModels(t *testing.T) {
	srv := newTestServer(t, testDocument)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/models", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"customers", "orders"}, body["models"])
}

func TestGetModel(t *testing.T) {
	srv := newTestServer(t, testDocument)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/models/orders", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orders", body["name"])
	assert.Equal(t, "orders", body["table"])

	dims, ok := body["dimensions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"column": "status"}, dims["status"])

	measures, ok := body["measures"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "count"}, measures["order_count"])
	assert.Equal(t, map[string]any{"type": "sum", "column": "amount"}, measures["total_amount"])

	joins, ok := body["joins"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"to_model":    "customers",
		"foreign_key": "user_id",
		"related_key": "customer_id",
		"type":        "many_to_one",
	}, joins["customer"])
}

func TestGetModelUnknown(t *testing.T) {
	srv := newTestServer(t, testDocument)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/models/invoices", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "orders")
}
