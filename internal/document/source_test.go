package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4data/dazense/internal/semantic"
)

func TestLocalSourceFetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, filepath.FromSlash(semantic.DocumentPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("models: {orders: {table: orders}}"), 0o644))

	src := NewLocalSource(dir)
	data, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(data), "orders")
	assert.Equal(t, path, src.Location())
}

func TestLocalSourceMissing(t *testing.T) {
	src := NewLocalSource(t.TempDir())
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, semantic.ErrNotConfigured))
}

func TestCatalogFromSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, filepath.FromSlash(semantic.DocumentPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  orders:
    table: orders
    measures:
      order_count:
        type: count
`), 0o644))

	catalog, err := Catalog(context.Background(), NewLocalSource(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, catalog.ListModels())
}

func TestObjectSourceDefaultsKey(t *testing.T) {
	src, err := NewObjectSource(ObjectStoreConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "semantics",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://semantics/"+semantic.DocumentPath, src.Location())
}
