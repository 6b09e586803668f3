package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4data/dazense/internal/errs"
)

func TestRegisterAndOpen(t *testing.T) {
	kind := Kind("fake")
	opened := 0
	Register(kind, func(_ context.Context, cfg Config) (Conn, error) {
		opened++
		assert.Equal(t, "dsn://x", cfg.DSN)
		return nil, nil
	})

	assert.True(t, Registered(kind))
	assert.False(t, Registered(Kind("absent")))

	_, err := Open(context.Background(), Config{Kind: kind, DSN: "dsn://x"})
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "duckdb"})
	require.Error(t, err)
	assert.Equal(t, errs.KindConnectionFailed, errs.KindOf(err))
	assert.Contains(t, err.Error(), `no driver registered for kind "duckdb"`)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	kind := Kind("dup")
	f := func(context.Context, Config) (Conn, error) { return nil, nil }
	Register(kind, f)
	assert.Panics(t, func() { Register(kind, f) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("analytics", KindPostgres, "postgres://localhost/db")
	assert.Equal(t, "analytics", cfg.Name)
	assert.Equal(t, KindPostgres, cfg.Kind)
	assert.NotZero(t, cfg.MaxConns)
	assert.NotZero(t, cfg.ConnectTimeout)
}
