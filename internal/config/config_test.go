package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai4data/dazense/internal/dataset"
	_ "github.com/ai4data/dazense/internal/dataset/memory"
	"github.com/ai4data/dazense/internal/document"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, ".", cfg.ProjectDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, SourceLocal, cfg.Document.Source)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
project_dir: /srv/project
log:
  level: debug
  format: console
databases:
  - name: main
    kind: memory
    dsn: demo
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/srv/project", cfg.ProjectDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Databases, 1)
	assert.Equal(t, "main", cfg.Databases[0].Name)
	assert.Equal(t, dataset.KindMemory, cfg.Databases[0].Kind)
	assert.Equal(t, "demo", cfg.Databases[0].DSN)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "listen: \":9090\"\nlog:\n  level: debug\n")
	t.Setenv("DAZENSE_LISTEN", ":7000")
	t.Setenv("DAZENSE_LOG__LEVEL", "warn")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("DAZENSE_LISTEN", ":7000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", ":8080", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--listen", ":6000", "--log-level", "error"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Listen)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadUnchangedFlagsIgnored(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", ":1111", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	// flag default must not shadow the config default
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "duplicate database name",
			cfg: Config{Databases: []dataset.Config{
				{Name: "main", Kind: dataset.KindMemory},
				{Name: "main", Kind: dataset.KindMemory},
			}},
			wantErr: "duplicate database name",
		},
		{
			name:    "missing database name",
			cfg:     Config{Databases: []dataset.Config{{Kind: dataset.KindMemory}}},
			wantErr: "name is required",
		},
		{
			name:    "unregistered kind",
			cfg:     Config{Databases: []dataset.Config{{Name: "x", Kind: "oracle"}}},
			wantErr: `unknown kind "oracle"`,
		},
		{
			name: "object store without endpoint",
			cfg: Config{Document: DocumentConfig{
				Source:      SourceObjectStore,
				ObjectStore: document.ObjectStoreConfig{Bucket: "b"},
			}},
			wantErr: "endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	ok := Config{Databases: []dataset.Config{{Name: "main", Kind: dataset.KindMemory}}}
	assert.NoError(t, ok.Validate())
}

func TestDocumentSource(t *testing.T) {
	local := Config{ProjectDir: "/srv/project"}
	src, err := local.DocumentSource()
	require.NoError(t, err)
	assert.IsType(t, &document.LocalSource{}, src)

	bad := Config{Document: DocumentConfig{Source: "carrier-pigeon"}}
	_, err = bad.DocumentSource()
	assert.Error(t, err)
}
