// Package config loads service configuration from file, environment,
// and flags, with precedence flags > env > file > defaults.
package config

import (
	"fmt"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/document"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "dazense.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "dazense.yml"

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `koanf:"listen" yaml:"listen"`
	// ProjectDir anchors the project-local model document.
	ProjectDir string `koanf:"project_dir" yaml:"project_dir"`

	Log      LogConfig        `koanf:"log" yaml:"log"`
	Document DocumentConfig   `koanf:"document" yaml:"document"`
	// Databases lists every backend a model may pin. With exactly one
	// entry, models need no explicit database.
	Databases []dataset.Config `koanf:"databases" yaml:"databases"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// DocumentConfig selects where the semantic model document lives.
type DocumentConfig struct {
	// Source is "local" or "object_store".
	Source      string                     `koanf:"source" yaml:"source"`
	ObjectStore document.ObjectStoreConfig `koanf:"object_store" yaml:"object_store"`
}

const (
	SourceLocal       = "local"
	SourceObjectStore = "object_store"
)

// DocumentSource constructs the configured document source.
func (c *Config) DocumentSource() (document.Source, error) {
	switch c.Document.Source {
	case "", SourceLocal:
		return document.NewLocalSource(c.ProjectDir), nil
	case SourceObjectStore:
		return document.NewObjectSource(c.Document.ObjectStore)
	default:
		return nil, fmt.Errorf("unknown document source %q", c.Document.Source)
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("databases[%d]: name is required", i)
		}
		if seen[db.Name] {
			return fmt.Errorf("databases[%d]: duplicate database name %q", i, db.Name)
		}
		seen[db.Name] = true
		if !dataset.Registered(db.Kind) {
			return fmt.Errorf("database %q: unknown kind %q", db.Name, db.Kind)
		}
	}
	if c.Document.Source == SourceObjectStore {
		if c.Document.ObjectStore.Endpoint == "" {
			return fmt.Errorf("document.object_store: endpoint is required")
		}
		if c.Document.ObjectStore.Bucket == "" {
			return fmt.Errorf("document.object_store: bucket is required")
		}
	}
	return nil
}
