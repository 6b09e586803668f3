// Package document fetches the semantic model document from its
// configured location: a project-local file or an object store.
package document

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ai4data/dazense/internal/semantic"
)

// Source produces the raw bytes of a semantic model document. An
// absent document yields semantic.ErrNotConfigured, never a hard
// failure.
type Source interface {
	// Fetch reads the document. Missing documents return
	// semantic.ErrNotConfigured.
	Fetch(ctx context.Context) ([]byte, error)
	// Location describes where the source reads from, for logs.
	Location() string
}

// Catalog fetches the document from src and parses it into a catalog.
func Catalog(ctx context.Context, src Source) (*semantic.Catalog, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return semantic.Parse(data)
}

// --- local file source ---

// LocalSource reads the document from the conventional path under a
// project directory.
type LocalSource struct {
	path string
}

// NewLocalSource points at projectDir's model document.
func NewLocalSource(projectDir string) *LocalSource {
	return &LocalSource{
		path: filepath.Join(projectDir, filepath.FromSlash(semantic.DocumentPath)),
	}
}

func (s *LocalSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, semantic.ErrNotConfigured
		}
		return nil, err
	}
	return data, nil
}

func (s *LocalSource) Location() string {
	return s.path
}

// readAll drains r and closes it regardless of outcome.
func readAll(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}
