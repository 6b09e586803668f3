package dataset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ai4data/dazense/internal/errs"
)

// Factory opens a connection for one driver kind.
type Factory func(ctx context.Context, cfg Config) (Conn, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Factory)
)

// Register makes a driver available under the given kind.
// Drivers call this from an init function; registering the same kind
// twice panics, mirroring database/sql.
func Register(kind Kind, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("dataset: driver %q registered twice", kind))
	}
	registry[kind] = f
}

// Registered reports whether a driver for kind has been registered.
func Registered(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Open connects to the data source described by cfg using its registered
// driver. Open failures are fatal for the caller's current request; no
// retry happens at this layer.
func Open(ctx context.Context, cfg Config) (Conn, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errs.NotFound(errs.KindConnectionFailed,
			fmt.Sprintf("no driver registered for kind %q", cfg.Kind), kinds())
	}
	return f(ctx, cfg)
}

func kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
