package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Reflector introspects a database schema into a Catalog snapshot.
type Reflector interface {
	Reflect(ctx context.Context, schema string) (*Catalog, error)
}

// ReflectorFactory builds a Reflector for one database dialect.
type ReflectorFactory func(db *sqlx.DB, logger zerolog.Logger) Reflector

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ReflectorFactory)
)

// Register makes a reflector factory available under a dialect tag.
// Called from dialect init functions.
func Register(dialect string, factory ReflectorFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[dialect] = factory
}

// ForDialect returns a Reflector for the given dialect tag.
func ForDialect(dialect string, db *sqlx.DB, logger zerolog.Logger) (Reflector, error) {
	registryMu.RLock()
	factory, ok := registry[dialect]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no reflector registered for dialect %q", dialect)
	}
	return factory(db, logger), nil
}
