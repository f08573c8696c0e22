package history

import (
	"context"
	"fmt"
)

// Store persists generation statistics keyed by run id.
type Store interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, stats GenerationStats) error
	Generations(ctx context.Context, runID string) ([]GenerationStats, error)
	Runs(ctx context.Context) ([]string, error)
	Close() error
}

// NewStore returns an uninitialized store of the given kind.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", kind)
	}
}
