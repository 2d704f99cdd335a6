package storage

import (
	"context"
	"errors"
	"strings"

	logx "remibot/pkg/logx"
)

// Store is the persistence API used by the deferred-task layer.
//
// All list results are ordered by FireAt ascending, then insertion order,
// so callers get a stable presentation order for free.
type Store interface {
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, category, id string) (Record, bool, error)
	ListCategory(ctx context.Context, category string) ([]Record, error)
	ListOwner(ctx context.Context, category string, owner int64) ([]Record, error)
	CountOwner(ctx context.Context, category string, owner int64) (int, error)
	Delete(ctx context.Context, category, id string) (bool, error)

	// Maintain runs periodic housekeeping (checkpoint/compaction).
	Maintain(ctx context.Context) error
	Close() error
}

// Open initializes the configured store. An empty driver defaults to the
// in-memory backend.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
