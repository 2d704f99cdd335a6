package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")

	// ErrExists is returned by Insert when a record with the same
	// (category, id) already exists.
	ErrExists = errors.New("record already exists")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default persistence)
//   - "memory": in-process only, records do not survive restarts
//
// An empty Driver defaults to "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one durable deferred-task record. Category partitions the
// namespace (e.g. "reminder", "cooldown"); IDs are unique per category.
// Payload is opaque to storage; the task codecs own its format.
type Record struct {
	Category string
	ID       string
	Owner    int64
	FireAt   time.Time
	Payload  []byte
}
