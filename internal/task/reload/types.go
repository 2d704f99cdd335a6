package reload

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotStarted     = errors.New("task registry not started")
	ErrUnknownCodec   = errors.New("no codec registered for category")
	ErrDuplicateCodec = errors.New("codec already registered for category")
)

// Meta carries the identity and schedule of a deferred task. The registry
// fills ID on first schedule; replay reuses the stored id so a task keeps
// its identity across restarts.
type Meta struct {
	Category string
	ID       string
	Owner    int64
	FireAt   time.Time
}

// Key returns the storage/timer key for this task.
func (m *Meta) Key() string { return m.Category + "/" + m.ID }

// Task is one schedulable unit of deferred work.
//
// Meta must return a pointer into the task's own state: the registry
// writes the assigned id through it during Schedule.
type Task interface {
	Meta() *Meta

	// Encode produces the payload persisted with the task record.
	Encode() ([]byte, error)

	// Execute performs the user-visible effect when the task fires.
	// It runs on a timer goroutine with the registry's run context.
	Execute(ctx context.Context)
}

// Codec restores tasks of one category from storage during replay.
type Codec interface {
	Category() string
	Decode(meta Meta, payload []byte) (Task, error)
}
