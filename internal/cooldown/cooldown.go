// Package cooldown implements a persistent per-user cooldown gate.
//
// Opening the gate schedules a durable expiry marker; until that marker
// fires, the user stays on cooldown. Because the marker is a stored task,
// cooldowns survive restarts and expire on time even after downtime.
package cooldown

import (
	"context"
	"strconv"
	"time"

	"remibot/internal/task/reload"
	logx "remibot/pkg/logx"
)

const Category = "cooldown"

// DefaultWindow applies when no window is configured.
const DefaultWindow = 5 * time.Minute

// marker is the durable expiry task. Firing it is the expiry itself: the
// registry deletes the record before Execute, which is all the state
// change a cooldown needs.
type marker struct {
	meta reload.Meta
	log  logx.Logger
}

func (m *marker) Meta() *reload.Meta      { return &m.meta }
func (m *marker) Encode() ([]byte, error) { return []byte("{}"), nil }

func (m *marker) Execute(context.Context) {
	m.log.Debug("cooldown expired", logx.Int64("owner", m.meta.Owner))
}

// Codec restores cooldown markers during replay.
type Codec struct {
	Log logx.Logger
}

func (Codec) Category() string { return Category }

func (c Codec) Decode(meta reload.Meta, _ []byte) (reload.Task, error) {
	return &marker{meta: meta, log: c.Log}, nil
}

// Gate answers "may this user act yet?" and opens new cooldown windows.
type Gate struct {
	reg    *reload.Registry
	window time.Duration
	log    logx.Logger
}

func NewGate(reg *reload.Registry, window time.Duration, log logx.Logger) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{reg: reg, window: window, log: log}
}

// Window returns the configured cooldown length.
func (g *Gate) Window() time.Duration { return g.window }

func markerID(owner int64) string { return strconv.FormatInt(owner, 10) }

// Remaining returns how long the user must still wait. Zero means the
// gate is open. An overdue marker whose timer has not fired yet counts as
// open.
func (g *Gate) Remaining(ctx context.Context, owner int64) (time.Duration, error) {
	tasks, err := g.reg.List(ctx, Category, owner)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		if t.Meta().ID != markerID(owner) {
			continue
		}
		if d := time.Until(t.Meta().FireAt); d > 0 {
			return d, nil
		}
	}
	return 0, nil
}

// Open starts a fresh cooldown window for the user. An existing marker
// is replaced, so the window always measures from now.
func (g *Gate) Open(ctx context.Context, owner int64) error {
	_, _ = g.reg.Cancel(ctx, Category, markerID(owner))

	m := &marker{log: g.log}
	m.meta = reload.Meta{
		Category: Category,
		ID:       markerID(owner),
		Owner:    owner,
		FireAt:   time.Now().Add(g.window),
	}
	return g.reg.Schedule(ctx, m)
}
