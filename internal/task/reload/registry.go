package reload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remibot/internal/storage"
	"remibot/internal/task/idgen"
	"remibot/internal/task/timer"
	logx "remibot/pkg/logx"
)

// Registry is the durable deferred-task core. Scheduling a task persists
// a record and arms a one-shot timer; on restart, ReplayAll re-arms every
// stored record through the category's codec.
//
// Fire path: the record is deleted from storage before Execute runs, so a
// task observed as fired is never replayed after a crash. The trade-off
// is that a crash between delete and Execute loses that one fire.
type Registry struct {
	store  storage.Store
	timers *timer.Set
	newID  idgen.Func
	log    logx.Logger

	mu     sync.RWMutex
	codecs map[string]Codec

	runMu  sync.RWMutex
	runCtx context.Context
}

type Option func(*Registry)

func WithIDGen(fn idgen.Func) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func New(store storage.Store, log logx.Logger, opts ...Option) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		store:  store,
		timers: timer.NewSet(),
		newID:  idgen.UUID,
		log:    log.With(logx.String("comp", "task.reload")),
		codecs: map[string]Codec{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register installs the codec for one task category. Codecs must be
// registered before Start/ReplayAll.
func (r *Registry) Register(c Codec) error {
	if c == nil {
		return errors.New("nil codec")
	}
	cat := strings.TrimSpace(c.Category())
	if cat == "" || strings.Contains(cat, "/") {
		return fmt.Errorf("invalid category %q", cat)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[cat]; ok {
		return fmt.Errorf("%s: %w", cat, ErrDuplicateCodec)
	}
	r.codecs[cat] = c
	return nil
}

// Start binds the registry to its run context. Execute callbacks of
// tasks that fire later use this context.
func (r *Registry) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("nil context")
	}
	r.runMu.Lock()
	r.runCtx = ctx
	r.runMu.Unlock()
	return nil
}

// Stop cancels all pending timers. Durable records stay put; the next
// ReplayAll re-arms them.
func (r *Registry) Stop(context.Context) error {
	r.timers.StopAll()
	return nil
}

func (r *Registry) runContext() (context.Context, bool) {
	r.runMu.RLock()
	defer r.runMu.RUnlock()
	return r.runCtx, r.runCtx != nil
}

// Schedule persists the task and arms its timer. A task without an id
// gets one assigned (written back through Meta); a task that already has
// an id keeps it, which is what makes replay idempotent.
func (r *Registry) Schedule(ctx context.Context, t Task) error {
	if t == nil {
		return errors.New("nil task")
	}
	meta := t.Meta()
	if meta == nil {
		return errors.New("task has no meta")
	}
	r.mu.RLock()
	_, known := r.codecs[meta.Category]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("%s: %w", meta.Category, ErrUnknownCodec)
	}
	if meta.FireAt.IsZero() {
		return errors.New("task has no fire time")
	}
	if meta.ID == "" {
		meta.ID = r.newID()
	}

	payload, err := t.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", meta.Key(), err)
	}
	rec := storage.Record{
		Category: meta.Category,
		ID:       meta.ID,
		Owner:    meta.Owner,
		FireAt:   meta.FireAt,
		Payload:  payload,
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("persist %s: %w", meta.Key(), err)
	}

	r.arm(t)
	r.log.Debug("task scheduled",
		logx.String("category", meta.Category),
		logx.String("id", meta.ID),
		logx.Int64("owner", meta.Owner),
		logx.Time("fire_at", meta.FireAt),
	)
	return nil
}

// arm wires the timer for a persisted task.
func (r *Registry) arm(t Task) {
	meta := *t.Meta()
	r.timers.Arm(meta.Key(), meta.FireAt, func() {
		r.fire(meta, t)
	})
}

func (r *Registry) fire(meta Meta, t Task) {
	ctx, ok := r.runContext()
	if !ok {
		r.log.Error("task fired before registry start", logx.String("key", meta.Key()))
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Remove the durable record first so a crash mid-effect can't replay it.
	dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deleted, err := r.store.Delete(dctx, meta.Category, meta.ID)
	cancel()
	if err != nil {
		r.log.Error("task record delete failed, skipping fire",
			logx.String("key", meta.Key()), logx.Err(err))
		return
	}
	if !deleted {
		// Canceled concurrently; the cancel path already removed the record.
		return
	}

	r.log.Debug("task firing", logx.String("key", meta.Key()), logx.Int64("owner", meta.Owner))
	t.Execute(ctx)
}

// Cancel removes a pending task: durable record and timer both go away.
// Returns false when the task does not exist (unknown id or already
// fired).
func (r *Registry) Cancel(ctx context.Context, category, id string) (bool, error) {
	if category == "" || id == "" {
		return false, nil
	}
	deleted, err := r.store.Delete(ctx, category, id)
	if err != nil {
		return false, err
	}
	r.timers.Cancel(category + "/" + id)
	return deleted, nil
}

// List returns decoded pending tasks for one owner, ordered by fire time.
func (r *Registry) List(ctx context.Context, category string, owner int64) ([]Task, error) {
	r.mu.RLock()
	codec, ok := r.codecs[category]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", category, ErrUnknownCodec)
	}
	recs, err := r.store.ListOwner(ctx, category, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(recs))
	for _, rec := range recs {
		t, err := codec.Decode(Meta{
			Category: rec.Category,
			ID:       rec.ID,
			Owner:    rec.Owner,
			FireAt:   rec.FireAt,
		}, rec.Payload)
		if err != nil {
			r.log.Warn("skipping undecodable record",
				logx.String("key", rec.Category+"/"+rec.ID), logx.Err(err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Count returns the number of pending records for one owner.
func (r *Registry) Count(ctx context.Context, category string, owner int64) (int, error) {
	return r.store.CountOwner(ctx, category, owner)
}

// ReplayAll restores every stored record through its codec and re-arms
// its timer. Overdue tasks fire immediately. A record whose payload no
// longer decodes is dropped with a warning instead of poisoning the rest
// of the replay.
//
// Replay is idempotent: re-arming an already-armed key replaces the
// timer, and stored ids are reused verbatim.
func (r *Registry) ReplayAll(ctx context.Context) (int, error) {
	if _, ok := r.runContext(); !ok {
		return 0, ErrNotStarted
	}

	r.mu.RLock()
	cats := make([]string, 0, len(r.codecs))
	for c := range r.codecs {
		cats = append(cats, c)
	}
	r.mu.RUnlock()
	sort.Strings(cats)

	restored := 0
	for _, cat := range cats {
		recs, err := r.store.ListCategory(ctx, cat)
		if err != nil {
			return restored, fmt.Errorf("list %s: %w", cat, err)
		}
		r.mu.RLock()
		codec := r.codecs[cat]
		r.mu.RUnlock()

		for _, rec := range recs {
			meta := Meta{
				Category: rec.Category,
				ID:       rec.ID,
				Owner:    rec.Owner,
				FireAt:   rec.FireAt,
			}
			t, err := codec.Decode(meta, rec.Payload)
			if err != nil {
				r.log.Warn("dropping undecodable record",
					logx.String("key", meta.Key()), logx.Err(err))
				_, _ = r.store.Delete(ctx, rec.Category, rec.ID)
				continue
			}
			r.arm(t)
			restored++
		}
	}

	r.log.Info("task replay complete", logx.Int("restored", restored), logx.Int("armed", r.timers.Len()))
	return restored, nil
}

// Pending reports the number of armed timers (for introspection/logs).
func (r *Registry) Pending() int { return r.timers.Len() }
