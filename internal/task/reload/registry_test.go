package reload

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"remibot/internal/storage"
	"remibot/internal/task/idgen"
	logx "remibot/pkg/logx"
)

// noteTask is a minimal durable task for tests: it records every Execute
// into its codec's shared journal.
type noteTask struct {
	meta Meta
	Text string `json:"text"`

	codec *noteCodec
}

func (t *noteTask) Meta() *Meta             { return &t.meta }
func (t *noteTask) Encode() ([]byte, error) { return json.Marshal(t) }
func (t *noteTask) Execute(context.Context) {
	t.codec.mu.Lock()
	t.codec.fired = append(t.codec.fired, t.meta.ID+":"+t.Text)
	t.codec.mu.Unlock()
}

type noteCodec struct {
	mu    sync.Mutex
	fired []string
}

func (c *noteCodec) Category() string { return "note" }

func (c *noteCodec) Decode(meta Meta, payload []byte) (Task, error) {
	var t noteTask
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, err
	}
	t.meta = meta
	t.codec = c
	return &t, nil
}

func (c *noteCodec) firedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.fired...)
}

func newTestRegistry(t *testing.T, st storage.Store) (*Registry, *noteCodec) {
	t.Helper()
	codec := &noteCodec{}
	reg := New(st, logx.Nop(), WithIDGen(idgen.Sequence("note")))
	if err := reg.Register(codec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })
	return reg, codec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduleAssignsIDAndFires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	reg, codec := newTestRegistry(t, st)

	task := &noteTask{Text: "hello", codec: codec}
	task.meta = Meta{Category: "note", Owner: 5, FireAt: time.Now().Add(20 * time.Millisecond)}
	if err := reg.Schedule(ctx, task); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if task.meta.ID == "" {
		t.Fatal("schedule did not assign an id")
	}

	// durable until it fires
	if _, ok, _ := st.Get(ctx, "note", task.meta.ID); !ok {
		t.Fatal("record not persisted")
	}

	waitFor(t, func() bool { return len(codec.firedIDs()) == 1 })
	if got := codec.firedIDs()[0]; got != task.meta.ID+":hello" {
		t.Fatalf("fired %q", got)
	}
	// record removed once fired
	if _, ok, _ := st.Get(ctx, "note", task.meta.ID); ok {
		t.Fatal("record still stored after fire")
	}
}

func TestCancelRemovesRecordAndTimer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	reg, codec := newTestRegistry(t, st)

	task := &noteTask{Text: "never", codec: codec}
	task.meta = Meta{Category: "note", Owner: 5, FireAt: time.Now().Add(30 * time.Millisecond)}
	if err := reg.Schedule(ctx, task); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	ok, err := reg.Cancel(ctx, "note", task.meta.ID)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	// canceling again reports not found
	ok, err = reg.Cancel(ctx, "note", task.meta.ID)
	if err != nil || ok {
		t.Fatalf("second cancel: ok=%v err=%v", ok, err)
	}

	time.Sleep(80 * time.Millisecond)
	if n := len(codec.firedIDs()); n != 0 {
		t.Fatalf("canceled task fired %d times", n)
	}
	if reg.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", reg.Pending())
	}
}

func TestReplayReusesStoredIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	// First process: schedule two tasks, then "crash" (no fire).
	first, _ := newTestRegistry(t, st)
	var ids []string
	for _, txt := range []string{"one", "two"} {
		codec := &noteCodec{}
		task := &noteTask{Text: txt, codec: codec}
		task.meta = Meta{Category: "note", Owner: 1, FireAt: time.Now().Add(time.Hour)}
		if err := first.Schedule(ctx, task); err != nil {
			t.Fatalf("schedule: %v", err)
		}
		ids = append(ids, task.meta.ID)
	}
	_ = first.Stop(ctx)

	// Second process: replay must restore both with identical ids.
	second, _ := newTestRegistry(t, st)
	n, err := second.ReplayAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("replay: n=%d err=%v", n, err)
	}
	tasks, err := second.List(ctx, "note", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("listed %d tasks", len(tasks))
	}
	for i, tk := range tasks {
		if tk.Meta().ID != ids[i] {
			t.Fatalf("task %d id changed across replay: %s != %s", i, tk.Meta().ID, ids[i])
		}
	}
}

func TestReplayFiresOverdueImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	// Record whose fire time already passed (as after a long downtime).
	payload, _ := json.Marshal(&noteTask{Text: "late"})
	err := st.Insert(ctx, storage.Record{
		Category: "note",
		ID:       "overdue-1",
		Owner:    3,
		FireAt:   time.Now().Add(-time.Hour),
		Payload:  payload,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	reg, codec := newTestRegistry(t, st)
	if _, err := reg.ReplayAll(ctx); err != nil {
		t.Fatalf("replay: %v", err)
	}

	waitFor(t, func() bool { return len(codec.firedIDs()) == 1 })
	if got := codec.firedIDs()[0]; got != "overdue-1:late" {
		t.Fatalf("fired %q", got)
	}
}

func TestReplaySkipsMalformedRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	good, _ := json.Marshal(&noteTask{Text: "good"})
	_ = st.Insert(ctx, storage.Record{Category: "note", ID: "ok", Owner: 1, FireAt: time.Now().Add(time.Hour), Payload: good})
	_ = st.Insert(ctx, storage.Record{Category: "note", ID: "bad", Owner: 1, FireAt: time.Now().Add(time.Hour), Payload: []byte("{not json")})

	reg, _ := newTestRegistry(t, st)
	n, err := reg.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored %d records, want 1", n)
	}
	// the malformed record is dropped from storage
	if _, ok, _ := st.Get(ctx, "note", "bad"); ok {
		t.Fatal("malformed record still stored")
	}
	if _, ok, _ := st.Get(ctx, "note", "ok"); !ok {
		t.Fatal("good record lost")
	}
}

func TestScheduleUnknownCategory(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	reg := New(st, logx.Nop())
	_ = reg.Start(context.Background())

	task := &noteTask{Text: "x", codec: &noteCodec{}}
	task.meta = Meta{Category: "mystery", FireAt: time.Now().Add(time.Hour)}
	if err := reg.Schedule(context.Background(), task); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("got %v, want ErrUnknownCodec", err)
	}
}

func TestDuplicateCodecRejected(t *testing.T) {
	t.Parallel()
	reg := New(storage.NewMemory(), logx.Nop())
	if err := reg.Register(&noteCodec{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(&noteCodec{}); !errors.Is(err, ErrDuplicateCodec) {
		t.Fatalf("got %v, want ErrDuplicateCodec", err)
	}
}
