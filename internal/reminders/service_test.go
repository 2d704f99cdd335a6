package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remibot/internal/storage"
	"remibot/internal/task/idgen"
	"remibot/internal/task/reload"
	kit "remibot/internal/transport"
	logx "remibot/pkg/logx"
)

type captureSink struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (c *captureSink) Notify(n kit.Notification) error {
	c.mu.Lock()
	c.sent = append(c.sent, n)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newService(t *testing.T, st storage.Store, limits Limits) (*Service, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	reg := reload.New(st, logx.Nop(), reload.WithIDGen(idgen.Sequence("rem")))
	svc := NewService(reg, sink, limits, logx.Nop())
	if err := reg.Register(svc.Codec()); err != nil {
		t.Fatalf("register codec: %v", err)
	}
	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })
	if _, err := reg.ReplayAll(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}
	return svc, sink
}

var chat = kit.ChatTarget{ChatID: 100}

func TestScheduleAndDeliver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, sink := newService(t, storage.NewMemory(), Limits{MinSpan: time.Millisecond})

	r, err := svc.Schedule(ctx, 1, chat, "drink water", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if r.Meta().ID == "" {
		t.Fatal("no id assigned")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reminder never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sink.mu.Lock()
	n := sink.sent[0]
	sink.mu.Unlock()
	if n.Target.ChatID != 100 || n.Text != "⏰ Reminder: drink water" {
		t.Fatalf("delivered %+v", n)
	}

	// delivered reminder is gone from the listing
	got, err := svc.List(ctx, 1)
	if err != nil || len(got) != 0 {
		t.Fatalf("list after fire: %d items, err=%v", len(got), err)
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, storage.NewMemory(), Limits{
		MaxPerUser: 2,
		MinSpan:    time.Minute,
		MaxSpan:    time.Hour,
	})

	if _, err := svc.Schedule(ctx, 1, chat, "   ", time.Minute); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("empty text: %v", err)
	}
	if _, err := svc.Schedule(ctx, 1, chat, "x", time.Second); !errors.Is(err, ErrSpanTooShort) {
		t.Fatalf("short span: %v", err)
	}
	if _, err := svc.Schedule(ctx, 1, chat, "x", 2*time.Hour); !errors.Is(err, ErrSpanTooLong) {
		t.Fatalf("long span: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Schedule(ctx, 1, chat, "ok", 30*time.Minute); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}
	if _, err := svc.Schedule(ctx, 1, chat, "one too many", 30*time.Minute); !errors.Is(err, ErrTooMany) {
		t.Fatalf("over limit: %v", err)
	}
	// a different user still has room
	if _, err := svc.Schedule(ctx, 2, chat, "fine", 30*time.Minute); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestListOrderAndCancelRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, storage.NewMemory(), Limits{})

	// scheduled out of fire order
	for _, r := range []struct {
		text string
		in   time.Duration
	}{
		{"third", 3 * time.Hour},
		{"first", 1 * time.Hour},
		{"second", 2 * time.Hour},
	} {
		if _, err := svc.Schedule(ctx, 1, chat, r.text, r.in); err != nil {
			t.Fatalf("schedule %s: %v", r.text, err)
		}
	}

	got, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if texts(got) != "first,second,third" {
		t.Fatalf("order = %s", texts(got))
	}

	// cancel 1-2 removes the two soonest
	n, err := svc.Cancel(ctx, 1, 1, 2)
	if err != nil || n != 2 {
		t.Fatalf("cancel range: n=%d err=%v", n, err)
	}
	got, err = svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if texts(got) != "third" {
		t.Fatalf("after cancel = %s", texts(got))
	}
}

func TestCancelNumbersFollowLastListing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, storage.NewMemory(), Limits{})

	for _, txt := range []string{"a", "b", "c"} {
		if _, err := svc.Schedule(ctx, 1, chat, txt, time.Hour); err != nil {
			t.Fatalf("schedule %s: %v", txt, err)
		}
	}
	if _, err := svc.List(ctx, 1); err != nil {
		t.Fatalf("list: %v", err)
	}

	// cancel #2 ("b"); #3 still means "c" against the old listing
	if n, err := svc.Cancel(ctx, 1, 2, 2); err != nil || n != 1 {
		t.Fatalf("cancel #2: n=%d err=%v", n, err)
	}
	if n, err := svc.Cancel(ctx, 1, 3, 3); err != nil || n != 1 {
		t.Fatalf("cancel #3: n=%d err=%v", n, err)
	}

	got, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if texts(got) != "a" {
		t.Fatalf("remaining = %s, want a", texts(got))
	}

	// fresh listing renumbers: #1 is now "a"
	if n, err := svc.Cancel(ctx, 1, 1, 1); err != nil || n != 1 {
		t.Fatalf("cancel renumbered #1: n=%d err=%v", n, err)
	}
}

func TestCancelBadIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, storage.NewMemory(), Limits{})

	if _, err := svc.Schedule(ctx, 1, chat, "only", time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.List(ctx, 1); err != nil {
		t.Fatalf("list: %v", err)
	}

	if _, err := svc.Cancel(ctx, 1, 0, 0); !errors.Is(err, ErrBadIndex) {
		t.Fatalf("index 0: %v", err)
	}
	if _, err := svc.Cancel(ctx, 1, 2, 2); !errors.Is(err, ErrBadIndex) {
		t.Fatalf("index past end: %v", err)
	}
	// reversed bounds are normalized
	if n, err := svc.Cancel(ctx, 1, 1, 1); err != nil || n != 1 {
		t.Fatalf("cancel: n=%d err=%v", n, err)
	}
}

func TestCancelWithoutPriorListing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, storage.NewMemory(), Limits{})

	if _, err := svc.Schedule(ctx, 1, chat, "x", time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n, err := svc.Cancel(ctx, 1, 1, 1); err != nil || n != 1 {
		t.Fatalf("cancel without list: n=%d err=%v", n, err)
	}
}

func TestRemindersSurviveRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	svc, _ := newService(t, st, Limits{})
	r, err := svc.Schedule(ctx, 1, chat, "persist me", time.Hour)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// "restart": new registry + service over the same store
	svc2, _ := newService(t, st, Limits{})
	got, err := svc2.List(ctx, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("list after restart: %d items, err=%v", len(got), err)
	}
	if got[0].Meta().ID != r.Meta().ID || got[0].Text != "persist me" {
		t.Fatalf("restored %+v", got[0])
	}
}

func texts(rs []*Reminder) string {
	out := ""
	for i, r := range rs {
		if i > 0 {
			out += ","
		}
		out += r.Text
	}
	return out
}
