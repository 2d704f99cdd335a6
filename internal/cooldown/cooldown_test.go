package cooldown

import (
	"context"
	"testing"
	"time"

	"remibot/internal/storage"
	"remibot/internal/task/reload"
	logx "remibot/pkg/logx"
)

func newGate(t *testing.T, st storage.Store, window time.Duration) *Gate {
	t.Helper()
	reg := reload.New(st, logx.Nop())
	if err := reg.Register(Codec{Log: logx.Nop()}); err != nil {
		t.Fatalf("register codec: %v", err)
	}
	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })
	if _, err := reg.ReplayAll(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}
	return NewGate(reg, window, logx.Nop())
}

func TestGateOpensAndBlocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := newGate(t, storage.NewMemory(), time.Hour)

	if d, err := g.Remaining(ctx, 1); err != nil || d != 0 {
		t.Fatalf("fresh user: remaining=%v err=%v", d, err)
	}

	if err := g.Open(ctx, 1); err != nil {
		t.Fatalf("open: %v", err)
	}
	d, err := g.Remaining(ctx, 1)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if d <= 50*time.Minute || d > time.Hour {
		t.Fatalf("remaining = %v, want close to 1h", d)
	}

	// an unrelated user is unaffected
	if d, _ := g.Remaining(ctx, 2); d != 0 {
		t.Fatalf("other user blocked: %v", d)
	}
}

func TestGateExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := newGate(t, storage.NewMemory(), 30*time.Millisecond)

	if err := g.Open(ctx, 7); err != nil {
		t.Fatalf("open: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		d, err := g.Remaining(ctx, 7)
		if err != nil {
			t.Fatalf("remaining: %v", err)
		}
		if d == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("gate never reopened, remaining=%v", d)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGateSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	g := newGate(t, st, time.Hour)
	if err := g.Open(ctx, 9); err != nil {
		t.Fatalf("open: %v", err)
	}

	// "restart": fresh registry over the same store
	g2 := newGate(t, st, time.Hour)
	d, err := g2.Remaining(ctx, 9)
	if err != nil {
		t.Fatalf("remaining after restart: %v", err)
	}
	if d == 0 {
		t.Fatal("cooldown lost across restart")
	}
}

func TestReopenRestartsWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := newGate(t, storage.NewMemory(), time.Hour)

	if err := g.Open(ctx, 3); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := g.Open(ctx, 3); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d, err := g.Remaining(ctx, 3)
	if err != nil || d == 0 {
		t.Fatalf("remaining=%v err=%v", d, err)
	}
}
