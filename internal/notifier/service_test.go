package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "remibot/internal/transport"
	logx "remibot/pkg/logx"
)

// fakeAdapter counts sends and can fail the first N attempts.
type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	failNext int
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return kit.MessageRef{}, errors.New("transient")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 1000}, ad, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "hi"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitFor(t, func() bool { return ad.sentCount() == 1 })
	if ad.sent[0] != "hi" {
		t.Fatalf("sent %q", ad.sent[0])
	}
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{failNext: 2}
	s := New(Config{
		Enabled:       true,
		Workers:       1,
		RatePerSec:    1000,
		RetryMax:      3,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	}, ad, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "eventually"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitFor(t, func() bool { return ad.sentCount() == 1 })
}

func TestNotifyWhenDisabledOrStopped(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}

	s := New(Config{Enabled: false}, ad, logx.Nop())
	s.Start(context.Background())
	if err := s.Notify(kit.Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: %v", err)
	}

	s2 := New(Config{Enabled: true, Workers: 1}, ad, logx.Nop())
	if err := s2.Notify(kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: %v", err)
	}
	s2.Start(context.Background())
	s2.Stop(context.Background())
	if err := s2.Notify(kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop: %v", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 1000, QueueSize: 16}, ad, logx.Nop())
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		if err := s.Notify(kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "drain"}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
	if got := ad.sentCount(); got != 5 {
		t.Fatalf("drained %d of 5", got)
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	// rate 1/s means the worker can't drain while we flood
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 1, QueueSize: 1}, ad, logx.Nop())
	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		s.Stop(ctx)
	}()

	sawFull := false
	for i := 0; i < 10; i++ {
		if err := s.Notify(kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"}); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Fatal("queue never reported full")
	}
}
