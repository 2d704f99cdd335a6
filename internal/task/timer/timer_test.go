package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestArmFiresOnce(t *testing.T) {
	t.Parallel()
	s := NewSet()
	var fired atomic.Int32
	s.Arm("k", time.Now().Add(10*time.Millisecond), func() { fired.Add(1) })

	waitFor(t, func() bool { return fired.Load() == 1 })
	if s.Armed("k") {
		t.Fatal("key still armed after fire")
	}
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
}

func TestOverdueFiresImmediately(t *testing.T) {
	t.Parallel()
	s := NewSet()
	var fired atomic.Int32
	s.Arm("past", time.Now().Add(-time.Hour), func() { fired.Add(1) })
	waitFor(t, func() bool { return fired.Load() == 1 })
}

func TestCancelPreventsFire(t *testing.T) {
	t.Parallel()
	s := NewSet()
	var fired atomic.Int32
	s.Arm("k", time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })

	if !s.Cancel("k") {
		t.Fatal("cancel of armed key returned false")
	}
	if s.Cancel("k") {
		t.Fatal("second cancel returned true")
	}
	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("canceled timer fired %d times", got)
	}
}

func TestRearmReplacesPrevious(t *testing.T) {
	t.Parallel()
	s := NewSet()
	var old, renew atomic.Int32
	s.Arm("k", time.Now().Add(15*time.Millisecond), func() { old.Add(1) })
	s.Arm("k", time.Now().Add(40*time.Millisecond), func() { renew.Add(1) })

	waitFor(t, func() bool { return renew.Load() == 1 })
	if got := old.Load(); got != 0 {
		t.Fatalf("replaced timer fired %d times", got)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d, want 0", s.Len())
	}
}

func TestStopAll(t *testing.T) {
	t.Parallel()
	s := NewSet()
	var fired atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		s.Arm(k, time.Now().Add(20*time.Millisecond), func() { fired.Add(1) })
	}
	s.StopAll()
	if s.Len() != 0 {
		t.Fatalf("len = %d after StopAll", s.Len())
	}
	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired %d times after StopAll", got)
	}
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
