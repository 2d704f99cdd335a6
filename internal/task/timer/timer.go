// Package timer provides a keyed set of one-shot wall-clock timers with
// upsert and cancel semantics.
package timer

import (
	"sync"
	"time"
)

// Set manages named one-shot timers. Arming an already-armed key replaces
// the previous timer. Each armed timer gets a version that is never
// reused, so a replaced or canceled timer's callback cannot fire even if
// it already left time.AfterFunc's queue.
type Set struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextVer uint64
}

type entry struct {
	timer *time.Timer
	ver   uint64
}

func NewSet() *Set {
	return &Set{entries: map[string]*entry{}}
}

// Arm schedules fn to run once at the given time. A past (or zero-delay)
// time fires immediately. fn runs on the timer goroutine; callers that
// need sequencing bring their own.
func (s *Set) Arm(key string, at time.Time, fn func()) {
	if key == "" || fn == nil {
		return
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		old.timer.Stop()
	}
	s.nextVer++
	e := &entry{ver: s.nextVer}
	s.entries[key] = e
	ver := e.ver

	e.timer = time.AfterFunc(delay, func() {
		// Fire at most once: claim the key under the lock before running.
		s.mu.Lock()
		cur, ok := s.entries[key]
		if !ok || cur.ver != ver {
			s.mu.Unlock()
			return
		}
		delete(s.entries, key)
		s.mu.Unlock()

		fn()
	})
}

// Cancel stops the timer for key. Returns false when no timer was armed
// (already fired, never armed, or canceled before).
func (s *Set) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, key)
	return true
}

// Armed reports whether key currently has a pending timer.
func (s *Set) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of pending timers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StopAll cancels every pending timer.
func (s *Set) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, k)
	}
}
