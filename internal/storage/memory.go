package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// memoryStore keeps records in-process. It is the default backend when no
// storage section is configured and the workhorse for tests. Records do
// not survive restarts.
type memoryStore struct {
	mu   sync.RWMutex
	recs map[string]memRecord // key: category + "/" + id
	seq  uint64
}

type memRecord struct {
	rec Record
	seq uint64 // insertion order tiebreak
}

func NewMemory() Store {
	return &memoryStore{recs: map[string]memRecord{}}
}

func memKey(category, id string) string { return category + "/" + id }

func (s *memoryStore) Insert(_ context.Context, r Record) error {
	if r.Category == "" || r.ID == "" {
		return errors.New("record needs category and id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(r.Category, r.ID)
	if _, ok := s.recs[k]; ok {
		return fmt.Errorf("%s/%s: %w", r.Category, r.ID, ErrExists)
	}
	// copy payload so callers can't mutate stored state
	r.Payload = append([]byte(nil), r.Payload...)
	s.seq++
	s.recs[k] = memRecord{rec: r, seq: s.seq}
	return nil
}

func (s *memoryStore) Get(_ context.Context, category, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.recs[memKey(category, id)]
	if !ok {
		return Record{}, false, nil
	}
	r := m.rec
	r.Payload = append([]byte(nil), r.Payload...)
	return r, true, nil
}

func (s *memoryStore) list(category string, owner int64, byOwner bool) []Record {
	s.mu.RLock()
	tmp := make([]memRecord, 0, len(s.recs))
	for _, m := range s.recs {
		if m.rec.Category != category {
			continue
		}
		if byOwner && m.rec.Owner != owner {
			continue
		}
		tmp = append(tmp, m)
	}
	s.mu.RUnlock()

	sort.Slice(tmp, func(i, j int) bool {
		a, b := tmp[i], tmp[j]
		if !a.rec.FireAt.Equal(b.rec.FireAt) {
			return a.rec.FireAt.Before(b.rec.FireAt)
		}
		return a.seq < b.seq
	})
	out := make([]Record, len(tmp))
	for i, m := range tmp {
		out[i] = m.rec
		out[i].Payload = append([]byte(nil), m.rec.Payload...)
	}
	return out
}

func (s *memoryStore) ListCategory(_ context.Context, category string) ([]Record, error) {
	return s.list(category, 0, false), nil
}

func (s *memoryStore) ListOwner(_ context.Context, category string, owner int64) ([]Record, error) {
	return s.list(category, owner, true), nil
}

func (s *memoryStore) CountOwner(_ context.Context, category string, owner int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.recs {
		if m.rec.Category == category && m.rec.Owner == owner {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Delete(_ context.Context, category, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(category, id)
	if _, ok := s.recs[k]; !ok {
		return false, nil
	}
	delete(s.recs, k)
	return true, nil
}

func (s *memoryStore) Maintain(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }
