package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"remibot/internal/task/reload"
	kit "remibot/internal/transport"
	logx "remibot/pkg/logx"
)

var (
	ErrEmptyText    = errors.New("reminder text is empty")
	ErrTooMany      = errors.New("too many pending reminders")
	ErrSpanTooShort = errors.New("time span too short")
	ErrSpanTooLong  = errors.New("time span too long")
	ErrBadIndex     = errors.New("no reminder with that number")
)

// Limits bounds per-user reminder usage. Zero values pick the defaults.
type Limits struct {
	MaxPerUser int
	MinSpan    time.Duration
	MaxSpan    time.Duration
}

const (
	defaultMaxPerUser = 50
	defaultMinSpan    = time.Second
	defaultMaxSpan    = 365 * 24 * time.Hour
	maxTextLen        = 1000
)

func (l Limits) withDefaults() Limits {
	if l.MaxPerUser <= 0 {
		l.MaxPerUser = defaultMaxPerUser
	}
	if l.MinSpan <= 0 {
		l.MinSpan = defaultMinSpan
	}
	if l.MaxSpan <= 0 {
		l.MaxSpan = defaultMaxSpan
	}
	return l
}

// Service is the user-facing reminder API: schedule, list, cancel.
//
// Cancel works on the numbers of the owner's most recent listing, so the
// numbers a user sees stay valid until they list again, even if other
// reminders fire in between.
type Service struct {
	reg    *reload.Registry
	sink   Sink
	log    logx.Logger
	limits Limits

	mu       sync.Mutex
	lastList map[int64][]string // owner -> reminder ids as last shown
}

func NewService(reg *reload.Registry, sink Sink, limits Limits, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		reg:      reg,
		sink:     sink,
		log:      log.With(logx.String("comp", "reminders")),
		limits:   limits.withDefaults(),
		lastList: map[int64][]string{},
	}
}

// Codec returns the replay codec wired to this service's sink.
func (s *Service) Codec() reload.Codec {
	return Codec{Sink: s.sink, Log: s.log}
}

// SetLimits applies new bounds (hot-reload). Existing reminders are not
// re-validated.
func (s *Service) SetLimits(l Limits) {
	s.mu.Lock()
	s.limits = l.withDefaults()
	s.mu.Unlock()
}

func (s *Service) currentLimits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Schedule creates a reminder firing after the given span.
func (s *Service) Schedule(ctx context.Context, owner int64, chat kit.ChatTarget, text string, in time.Duration) (*Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}
	lim := s.currentLimits()
	if in < lim.MinSpan {
		return nil, fmt.Errorf("%w (minimum %s)", ErrSpanTooShort, FormatSpan(lim.MinSpan))
	}
	if in > lim.MaxSpan {
		return nil, fmt.Errorf("%w (maximum %s)", ErrSpanTooLong, FormatSpan(lim.MaxSpan))
	}
	n, err := s.reg.Count(ctx, Category, owner)
	if err != nil {
		return nil, err
	}
	if n >= lim.MaxPerUser {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooMany, lim.MaxPerUser)
	}

	r := &Reminder{
		Text:     text,
		ChatID:   chat.ChatID,
		ThreadID: chat.ThreadID,
		sink:     s.sink,
		log:      s.log,
	}
	r.meta = reload.Meta{
		Category: Category,
		Owner:    owner,
		FireAt:   time.Now().Add(in),
	}
	if err := s.reg.Schedule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns the owner's pending reminders ordered by fire time and
// snapshots their ids for later Cancel calls.
func (s *Service) List(ctx context.Context, owner int64) ([]*Reminder, error) {
	tasks, err := s.reg.List(ctx, Category, owner)
	if err != nil {
		return nil, err
	}
	out := make([]*Reminder, 0, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		r, ok := t.(*Reminder)
		if !ok {
			continue
		}
		out = append(out, r)
		ids = append(ids, r.meta.ID)
	}
	s.mu.Lock()
	s.lastList[owner] = ids
	s.mu.Unlock()
	return out, nil
}

// Cancel removes the reminders numbered from..to (1-based, inclusive) in
// the owner's last listing. Without a prior listing it lists first, so
// "/reminders cancel 1" works straight away. Returns how many reminders
// were actually removed; numbers whose reminder already fired are simply
// skipped.
func (s *Service) Cancel(ctx context.Context, owner int64, from, to int) (int, error) {
	if from > to {
		from, to = to, from
	}
	if from < 1 {
		return 0, ErrBadIndex
	}

	s.mu.Lock()
	ids, ok := s.lastList[owner]
	s.mu.Unlock()
	if !ok {
		if _, err := s.List(ctx, owner); err != nil {
			return 0, err
		}
		s.mu.Lock()
		ids = s.lastList[owner]
		s.mu.Unlock()
	}
	if to > len(ids) {
		return 0, fmt.Errorf("%w (you have %d listed)", ErrBadIndex, len(ids))
	}

	canceled := 0
	for i := from; i <= to; i++ {
		ok, err := s.reg.Cancel(ctx, Category, ids[i-1])
		if err != nil {
			return canceled, err
		}
		if ok {
			canceled++
		}
	}
	s.log.Debug("reminders canceled",
		logx.Int64("owner", owner),
		logx.Int("from", from), logx.Int("to", to),
		logx.Int("removed", canceled),
	)
	return canceled, nil
}
