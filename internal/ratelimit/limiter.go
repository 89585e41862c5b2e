// Package ratelimit bounds how many pipeline invocations a single client may
// make per one-minute window.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// Window is the length of a rate-limit window.
	Window = 60 * time.Second

	// DefaultLimit is the number of requests admitted per window.
	DefaultLimit = 10
)

// Limiter is the rate-limit contract the pipeline depends on.
// Implementations never return errors: missing data means "not limited".
type Limiter interface {
	// IsLimited reports whether id has used up its quota for the current window.
	IsLimited(ctx context.Context, id string) bool
	// Record consumes one unit of quota for id, opening a new window if needed.
	Record(ctx context.Context, id string)
	// SecondsUntilReset returns the whole seconds (>= 1) until id's window resets.
	SecondsUntilReset(ctx context.Context, id string) int
	// Count returns the number of requests recorded in id's live window.
	Count(ctx context.Context, id string) int
	// Limit returns the per-window quota.
	Limit() int
}

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is an in-process fixed-window limiter keyed by client identity.
// Windows are anchored to each identity's first request, not to the clock.
// Expired entries are dropped lazily when read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Memory limiter.
type Option func(*Memory)

// WithClock replaces the time source. Used by tests to step through windows.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithWindow overrides the window length.
func WithWindow(d time.Duration) Option {
	return func(m *Memory) {
		if d > 0 {
			m.window = d
		}
	}
}

// NewMemory creates a limiter admitting limit requests per window.
// A non-positive limit falls back to DefaultLimit.
func NewMemory(limit int, opts ...Option) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m := &Memory{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  Window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// live returns the unexpired entry for id, dropping it if it has expired.
// A request at exactly resetAt sees an expired window. Caller holds m.mu.
func (m *Memory) live(id string, now time.Time) *entry {
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	if !now.Before(e.resetAt) {
		delete(m.entries, id)
		return nil
	}
	return e
}

func (m *Memory) IsLimited(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(id, m.now())
	return e != nil && e.count >= m.limit
}

func (m *Memory) Record(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e := m.live(id, now); e != nil {
		e.count++
		return
	}
	m.entries[id] = &entry{count: 1, resetAt: now.Add(m.window)}
}

func (m *Memory) SecondsUntilReset(_ context.Context, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := m.live(id, now)
	if e == nil {
		return int(m.window / time.Second)
	}
	return ceilSeconds(e.resetAt.Sub(now))
}

func (m *Memory) Count(_ context.Context, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.live(id, m.now()); e != nil {
		return e.count
	}
	return 0
}

func (m *Memory) Limit() int { return m.limit }

// Len returns the number of identities currently tracked, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ceilSeconds rounds d up to whole seconds, never below 1.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
