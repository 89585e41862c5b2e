package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// SessionCache is a TTL-based in-memory store for admin sessions.
// Uses sync.Map for lock-free reads on the hot path.
//
// Sliding renewal: once a session is past half its TTL, Get() signals that it
// should be renewed. The caller re-issues the cookie and calls Renew(). The
// refreshing flag makes sure only one request per session does that.
type SessionCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

// Session is an authenticated admin session.
type Session struct {
	CreatedAt time.Time
	ExpiresAt time.Time
}

type cacheEntry struct {
	session    Session
	renewAt    time.Time
	refreshing atomic.Bool
}

// NewSessionCache creates a cache whose sessions live for ttl.
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of a new or renewed session.
func (c *SessionCache) TTL() time.Duration { return c.ttl }

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Session    Session
	Hit        bool // true if the session exists and has not expired
	NeedsRenew bool // true once per session after it passes half its TTL
}

// Get looks up a session token.
//
// Returns:
//   - Fresh hit:    {Session, Hit=true,  NeedsRenew=false}
//   - Ageing hit:   {Session, Hit=true,  NeedsRenew=true}  (first caller only)
//   - Miss/expired: {zero,    Hit=false, NeedsRenew=false}
//
// Expired sessions are removed on read.
func (c *SessionCache) Get(token string) GetResult {
	val, ok := c.store.Load(token)
	if !ok {
		return GetResult{}
	}
	entry := val.(*cacheEntry)

	now := c.now()
	if !now.Before(entry.session.ExpiresAt) {
		c.store.CompareAndDelete(token, entry)
		return GetResult{}
	}
	if now.Before(entry.renewAt) {
		return GetResult{Session: entry.session, Hit: true}
	}

	return GetResult{
		Session:    entry.session,
		Hit:        true,
		NeedsRenew: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set starts a session for token.
func (c *SessionCache) Set(token string) Session {
	now := c.now()
	s := Session{CreatedAt: now, ExpiresAt: now.Add(c.ttl)}
	c.store.Store(token, &cacheEntry{session: s, renewAt: now.Add(c.ttl / 2)})
	return s
}

// Renew extends a live session by a full TTL. It reports false when the
// session is gone.
func (c *SessionCache) Renew(token string) (Session, bool) {
	val, ok := c.store.Load(token)
	if !ok {
		return Session{}, false
	}
	old := val.(*cacheEntry)

	now := c.now()
	if !now.Before(old.session.ExpiresAt) {
		c.store.CompareAndDelete(token, old)
		return Session{}, false
	}
	s := Session{CreatedAt: old.session.CreatedAt, ExpiresAt: now.Add(c.ttl)}
	c.store.Store(token, &cacheEntry{session: s, renewAt: now.Add(c.ttl / 2)})
	return s, true
}

// Delete removes a session.
func (c *SessionCache) Delete(token string) {
	c.store.Delete(token)
}

// Sweep drops expired sessions and returns how many were removed.
func (c *SessionCache) Sweep() int {
	now := c.now()
	removed := 0
	c.store.Range(func(key, val any) bool {
		if !now.Before(val.(*cacheEntry).session.ExpiresAt) {
			if c.store.CompareAndDelete(key, val) {
				removed++
			}
		}
		return true
	})
	return removed
}
