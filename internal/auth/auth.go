// Package auth guards the admin surface: a single bcrypt-hashed password
// exchanged for an opaque session token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotConfigured   = errors.New("admin password not configured")
	ErrInvalidPassword = errors.New("invalid admin password")
	ErrInvalidSession  = errors.New("missing or expired admin session")
)

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 8 * time.Hour

const tokenBytes = 32

// Authenticator checks admin credentials and session tokens.
type Authenticator interface {
	Login(ctx context.Context, password string) (token string, s Session, err error)
	Authenticate(ctx context.Context, token string) (GetResult, error)
	Renew(ctx context.Context, token string) (Session, bool)
	Logout(ctx context.Context, token string)
}

// AdminAuthenticator compares passwords against one bcrypt hash and keeps
// sessions in a SessionCache. bcrypt runs only on login, never per request.
type AdminAuthenticator struct {
	hash     []byte
	sessions *SessionCache
	logger   *zap.Logger
}

// AdminAuthConfig configures the AdminAuthenticator.
type AdminAuthConfig struct {
	PasswordHash string
	SessionTTL   time.Duration // Default: 8h
	Logger       *zap.Logger
}

// NewAdminAuthenticator creates an authenticator. An empty PasswordHash
// disables login.
func NewAdminAuthenticator(cfg AdminAuthConfig) (*AdminAuthenticator, error) {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("NewAdminAuthenticator: %w", err)
		}
	}
	return &AdminAuthenticator{
		hash:     []byte(cfg.PasswordHash),
		sessions: NewSessionCache(ttl),
		logger:   logger,
	}, nil
}

// Enabled reports whether a password hash is configured.
func (a *AdminAuthenticator) Enabled() bool { return len(a.hash) > 0 }

// Login verifies password and opens a session.
func (a *AdminAuthenticator) Login(_ context.Context, password string) (string, Session, error) {
	if !a.Enabled() {
		return "", Session{}, ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		a.logger.Warn("admin login failed")
		return "", Session{}, ErrInvalidPassword
	}

	token, err := newToken()
	if err != nil {
		return "", Session{}, fmt.Errorf("Login: %w", err)
	}
	s := a.sessions.Set(token)
	a.logger.Info("admin session opened", zap.Time("expires_at", s.ExpiresAt))
	return token, s, nil
}

// Authenticate validates a session token.
func (a *AdminAuthenticator) Authenticate(_ context.Context, token string) (GetResult, error) {
	if !a.Enabled() {
		return GetResult{}, ErrNotConfigured
	}
	if token == "" {
		return GetResult{}, ErrInvalidSession
	}
	res := a.sessions.Get(token)
	if !res.Hit {
		return GetResult{}, ErrInvalidSession
	}
	return res, nil
}

// Renew extends a live session by a full TTL.
func (a *AdminAuthenticator) Renew(_ context.Context, token string) (Session, bool) {
	return a.sessions.Renew(token)
}

// Logout ends a session. Unknown tokens are ignored.
func (a *AdminAuthenticator) Logout(_ context.Context, token string) {
	a.sessions.Delete(token)
}

// RunSweeper drops expired sessions every interval until ctx is done.
func (a *AdminAuthenticator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.Sweep(); n > 0 {
				a.logger.Debug("expired admin sessions removed", zap.Int("count", n))
			}
		}
	}
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("HashPassword: %w", err)
	}
	return string(h), nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
