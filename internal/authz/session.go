package authz

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/obs"
)

// Token is the session material returned by the backend's credential login.
type Token struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int64
	RefreshExpiresIn int64
}

// Credentials identify the service account used for backend administration.
type Credentials struct {
	Username string
	Password string
}

// Loginer performs a credential login against the authorization backend.
type Loginer interface {
	Login(ctx context.Context, username, password string) (Token, error)
}

type sessionEntry struct {
	token  Token
	expiry time.Time
}

// SessionCache caches the service-account session per identity. A cached,
// unexpired token is returned without any network call; concurrent misses for
// the same identity collapse to a single in-flight login.
type SessionCache struct {
	login Loginer
	log   *zap.Logger
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]sessionEntry
	flight  singleflight.Group
}

// SessionOption configures SessionCache.
type SessionOption func(*SessionCache)

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(c *SessionCache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewSessionCache constructs a SessionCache over the given login transport.
func NewSessionCache(login Loginer, log *zap.Logger, opts ...SessionOption) *SessionCache {
	c := &SessionCache{
		login:   login,
		log:     log,
		now:     time.Now,
		entries: make(map[string]sessionEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ensure returns a valid session token for the identity, logging in only when
// no unexpired token is cached.
func (c *SessionCache) Ensure(ctx context.Context, creds Credentials) (Token, error) {
	if tok, ok := c.cached(creds.Username); ok {
		obs.SessionCacheHits.Inc()
		return tok, nil
	}

	v, err, _ := c.flight.Do(creds.Username, func() (any, error) {
		// Another caller may have populated the entry while we queued.
		if tok, ok := c.cached(creds.Username); ok {
			return tok, nil
		}
		tok, err := c.login.Login(ctx, creds.Username, creds.Password)
		if err != nil {
			return Token{}, err
		}
		obs.AdminLogins.Inc()
		expiry := c.tokenExpiry(tok)
		c.mu.Lock()
		c.entries[creds.Username] = sessionEntry{token: tok, expiry: expiry}
		c.mu.Unlock()
		c.log.Info("admin session established",
			zap.String("identity", creds.Username),
			zap.Time("expiry", expiry),
		)
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Invalidate drops the cached session for the identity so the next Ensure
// performs a fresh login.
func (c *SessionCache) Invalidate(username string) {
	c.mu.Lock()
	delete(c.entries, username)
	c.mu.Unlock()
}

func (c *SessionCache) cached(username string) (Token, bool) {
	c.mu.RLock()
	e, ok := c.entries[username]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiry) {
		return Token{}, false
	}
	return e.token, true
}

// tokenExpiry derives the cache expiry from the access token's exp claim.
// Any decode failure (malformed token, non-JSON payload, missing claim) falls
// back to now + ExpiresIn; decoding problems are never fatal.
func (c *SessionCache) tokenExpiry(tok Token) time.Time {
	fallback := c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}

// AdminSession binds the cache to a fixed identity, giving backend transports
// a token source they can refresh after a stale-session rejection.
type AdminSession struct {
	cache *SessionCache
	creds Credentials
}

// Bound returns an AdminSession for the given credentials.
func (c *SessionCache) Bound(creds Credentials) *AdminSession {
	return &AdminSession{cache: c, creds: creds}
}

// Ensure returns the current access token for the bound identity.
func (s *AdminSession) Ensure(ctx context.Context) (string, error) {
	tok, err := s.cache.Ensure(ctx, s.creds)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate drops the bound identity's cached session.
func (s *AdminSession) Invalidate() {
	s.cache.Invalidate(s.creds.Username)
}
