package auth

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// BearerToken is an access token and the instant it stops being valid.
type BearerToken struct {
	Token     string
	ExpiresAt time.Time
}

// UsableAt reports whether the token is still valid margin after now.
func (t BearerToken) UsableAt(now time.Time, margin time.Duration) bool {
	return t.Token != "" && now.Add(margin).Before(t.ExpiresAt)
}

// OAuth2 converts the token for use with golang.org/x/oauth2 clients.
func (t BearerToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Token,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
}

// SetAuthHeader sets the Authorization header on r.
func (t BearerToken) SetAuthHeader(r *http.Request) {
	t.OAuth2().SetAuthHeader(r)
}

// TokenCache holds the most recent token of one provider.
type TokenCache struct {
	mu  sync.RWMutex
	tok BearerToken
}

// Get returns the cached token when it is usable at now with margin to spare.
func (c *TokenCache) Get(now time.Time, margin time.Duration) (BearerToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.tok.UsableAt(now, margin) {
		return BearerToken{}, false
	}
	return c.tok, true
}

// Store replaces the cached token.
func (c *TokenCache) Store(tok BearerToken) {
	c.mu.Lock()
	c.tok = tok
	c.mu.Unlock()
}

// Clear drops the cached token.
func (c *TokenCache) Clear() {
	c.Store(BearerToken{})
}
