package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/jws"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAccessToken_CachedTokenSkipsNetwork(t *testing.T) {
	srv, calls := tokenServer(t, nil)
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())

	tok, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Token)

	for range 5 {
		again, err := p.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tok, again)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestAccessToken_RefreshesNearExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		writeToken(w, fmt.Sprintf("tok-%d", n), 3600)
	})
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{Now: clock.Now}, testLogger())

	first, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), first.ExpiresAt)

	// 59 minutes in, one second inside the margin.
	clock.Advance(59*time.Minute + time.Second)
	second, err := p.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", second.Token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAccessToken_ShortLivedTokenNeverCached(t *testing.T) {
	srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		writeToken(w, "short", 30)
	})
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())

	_, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	_, err = p.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestAccessToken_ConcurrentCallersShareRefresh(t *testing.T) {
	srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		time.Sleep(50 * time.Millisecond)
		writeToken(w, "shared", 3600)
	})
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := p.AccessToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok.Token
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "shared", tok)
	}
}

func TestAccessToken_SendsSignedAssertion(t *testing.T) {
	key := rsaKey(t)
	var got *jws.ClaimSet
	srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, GrantType, r.PostForm.Get("grant_type"))

		assertion := r.PostForm.Get("assertion")
		assert.NoError(t, jws.Verify(assertion, &key.PublicKey))
		claims, err := jws.Decode(assertion)
		assert.NoError(t, err)
		got = claims
		writeToken(w, "ok", 3600)
	})

	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())
	_, err := p.AccessToken(context.Background())
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "bot@agent.iam.gserviceaccount.com", got.Iss)
	assert.Equal(t, srv.URL, got.Aud)
	assert.Equal(t, Scope, got.Scope)
	assert.Equal(t, int64(3600), got.Exp-got.Iat)
}

func TestAccessToken_ClientErrorIsNotRetried(t *testing.T) {
	srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{Retries: 3}, testLogger())

	_, err := p.AccessToken(context.Background())
	require.Error(t, err)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)
	assert.Contains(t, ae.Body, "invalid_grant")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAccessToken_ServerErrorIsRetried(t *testing.T) {
	srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		if n == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeToken(w, "second-try", 3600)
	})
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{Retries: 2}, testLogger())

	tok, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second-try", tok.Token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAccessToken_MissingAccessToken(t *testing.T) {
	srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		_, _ = w.Write([]byte(`{"expires_in":3600}`))
	})
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())

	_, err := p.AccessToken(context.Background())
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "decode", ae.Op)
}

func TestAccessToken_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProvider(testCreds(t, url), ProviderConfig{}, testLogger())
	_, err := p.AccessToken(context.Background())

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 0, ae.StatusCode)
	assert.NotNil(t, errors.Unwrap(ae))
}

func TestInvalidateForcesRefresh(t *testing.T) {
	srv, calls := tokenServer(t, nil)
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())

	_, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	p.Invalidate()
	_, err = p.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestProviderIsTokenSource(t *testing.T) {
	srv, _ := tokenServer(t, nil)
	p := NewProvider(testCreds(t, srv.URL), ProviderConfig{}, testLogger())

	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)
	assert.True(t, tok.Valid())
}
