// Package auth obtains Dialogflow bearer tokens from service-account credentials.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/soyeahso/flowbridge/internal/logging"
)

// DefaultMargin is how long before expiry a cached token stops being used.
const DefaultMargin = 60 * time.Second

// ProviderConfig tunes a Provider. Zero values pick defaults.
type ProviderConfig struct {
	HTTPClient *http.Client
	Margin     time.Duration
	Retries    int // total attempts per refresh
	Now        func() time.Time
}

// Provider exchanges signed assertions for bearer tokens and caches the result.
type Provider struct {
	signer   *AssertionSigner
	tokenURL string
	client   *http.Client
	margin   time.Duration
	retries  int
	now      func() time.Time
	log      *logging.Logger

	cache     TokenCache
	refreshMu sync.Mutex
}

// NewProvider creates a token provider for creds.
func NewProvider(creds Credentials, cfg ProviderConfig, log *logging.Logger) *Provider {
	p := &Provider{
		signer:   NewAssertionSigner(creds),
		tokenURL: creds.TokenURL,
		client:   cfg.HTTPClient,
		margin:   cfg.Margin,
		retries:  cfg.Retries,
		now:      cfg.Now,
		log:      log.Sub("auth"),
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 30 * time.Second}
	}
	if p.margin <= 0 {
		p.margin = DefaultMargin
	}
	if p.retries < 1 {
		p.retries = 1
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// AccessToken returns a usable bearer token, refreshing it when the cached
// one is missing or about to expire. Concurrent callers share one refresh.
func (p *Provider) AccessToken(ctx context.Context) (BearerToken, error) {
	if tok, ok := p.cache.Get(p.now(), p.margin); ok {
		return tok, nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if tok, ok := p.cache.Get(p.now(), p.margin); ok {
		return tok, nil
	}

	tok, err := p.refresh(ctx)
	if err != nil {
		return BearerToken{}, err
	}
	p.cache.Store(tok)
	return tok, nil
}

// Token implements oauth2.TokenSource.
func (p *Provider) Token() (*oauth2.Token, error) {
	tok, err := p.AccessToken(context.Background())
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

// Invalidate forgets the cached token so the next call refreshes.
func (p *Provider) Invalidate() {
	p.cache.Clear()
}

func (p *Provider) refresh(ctx context.Context) (BearerToken, error) {
	var lastErr *AuthError
	for attempt := 1; attempt <= p.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return BearerToken{}, &AuthError{Op: "exchange", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt-1) * 200 * time.Millisecond):
			}
		}

		tok, err := p.exchange(ctx)
		if err == nil {
			p.log.Debug().Time("expiresAt", tok.ExpiresAt).Int("attempt", attempt).Msg("token refreshed")
			return tok, nil
		}
		lastErr = err
		if !err.temporary() {
			break
		}
		p.log.Warn().Err(err).Int("attempt", attempt).Msg("token exchange failed")
	}
	return BearerToken{}, lastErr
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (p *Provider) exchange(ctx context.Context) (BearerToken, *AuthError) {
	issued := p.now()
	assertion, err := p.signer.Sign(issued)
	if err != nil {
		if ae, ok := err.(*AuthError); ok {
			return BearerToken{}, ae
		}
		return BearerToken{}, &AuthError{Op: "sign", Err: err}
	}

	form := url.Values{
		"grant_type": {GrantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return BearerToken{}, &AuthError{Op: "exchange", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return BearerToken{}, &AuthError{Op: "exchange", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return BearerToken{}, &AuthError{Op: "exchange", Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return BearerToken{}, &AuthError{Op: "exchange", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return BearerToken{}, &AuthError{Op: "decode", Err: err}
	}
	if tr.AccessToken == "" {
		return BearerToken{}, &AuthError{Op: "decode", Err: fmt.Errorf("response has no access_token")}
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = assertionLifetime
	}
	return BearerToken{Token: tr.AccessToken, ExpiresAt: issued.Add(lifetime)}, nil
}
