// Package dialogflow calls the Dialogflow v2 detect-intent API and
// normalizes its replies.
package dialogflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	df "google.golang.org/api/dialogflow/v2"

	"github.com/soyeahso/flowbridge/internal/auth"
	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/logging"
	"github.com/soyeahso/flowbridge/internal/version"
)

// Client sends detect-intent requests for a session.
type Client interface {
	Send(ctx context.Context, sessionID string, req Request) (*Result, error)
}

// TokenSource supplies bearer tokens.
type TokenSource interface {
	AccessToken(ctx context.Context) (auth.BearerToken, error)
}

// APIClient is the HTTP implementation of Client.
type APIClient struct {
	projectID    string
	endpoint     string
	languageCode string
	tokens       TokenSource
	client       *http.Client
	log          *logging.Logger
}

// NewAPIClient creates a client for the configured agent.
func NewAPIClient(cfg config.DialogflowConfig, tokens TokenSource, log *logging.Logger) *APIClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultEndpoint
	}
	lang := cfg.LanguageCode
	if lang == "" {
		lang = config.DefaultLanguageCode
	}
	return &APIClient{
		projectID:    cfg.ProjectID,
		endpoint:     strings.TrimRight(endpoint, "/"),
		languageCode: lang,
		tokens:       tokens,
		client:       &http.Client{Timeout: timeout},
		log:          log.Sub("dialogflow"),
	}
}

// maxResponseBytes caps a detect-intent response body. A longer body is
// truncated and fails to parse.
const maxResponseBytes = 1 << 20

// SessionURL returns the detect-intent URL for sessionID.
func (c *APIClient) SessionURL(sessionID string) string {
	return fmt.Sprintf("%s/v2/projects/%s/agent/sessions/%s:detectIntent",
		c.endpoint, url.PathEscape(c.projectID), url.PathEscape(sessionID))
}

// Send issues one detect-intent call. It never retries.
func (c *APIClient) Send(ctx context.Context, sessionID string, req Request) (*Result, error) {
	start := time.Now()
	fail := func(status int, body string, err error) (*Result, error) {
		return nil, &RequestError{SessionID: sessionID, Kind: req.Kind(), StatusCode: status, Body: body, Err: err}
	}

	body, err := req.body(c.languageCode)
	if err != nil {
		return fail(0, "", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fail(0, "", fmt.Errorf("failed to marshal request: %w", err))
	}

	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SessionURL(sessionID), bytes.NewReader(payload))
	if err != nil {
		return fail(0, "", fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	tok.SetAuthHeader(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fail(0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, strings.TrimSpace(string(respBody)), nil)
	}

	var parsed df.GoogleCloudDialogflowV2DetectIntentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("failed to parse response: %w", err))
	}

	res, err := normalize(sessionID, &parsed)
	if err != nil {
		return fail(resp.StatusCode, "", err)
	}

	c.log.Debug().
		Str("sessionId", sessionID).
		Str("kind", string(req.Kind())).
		Str("intent", res.Intent).
		Bool("isFallback", res.Message.IsFallback).
		Dur("duration", time.Since(start)).
		Msg("detect intent")
	return res, nil
}

// RequestError reports a failed detect-intent call.
type RequestError struct {
	SessionID  string
	Kind       RequestKind
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("dialogflow %s request for session %s: API error (%d): %s", e.Kind, e.SessionID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dialogflow %s request for session %s: %v", e.Kind, e.SessionID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
