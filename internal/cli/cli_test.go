package cli

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/version"
)

// run executes the root command with a fresh home directory layout and
// returns stdout and stderr.
func run(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("FLOWBRIDGE_HOME", home)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"8080", 8080},
		{"-3", -3},
		{"0.5", 0.5},
		{"loopback", "loopback"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), "parseValue(%q)", tt.in)
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken(""))
	assert.Equal(t, "****", maskToken("short-token"))
	assert.Equal(t, "ya29…wxyz", maskToken("ya29.abcdefghijklmnop-wxyz"))
}

func TestCredentialSource(t *testing.T) {
	assert.Equal(t, "service account file /etc/sa.json",
		credentialSource(config.DialogflowConfig{CredentialsFile: "/etc/sa.json", ClientEmail: "x@y"}))
	assert.Equal(t, "inline key for bot@p.iam.gserviceaccount.com",
		credentialSource(config.DialogflowConfig{ClientEmail: "bot@p.iam.gserviceaccount.com", PrivateKey: "pem"}))
	assert.Equal(t, "(not configured)", credentialSource(config.DialogflowConfig{ClientEmail: "x@y"}))
}

func TestVersionCmd(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowbridge "), out)

	out, _, err = run(t, t.TempDir(), "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)
}

func TestConfigCmds(t *testing.T) {
	home := t.TempDir()

	out, _, err := run(t, home, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)

	_, _, err = run(t, home, "config", "get", "gateway.port")
	require.Error(t, err)

	out, _, err = run(t, home, "config", "set", "gateway.port", "9000")
	require.NoError(t, err)
	assert.Equal(t, "Set gateway.port = 9000\n", out)

	_, _, err = run(t, home, "config", "set", "bot.username", "helper.bot")
	require.NoError(t, err)

	out, _, err = run(t, home, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "9000\n", out)

	out, _, err = run(t, home, "config", "get", "bot")
	require.NoError(t, err)
	assert.Equal(t, "username: helper.bot\n", out)

	cfg, err := config.Load(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "helper.bot", cfg.Bot.Username)

	out, _, err = run(t, home, "config", "unset", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "Unset gateway.port\n", out)

	_, _, err = run(t, home, "config", "unset", "gateway.port")
	assert.ErrorContains(t, err, `key "gateway.port" not found`)
}

func TestConfigFlagOverridesPath(t *testing.T) {
	home := t.TempDir()
	alt := filepath.Join(t.TempDir(), "alt.yaml")

	_, _, err := run(t, home, "--config", alt, "config", "set", "fallback.limit", "3")
	require.NoError(t, err)

	data, err := os.ReadFile(alt)
	require.NoError(t, err)
	assert.Contains(t, string(data), "limit: 3")
	assert.NoFileExists(t, filepath.Join(home, "config.yaml"))
}

func TestStatusReportsIssues(t *testing.T) {
	t.Setenv("FLOWBRIDGE_DIALOGFLOW_PROJECT", "")
	home := t.TempDir()
	writeConfig(t, home, "store:\n  driver: memory\n")

	out, _, err := run(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(not configured)")
	assert.Contains(t, out, "dialogflow.projectId: project id is required")
}

func TestDotEnvLoaded(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FLOWBRIDGE_DIALOGFLOW_PROJECT", "")
	require.NoError(t, os.Unsetenv("FLOWBRIDGE_DIALOGFLOW_PROJECT"))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("FLOWBRIDGE_DIALOGFLOW_PROJECT=from-dotenv\n"), 0o600))

	out, _, err := run(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "from-dotenv")
	assert.NotContains(t, out, "project id is required")
}

func TestTokenCmd(t *testing.T) {
	google := newFakeGoogle(t)
	home := t.TempDir()
	writeAgentConfig(t, home, google.URL)

	out, _, err := run(t, home, "token")
	require.NoError(t, err)
	assert.Contains(t, out, "ya29…0001")
	assert.Contains(t, out, "account: bot@flowbridge-test.iam.gserviceaccount.com")

	// Each invocation is a new process with an empty token cache.
	out, _, err = run(t, home, "token", "--show")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ya29.test-token-0002\n"), out)
	assert.Equal(t, int32(2), google.tokenCalls.Load())
}

func TestTokenCmdRequiresAgentConfig(t *testing.T) {
	home := t.TempDir()
	_, _, err := run(t, home, "token")
	assert.ErrorContains(t, err, "dialogflow config")
}

func TestMessageSend(t *testing.T) {
	google := newFakeGoogle(t)
	home := t.TempDir()
	writeAgentConfig(t, home, google.URL)

	out, stderr, err := run(t, home, "message", "send", "--store", "memory", "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "Welcome to support!\nHow can I help?\n  [Billing]\n  [Shipping]\n", out)
	assert.Empty(t, stderr)
	assert.Equal(t, int32(1), google.tokenCalls.Load())
	assert.Positive(t, google.detectCalls.Load())
}

func TestMessageSendFallback(t *testing.T) {
	google := newFakeGoogle(t)
	home := t.TempDir()
	writeAgentConfig(t, home, google.URL)

	_, stderr, err := run(t, home, "message", "send", "--store", "memory", "gibberish")
	require.NoError(t, err)
	assert.Contains(t, stderr, "(fallback reply)")
}

func TestMessageSendAgentDown(t *testing.T) {
	google := newFakeGoogle(t)
	google.fail.Store(true)
	home := t.TempDir()
	writeAgentConfig(t, home, google.URL)

	out, _, err := run(t, home, "message", "send", "--store", "memory", "hello")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultServiceUnavailableMessage+"\n", out)
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(home, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(body), 0o600))
}

func writeAgentConfig(t *testing.T, home, baseURL string) {
	t.Helper()
	t.Setenv("FLOWBRIDGE_DIALOGFLOW_PROJECT", "")
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	t.Setenv("FLOWBRIDGE_TEST_KEY", string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})))

	writeConfig(t, home, `dialogflow:
  projectId: flowbridge-test
  clientEmail: bot@flowbridge-test.iam.gserviceaccount.com
  privateKey: "${FLOWBRIDGE_TEST_KEY}"
  endpoint: `+baseURL+`
  tokenUrl: `+baseURL+`/token
  tokenRetries: 1
store:
  driver: memory
`)
}

type fakeGoogle struct {
	*httptest.Server
	tokenCalls  atomic.Int32
	detectCalls atomic.Int32
	fail        atomic.Bool
}

// newFakeGoogle serves the token endpoint and a tiny agent: the welcome
// event greets, "hello ..." offers quick replies and "gibberish" hits the
// fallback intent.
func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := g.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.test-token-" + strings.Repeat("0", 3) + string(rune('0'+n)),
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("/v2/projects/flowbridge-test/agent/sessions/", func(w http.ResponseWriter, r *http.Request) {
		g.detectCalls.Add(1)
		if g.fail.Load() {
			http.Error(w, `{"error":{"code":400,"message":"agent disabled"}}`, http.StatusBadRequest)
			return
		}
		var body struct {
			QueryInput struct {
				Event *struct {
					Name string `json:"name"`
				} `json:"event"`
				Text *struct {
					Text string `json:"text"`
				} `json:"text"`
			} `json:"queryInput"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result map[string]any
		switch {
		case body.QueryInput.Event != nil:
			result = map[string]any{
				"fulfillmentMessages": []any{map[string]any{"text": map[string]any{"text": []string{"Welcome to support!"}}}},
				"intent":              map[string]any{"displayName": "Default Welcome Intent"},
			}
		case body.QueryInput.Text != nil && strings.HasPrefix(body.QueryInput.Text.Text, "hello"):
			result = map[string]any{
				"fulfillmentMessages": []any{map[string]any{"quickReplies": map[string]any{
					"title":        "How can I help?",
					"quickReplies": []string{"Billing", "Shipping"},
				}}},
				"intent": map[string]any{"displayName": "greeting"},
			}
		case body.QueryInput.Text != nil && strings.HasPrefix(body.QueryInput.Text.Text, "gibberish"):
			result = map[string]any{
				"fulfillmentText": "Sorry, what was that?",
				"intent":          map[string]any{"displayName": "Default Fallback Intent", "isFallback": true},
			}
		default:
			result = map[string]any{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"responseId": "resp-1", "queryResult": result})
	})
	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}
