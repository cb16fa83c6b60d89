package gateway

import (
	"cmp"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/flowbridge/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth fills unset secrets from FLOWBRIDGE_GATEWAY_TOKEN and
// FLOWBRIDGE_GATEWAY_PASSWORD. Config values win. Without an explicit mode,
// a password selects password mode.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    cmp.Or(cfg.Token, os.Getenv("FLOWBRIDGE_GATEWAY_TOKEN")),
		Password: cmp.Or(cfg.Password, os.Getenv("FLOWBRIDGE_GATEWAY_PASSWORD")),
	}
	if auth.Mode == "" {
		auth.Mode = "token"
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

// Authorize checks presented credentials against the secret of the
// server's mode.
func Authorize(server ResolvedAuth, presented *ConnectAuth) AuthResult {
	if presented == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	var want, got string
	switch server.Mode {
	case "token":
		want, got = server.Token, presented.Token
	case "password":
		want, got = server.Password, presented.Password
	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}

	switch {
	case want == "":
		return AuthResult{Reason: "server " + server.Mode + " not configured"}
	case got == "":
		return AuthResult{Reason: server.Mode + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: server.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// requestCredentials reads the webhook secret from an
// "Authorization: Bearer <secret>" header. The secret is offered as both
// token and password so either gateway auth mode accepts it.
func requestCredentials(r *http.Request) *ConnectAuth {
	h := r.Header.Get("Authorization")
	scheme, secret, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &ConnectAuth{Token: secret, Password: secret}
}

// safeEqual compares secrets in constant time.
func safeEqual(a, b string) bool {
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	same := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(sameLen, same, 0) == 1
}
