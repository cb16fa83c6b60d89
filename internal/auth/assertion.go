package auth

import (
	"crypto/rsa"
	"time"

	"golang.org/x/oauth2/jws"
)

const (
	// Scope requested for every Dialogflow token.
	Scope = "https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/dialogflow"

	// GrantType is the OAuth2 grant for signed service-account assertions.
	GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour
)

// Credentials identify a service account.
type Credentials struct {
	ClientEmail string
	PrivateKey  *rsa.PrivateKey
	Subject     string // optional user to impersonate
	TokenURL    string
}

// AssertionSigner builds RS256 JWT assertions for the token endpoint.
type AssertionSigner struct {
	creds Credentials
	scope string
}

// NewAssertionSigner returns a signer for creds requesting the Dialogflow scope.
func NewAssertionSigner(creds Credentials) *AssertionSigner {
	return &AssertionSigner{creds: creds, scope: Scope}
}

// Sign returns a fresh assertion issued at now and valid for one hour.
func (s *AssertionSigner) Sign(now time.Time) (string, error) {
	if s.creds.PrivateKey == nil {
		return "", &AuthError{Op: "sign", Err: errMissingKey}
	}

	header := &jws.Header{Algorithm: "RS256", Typ: "JWT"}
	claims := &jws.ClaimSet{
		Iss:   s.creds.ClientEmail,
		Sub:   s.creds.Subject,
		Scope: s.scope,
		Aud:   s.creds.TokenURL,
		Iat:   now.Unix(),
		Exp:   now.Add(assertionLifetime).Unix(),
	}

	signed, err := jws.Encode(header, claims, s.creds.PrivateKey)
	if err != nil {
		return "", &AuthError{Op: "sign", Err: err}
	}
	return signed, nil
}
