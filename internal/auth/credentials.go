package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"

	"github.com/soyeahso/flowbridge/internal/config"
)

var (
	errMissingKey = errors.New("no private key configured")
	errNoPEM      = errors.New("private key is not PEM encoded")
	errNotRSA     = errors.New("private key is not an RSA key")
)

// ParsePrivateKey decodes a PEM RSA key in PKCS#8 or PKCS#1 form.
// Literal "\n" sequences, as found in env vars and JSON dumps, are accepted.
func ParsePrivateKey(data string) (*rsa.PrivateKey, error) {
	data = strings.ReplaceAll(data, `\n`, "\n")
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errNoPEM
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errNotRSA
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

// LoadServiceAccount reads a Google service-account JSON key file.
func LoadServiceAccount(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credentials file: %w", err)
	}
	return ParseServiceAccount(data)
}

// ParseServiceAccount parses service-account JSON.
func ParseServiceAccount(data []byte) (Credentials, error) {
	jwtCfg, err := google.JWTConfigFromJSON(data, Scope)
	if err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}

	key, err := ParsePrivateKey(string(jwtCfg.PrivateKey))
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		ClientEmail: jwtCfg.Email,
		PrivateKey:  key,
		Subject:     jwtCfg.Subject,
		TokenURL:    jwtCfg.TokenURL,
	}, nil
}

// CredentialsFromConfig resolves credentials from a key file or inline fields.
// An explicit tokenUrl in cfg overrides the one in the key file.
func CredentialsFromConfig(cfg config.DialogflowConfig) (Credentials, error) {
	var creds Credentials
	if cfg.CredentialsFile != "" {
		c, err := LoadServiceAccount(cfg.CredentialsFile)
		if err != nil {
			return Credentials{}, err
		}
		creds = c
	} else {
		if cfg.PrivateKey == "" {
			return Credentials{}, errMissingKey
		}
		key, err := ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return Credentials{}, err
		}
		creds = Credentials{ClientEmail: cfg.ClientEmail, PrivateKey: key}
	}

	if cfg.TokenURL != "" {
		creds.TokenURL = cfg.TokenURL
	}
	if creds.TokenURL == "" {
		creds.TokenURL = config.DefaultTokenURL
	}
	return creds, nil
}
