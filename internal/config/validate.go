package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return v.Path + ": " + v.Message
}

type issues []ValidationIssue

func (is *issues) addf(path, format string, args ...any) {
	*is = append(*is, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// oneOf accepts the empty string, which means "use the default".
func (is *issues) oneOf(path, value string, allowed ...string) {
	if value != "" && !slices.Contains(allowed, value) {
		is.addf(path, "must be one of %v, got %q", allowed, value)
	}
}

func (is *issues) nonNegative(path string, n int) {
	if n < 0 {
		is.addf(path, "must be >= 0, got %d", n)
	}
}

// url requires an absolute URL; schemes, when given, restrict it further.
func (is *issues) url(path, raw string, schemes ...string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	switch {
	case err != nil || u.Scheme == "" || u.Host == "":
		is.addf(path, "invalid URL %q", raw)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		is.addf(path, "scheme must be one of %v, got %q", schemes, u.Scheme)
	}
}

// Validate checks everything except the Dialogflow credentials, which
// ValidateAgent covers so that config and status work without them. It
// returns nil for a valid config.
func Validate(cfg *Config) []ValidationIssue {
	var is issues

	if p := cfg.Gateway.Port; p < 0 || p > 65535 {
		is.addf("gateway.port", "port must be 0-65535, got %d", p)
	}
	is.oneOf("gateway.bind", cfg.Gateway.Bind, "auto", "lan", "loopback", "custom")
	is.oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, "token", "password")
	if tls := cfg.Gateway.TLS; tls.Enabled && (tls.CertPath == "" || tls.KeyPath == "") {
		is.addf("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	is.oneOf("store.driver", cfg.Store.Driver, "sqlite", "memory")
	is.oneOf("logging.level", cfg.Logging.Level, "silent", "fatal", "error", "warn", "info", "debug", "trace")
	is.oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, "pretty", "compact", "json")

	is.nonNegative("fallback.limit", cfg.Fallback.Limit)
	is.nonNegative("sideEffects.timeoutSeconds", cfg.SideEffects.TimeoutSeconds)
	is.url("handover.broker.url", cfg.Handover.Broker.URL, "amqp", "amqps")

	return is
}

// ValidateAgent checks the settings needed to call Dialogflow.
func ValidateAgent(cfg *Config) []ValidationIssue {
	var is issues
	df := cfg.Dialogflow

	if df.ProjectID == "" {
		is.addf("dialogflow.projectId", "project id is required")
	}
	if df.CredentialsFile == "" {
		if df.ClientEmail == "" {
			is.addf("dialogflow.clientEmail", "required when credentialsFile is not set")
		}
		if df.PrivateKey == "" {
			is.addf("dialogflow.privateKey", "required when credentialsFile is not set")
		}
	}
	is.url("dialogflow.endpoint", df.Endpoint)
	is.url("dialogflow.tokenUrl", df.TokenURL)
	is.nonNegative("dialogflow.timeoutSeconds", df.TimeoutSeconds)

	return is
}
