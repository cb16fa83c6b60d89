package config

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${NAME} references. References to unset
// variables stay as written so a missing secret is visible in validation.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(envRef.FindStringSubmatch(ref)[1]); ok {
			return val
		}
		return ref
	})
}

// Load returns Defaults overlaid with the YAML file at path and then the
// FLOWBRIDGE_* environment. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		fillDefaults(&cfg)
	}

	applyEnv(&cfg)
	for _, secret := range []*string{
		&cfg.Dialogflow.ClientEmail,
		&cfg.Dialogflow.PrivateKey,
		&cfg.Dialogflow.CredentialsFile,
		&cfg.Gateway.Auth.Token,
		&cfg.Gateway.Auth.Password,
		&cfg.Handover.Broker.URL,
	} {
		*secret = expandEnvVars(*secret)
	}
	return cfg, nil
}

// LoadRaw reads the file as a plain map for key-path editing. A missing or
// empty file yields an empty map.
func LoadRaw(path string) (map[string]any, error) {
	raw := map[string]any{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// fillDefaults restores defaults for keys the file sets to a zero value.
func fillDefaults(cfg *Config) {
	d := Defaults()

	df := &cfg.Dialogflow
	df.LanguageCode = cmp.Or(df.LanguageCode, d.Dialogflow.LanguageCode)
	df.Endpoint = cmp.Or(df.Endpoint, d.Dialogflow.Endpoint)
	df.TokenURL = cmp.Or(df.TokenURL, d.Dialogflow.TokenURL)
	df.TimeoutSeconds = cmp.Or(df.TimeoutSeconds, d.Dialogflow.TimeoutSeconds)
	df.WelcomeEvent = cmp.Or(df.WelcomeEvent, d.Dialogflow.WelcomeEvent)
	df.TokenRetries = cmp.Or(df.TokenRetries, d.Dialogflow.TokenRetries)

	bot := &cfg.Bot
	bot.Username = cmp.Or(bot.Username, d.Bot.Username)
	bot.ServiceUnavailableMessage = cmp.Or(bot.ServiceUnavailableMessage, d.Bot.ServiceUnavailableMessage)
	bot.HandoverMessage = cmp.Or(bot.HandoverMessage, d.Bot.HandoverMessage)

	broker := &cfg.Handover.Broker
	broker.Exchange = cmp.Or(broker.Exchange, d.Handover.Broker.Exchange)
	broker.RoutingKey = cmp.Or(broker.RoutingKey, d.Handover.Broker.RoutingKey)

	cfg.SideEffects.TimeoutSeconds = cmp.Or(cfg.SideEffects.TimeoutSeconds, d.SideEffects.TimeoutSeconds)

	gw := &cfg.Gateway
	gw.Port = cmp.Or(gw.Port, d.Gateway.Port)
	gw.Bind = cmp.Or(gw.Bind, d.Gateway.Bind)
	gw.Auth.Mode = cmp.Or(gw.Auth.Mode, d.Gateway.Auth.Mode)

	cfg.Store.Driver = cmp.Or(cfg.Store.Driver, d.Store.Driver)
	cfg.Logging.Level = cmp.Or(cfg.Logging.Level, d.Logging.Level)
	cfg.Logging.ConsoleStyle = cmp.Or(cfg.Logging.ConsoleStyle, d.Logging.ConsoleStyle)
}

// applyEnv applies the environment overrides. Empty variables are ignored.
func applyEnv(cfg *Config) {
	overrides := []struct {
		name  string
		apply func(string)
	}{
		{"FLOWBRIDGE_GATEWAY_PORT", func(v string) {
			if port, err := strconv.Atoi(v); err == nil {
				cfg.Gateway.Port = port
			}
		}},
		{"FLOWBRIDGE_GATEWAY_BIND", func(v string) { cfg.Gateway.Bind = v }},
		{"FLOWBRIDGE_LOG_LEVEL", func(v string) { cfg.Logging.Level = strings.ToLower(v) }},
		{"FLOWBRIDGE_DIALOGFLOW_PROJECT", func(v string) { cfg.Dialogflow.ProjectID = v }},
		{"FLOWBRIDGE_BROKER_URL", func(v string) { cfg.Handover.Broker.URL = v }},
		{"GOOGLE_APPLICATION_CREDENTIALS", func(v string) {
			if cfg.Dialogflow.CredentialsFile == "" && cfg.Dialogflow.PrivateKey == "" {
				cfg.Dialogflow.CredentialsFile = v
			}
		}},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(v)
		}
	}
}
