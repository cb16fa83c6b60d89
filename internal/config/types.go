package config

// Config is the root configuration for flowbridge.
type Config struct {
	Dialogflow  DialogflowConfig  `yaml:"dialogflow,omitempty"`
	Bot         BotConfig         `yaml:"bot,omitempty"`
	Fallback    FallbackConfig    `yaml:"fallback,omitempty"`
	Handover    HandoverConfig    `yaml:"handover,omitempty"`
	SideEffects SideEffectsConfig `yaml:"sideEffects,omitempty"`
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Hooks       HooksConfig       `yaml:"hooks,omitempty"`
}

// DialogflowConfig holds the agent project and service-account credentials.
type DialogflowConfig struct {
	ProjectID       string `yaml:"projectId"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"` // service-account JSON key; wins over clientEmail/privateKey
	ClientEmail     string `yaml:"clientEmail,omitempty"`
	PrivateKey      string `yaml:"privateKey,omitempty"` // PEM, may be ${ENV_VAR}
	LanguageCode    string `yaml:"languageCode,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	TokenURL        string `yaml:"tokenUrl,omitempty"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty"`
	WelcomeEvent    string `yaml:"welcomeEvent,omitempty"`
	TokenRetries    int    `yaml:"tokenRetries,omitempty"` // total token-endpoint attempts per refresh
}

// BotConfig identifies the bot user and its canned messages.
type BotConfig struct {
	Username                  string `yaml:"username,omitempty"`
	ServiceUnavailableMessage string `yaml:"serviceUnavailableMessage,omitempty"`
	HandoverMessage           string `yaml:"handoverMessage,omitempty"`
}

// FallbackConfig controls escalation after consecutive fallback replies.
type FallbackConfig struct {
	Limit            int    `yaml:"limit,omitempty"` // 0 disables escalation
	TargetDepartment string `yaml:"targetDepartment,omitempty"`
}

// HandoverConfig controls where handed-over rooms go.
type HandoverConfig struct {
	DefaultDepartment string       `yaml:"defaultDepartment,omitempty"`
	Broker            BrokerConfig `yaml:"broker,omitempty"`
}

// BrokerConfig configures the optional RabbitMQ handover publisher.
type BrokerConfig struct {
	URL        string `yaml:"url,omitempty"`
	Exchange   string `yaml:"exchange,omitempty"`
	RoutingKey string `yaml:"routingKey,omitempty"`
}

// SideEffectsConfig bounds the detached post-reply work.
type SideEffectsConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`
}

// GatewayConfig controls the webhook HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StoreConfig selects the room/visitor persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <data>/flowbridge.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig declares shell commands run on bridge events.
type HooksConfig struct {
	Handover           []HookEntry `yaml:"handover,omitempty"`
	FallbackEscalation []HookEntry `yaml:"fallbackEscalation,omitempty"`
	ReplySent          []HookEntry `yaml:"replySent,omitempty"`
	GatewayStart       []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop        []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
