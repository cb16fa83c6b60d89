package config

import "fmt"

// Google endpoints and agent defaults.
const (
	DefaultEndpoint     = "https://dialogflow.googleapis.com"
	DefaultTokenURL     = "https://oauth2.googleapis.com/token"
	DefaultLanguageCode = "en"
	DefaultWelcomeEvent = "Welcome"

	DefaultServiceUnavailableMessage = "Sorry, I'm having trouble answering right now. Please try again later."
	DefaultHandoverMessage           = "Transferring you to a human agent."
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Dialogflow: DialogflowConfig{
			LanguageCode:   DefaultLanguageCode,
			Endpoint:       DefaultEndpoint,
			TokenURL:       DefaultTokenURL,
			TimeoutSeconds: 30,
			WelcomeEvent:   DefaultWelcomeEvent,
			TokenRetries:   2,
		},
		Bot: BotConfig{
			Username:                  "dialogflow.bot",
			ServiceUnavailableMessage: DefaultServiceUnavailableMessage,
			HandoverMessage:           DefaultHandoverMessage,
		},
		Handover: HandoverConfig{
			Broker: BrokerConfig{
				Exchange:   "livechat.events",
				RoutingKey: "livechat.handover.v1",
			},
		},
		SideEffects: SideEffectsConfig{
			TimeoutSeconds: 30,
		},
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
