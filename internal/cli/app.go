package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/flowbridge/internal/auth"
	"github.com/soyeahso/flowbridge/internal/bridge"
	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/dialogflow"
	"github.com/soyeahso/flowbridge/internal/handover"
	"github.com/soyeahso/flowbridge/internal/hooks"
	"github.com/soyeahso/flowbridge/internal/livechat"
	"github.com/soyeahso/flowbridge/internal/logging"
	"github.com/soyeahso/flowbridge/internal/store"
)

// app holds the wired bridge components shared by serve and message send.
type app struct {
	store      store.Store
	tokens     *auth.Provider
	client     *dialogflow.APIClient
	hooks      *hooks.Manager
	dispatcher *handover.Dispatcher
	tracker    *bridge.FallbackTracker
	orch       *bridge.Orchestrator
	livechat   *livechat.Handler
}

// buildApp wires the bridge from cfg. The caller must Close the result.
func buildApp(cfg config.Config, log *logging.Logger) (*app, error) {
	if issues := config.ValidateAgent(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return nil, fmt.Errorf("dialogflow config has %d issue(s)", len(issues))
	}

	creds, err := auth.CredentialsFromConfig(cfg.Dialogflow)
	if err != nil {
		return nil, err
	}

	if cfg.Store.Driver != "memory" {
		if err := paths.EnsureDirs(); err != nil {
			return nil, err
		}
	}
	st, err := store.OpenStore(cfg.Store.Driver, paths.StorePath(cfg.Store), log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{store: st, hooks: hooks.NewManager(log)}
	if n := a.hooks.RegisterConfig(cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("command hooks registered")
	}

	var publisher handover.Publisher
	if url := cfg.Handover.Broker.URL; url != "" {
		pub, err := handover.NewAMQPPublisher(url, cfg.Handover.Broker.Exchange, log)
		if err != nil {
			st.Close()
			return nil, err
		}
		publisher = pub
		log.Info().Str("exchange", cfg.Handover.Broker.Exchange).Msg("handover events go to broker")
	}
	a.dispatcher = handover.NewDispatcher(st, publisher, cfg.Handover.Broker.RoutingKey, a.hooks, log)

	a.tokens = auth.NewProvider(creds, auth.ProviderConfig{Retries: cfg.Dialogflow.TokenRetries}, log)
	a.client = dialogflow.NewAPIClient(cfg.Dialogflow, a.tokens, log)

	effects := bridge.NewSideEffects(st, a.dispatcher, bridge.SideEffectsConfig{
		DefaultDepartment: cfg.Handover.DefaultDepartment,
		Timeout:           time.Duration(cfg.SideEffects.TimeoutSeconds) * time.Second,
	}, log)
	a.tracker = bridge.NewFallbackTracker(st, cfg.Fallback.Limit, log)
	a.orch = bridge.NewOrchestrator(st, st, a.client, effects, a.tracker, bridge.Config{
		WelcomeEvent: cfg.Dialogflow.WelcomeEvent,
		LanguageCode: cfg.Dialogflow.LanguageCode,
	}, log)

	department := cfg.Fallback.TargetDepartment
	if department == "" {
		department = cfg.Handover.DefaultDepartment
	}
	a.livechat = livechat.NewHandler(st, a.orch, st, a.tracker, a.dispatcher, a.hooks, livechat.Config{
		BotUsername:               cfg.Bot.Username,
		ServiceUnavailableMessage: cfg.Bot.ServiceUnavailableMessage,
		HandoverMessage:           cfg.Bot.HandoverMessage,
		TargetDepartment:          department,
	}, log)

	return a, nil
}

// Close waits for detached work and releases the broker and store.
func (a *app) Close() error {
	a.orch.Wait()
	a.hooks.Wait()
	a.dispatcher.Close()
	return a.store.Close()
}
