// Package bridge sequences livechat turns against a Dialogflow agent.
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/flowbridge/internal/dialogflow"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// Config tunes an Orchestrator.
type Config struct {
	WelcomeEvent string
	LanguageCode string
}

// Orchestrator runs one visitor turn: bootstrap on first contact, the
// visitor's text, then detached side effects.
type Orchestrator struct {
	rooms    domain.RoomStore
	visitors domain.VisitorDirectory
	client   dialogflow.Client
	effects  *SideEffects
	fallback *FallbackTracker
	cfg      Config
	log      *logging.Logger
}

// NewOrchestrator wires an orchestrator. effects and fallback may be nil.
func NewOrchestrator(
	rooms domain.RoomStore,
	visitors domain.VisitorDirectory,
	client dialogflow.Client,
	effects *SideEffects,
	fallback *FallbackTracker,
	cfg Config,
	log *logging.Logger,
) *Orchestrator {
	if cfg.WelcomeEvent == "" {
		cfg.WelcomeEvent = "Welcome"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en"
	}
	return &Orchestrator{
		rooms:    rooms,
		visitors: visitors,
		client:   client,
		effects:  effects,
		fallback: fallback,
		cfg:      cfg,
		log:      log.Sub("bridge"),
	}
}

// HandleTurn sends text for sessionID and returns the combined reply:
// bootstrap messages first, then the reply to text. IsFallback comes from
// the reply to text only.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text, visitorToken string) (domain.NormalizedMessage, error) {
	start := time.Now()
	log := o.log.With("sessionId", sessionID)
	reply := domain.NormalizedMessage{SessionID: sessionID}

	room, err := o.rooms.GetRoomByID(ctx, sessionID)
	if err != nil {
		return reply, &OrchestrationError{SessionID: sessionID, Stage: StageLookup, Err: err}
	}

	if !room.NotFirstMessage() {
		boot, err := o.bootstrap(ctx, sessionID, visitorToken, log)
		if err != nil {
			return reply, err
		}
		reply.Append(boot)
	}

	res, err := o.client.Send(ctx, sessionID, dialogflow.TextRequest(text, o.cfg.LanguageCode))
	if err != nil {
		return reply, &OrchestrationError{SessionID: sessionID, Stage: StageMessage, Err: err}
	}
	reply.Append(res.Message)
	reply.IsFallback = res.Message.IsFallback

	if o.fallback != nil {
		if _, err := o.fallback.OnReply(ctx, sessionID, reply.IsFallback); err != nil {
			log.Warn().Err(err).Msg("updating fallback streak")
		}
	}

	if o.effects != nil {
		o.effects.Apply(ctx, res, sessionID, visitorToken)
	}

	log.Info().
		Int("fragments", len(reply.Messages)).
		Bool("isFallback", reply.IsFallback).
		Dur("duration", time.Since(start)).
		Msg("turn handled")
	return reply, nil
}

// bootstrap marks the room as started, forwards the visitor profile, and
// triggers the welcome event. A concurrent turn that lost the race to set
// the flag skips the rest.
func (o *Orchestrator) bootstrap(ctx context.Context, sessionID, visitorToken string, log *logging.Logger) (domain.NormalizedMessage, error) {
	first, err := o.markStarted(ctx, sessionID)
	if err != nil {
		return domain.NormalizedMessage{}, &OrchestrationError{SessionID: sessionID, Stage: StageBootstrap, Err: err}
	}
	if !first {
		return domain.NormalizedMessage{}, nil
	}
	log.Debug().Msg("bootstrapping session")

	o.transferVisitorData(ctx, sessionID, visitorToken, log)

	ev := domain.ConversationEvent{Name: o.cfg.WelcomeEvent, LanguageCode: o.cfg.LanguageCode}
	res, err := o.client.Send(ctx, sessionID, dialogflow.EventRequest(ev))
	if err != nil {
		return domain.NormalizedMessage{}, &OrchestrationError{SessionID: sessionID, Stage: StageWelcome, Err: err}
	}
	return res.Message, nil
}

func (o *Orchestrator) markStarted(ctx context.Context, sessionID string) (bool, error) {
	if a, ok := o.rooms.(domain.AtomicRoomFields); ok {
		return a.SetCustomFieldOnce(ctx, sessionID, domain.FieldNotFirstMessage, true)
	}
	err := o.rooms.UpdateRoomCustomFields(ctx, sessionID, map[string]any{domain.FieldNotFirstMessage: true})
	return err == nil, err
}

// transferVisitorData sends the visitor's custom fields as a text request.
// Failures are logged; the agent reply is discarded.
func (o *Orchestrator) transferVisitorData(ctx context.Context, sessionID, visitorToken string, log *logging.Logger) {
	if o.visitors == nil || visitorToken == "" {
		return
	}

	visitor, err := o.visitors.GetVisitorByToken(ctx, visitorToken)
	if errors.Is(err, domain.ErrVisitorNotFound) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("data transfer: visitor lookup failed")
		return
	}

	text, err := ComposeDataTransfer(visitor.CustomFields)
	if err != nil {
		log.Warn().Err(err).Msg("data transfer skipped")
		return
	}
	if text == "" {
		return
	}

	if _, err := o.client.Send(ctx, sessionID, dialogflow.TextRequest(text, o.cfg.LanguageCode)); err != nil {
		log.Warn().Err(err).Msg("data transfer failed")
		return
	}
	log.Debug().Int("fields", len(visitor.CustomFields)).Msg("visitor data transferred")
}

// Wait blocks until dispatched side effects finish.
func (o *Orchestrator) Wait() {
	if o.effects != nil {
		o.effects.Wait()
	}
}

// Fallback returns the tracker, or nil when none is configured.
func (o *Orchestrator) Fallback() *FallbackTracker {
	return o.fallback
}
