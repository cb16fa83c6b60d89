// Package livechat decides which room messages reach the agent and posts
// the agent's replies back into the room.
package livechat

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/hooks"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// Skip reasons reported in Outcome.Skipped.
const (
	SkipUnknownRoom = "unknown room"
	SkipNotLivechat = "not a livechat room"
	SkipClosed      = "room closed"
	SkipNoToken     = "no visitor token"
	SkipEdited      = "edited message"
	SkipEmpty       = "empty text"
	SkipNotServed   = "room not served by bot"
	SkipFromBot     = "sent by bot"
)

// Turns runs a conversation turn.
type Turns interface {
	HandleTurn(ctx context.Context, sessionID, text, visitorToken string) (domain.NormalizedMessage, error)
}

// Escalator decides on and resets the fallback streak.
type Escalator interface {
	ShouldEscalate(ctx context.Context, sessionID string) (bool, error)
	OnSuccess(ctx context.Context, sessionID string) error
}

// Config holds the bot identity and canned texts.
type Config struct {
	BotUsername               string
	ServiceUnavailableMessage string
	HandoverMessage           string
	TargetDepartment          string
}

// Outcome describes what HandleMessage did.
type Outcome struct {
	Skipped   string                    `json:"skipped,omitempty"`
	Reply     *domain.NormalizedMessage `json:"reply,omitempty"`
	Posted    []domain.Message          `json:"posted,omitempty"`
	Failed    bool                      `json:"failed,omitempty"`
	Escalated bool                      `json:"escalated,omitempty"`
}

// Handler is the entry point for messages posted into rooms.
type Handler struct {
	rooms    domain.RoomStore
	turns    Turns
	sink     domain.MessageSink
	fallback Escalator // nil disables synchronous handover
	handover domain.Handover
	hooks    *hooks.Manager
	cfg      Config
	log      *logging.Logger
}

// NewHandler wires a handler. fallback, handover and hookMgr may be nil.
func NewHandler(
	rooms domain.RoomStore,
	turns Turns,
	sink domain.MessageSink,
	fallback Escalator,
	handover domain.Handover,
	hookMgr *hooks.Manager,
	cfg Config,
	log *logging.Logger,
) *Handler {
	return &Handler{
		rooms:    rooms,
		turns:    turns,
		sink:     sink,
		fallback: fallback,
		handover: handover,
		hooks:    hookMgr,
		cfg:      cfg,
		log:      log.Sub("livechat"),
	}
}

// HandleMessage filters msg, runs a turn, and posts the reply. A failed
// turn is answered with the service-unavailable text and is not an error;
// errors are returned only when posting into the room fails.
func (h *Handler) HandleMessage(ctx context.Context, msg domain.InboundMessage) (*Outcome, error) {
	room, err := h.rooms.GetRoomByID(ctx, msg.RoomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return &Outcome{Skipped: SkipUnknownRoom}, nil
	}
	if err != nil {
		return nil, err
	}
	if reason := h.skipReason(room, msg); reason != "" {
		h.log.Trace().Str("roomId", room.ID).Str("reason", reason).Msg("message ignored")
		return &Outcome{Skipped: reason}, nil
	}

	log := h.log.With("roomId", room.ID)
	h.emit(ctx, hooks.EventMessageReceived, map[string]any{
		"roomId":    room.ID,
		"messageId": msg.ID,
		"text":      msg.Text,
	})

	reply, err := h.turns.HandleTurn(ctx, room.ID, msg.Text, msg.VisitorToken)
	if err != nil {
		log.Error().Err(err).Msg("agent request failed")
		posted, postErr := h.post(ctx, room.ID, domain.OutgoingMessage{Sender: h.cfg.BotUsername, Text: h.serviceUnavailable()})
		if postErr != nil {
			return nil, postErr
		}
		return &Outcome{Posted: posted, Failed: true}, nil
	}

	out := &Outcome{Reply: &reply}
	for _, f := range reply.Messages {
		posted, err := h.post(ctx, room.ID, domain.OutgoingFromFragment(h.cfg.BotUsername, f))
		if err != nil {
			return nil, err
		}
		out.Posted = append(out.Posted, posted...)
	}
	h.emit(ctx, hooks.EventReplySent, map[string]any{
		"roomId":     room.ID,
		"fragments":  len(reply.Messages),
		"isFallback": reply.IsFallback,
	})

	if reply.IsFallback {
		escalated, err := h.escalate(ctx, room.ID, msg.VisitorToken, out)
		if err != nil {
			log.Error().Err(err).Msg("fallback escalation failed")
		}
		out.Escalated = escalated
	}
	return out, nil
}

func (h *Handler) skipReason(room *domain.Room, msg domain.InboundMessage) string {
	switch {
	case room.Type != domain.RoomTypeLivechat:
		return SkipNotLivechat
	case !room.IsOpen:
		return SkipClosed
	case msg.VisitorToken == "":
		return SkipNoToken
	case msg.EditedAt != nil:
		return SkipEdited
	case strings.TrimSpace(msg.Text) == "":
		return SkipEmpty
	case room.ServedBy == "" || room.ServedBy != h.cfg.BotUsername:
		return SkipNotServed
	case msg.SenderUsername == h.cfg.BotUsername:
		return SkipFromBot
	}
	return ""
}

// escalate hands the room to a human once the fallback streak reaches the
// limit, then resets the streak.
func (h *Handler) escalate(ctx context.Context, roomID, visitorToken string, out *Outcome) (bool, error) {
	if h.fallback == nil || h.handover == nil {
		return false, nil
	}
	should, err := h.fallback.ShouldEscalate(ctx, roomID)
	if err != nil || !should {
		return false, err
	}

	if h.cfg.HandoverMessage != "" {
		posted, err := h.post(ctx, roomID, domain.OutgoingMessage{Sender: h.cfg.BotUsername, Text: h.cfg.HandoverMessage})
		if err != nil {
			return false, err
		}
		out.Posted = append(out.Posted, posted...)
	}

	if err := h.handover.PerformHandover(ctx, roomID, visitorToken, h.cfg.TargetDepartment); err != nil {
		return false, err
	}
	if err := h.fallback.OnSuccess(ctx, roomID); err != nil {
		return true, err
	}

	h.emit(ctx, hooks.EventFallbackEscalation, map[string]any{
		"roomId":     roomID,
		"department": h.cfg.TargetDepartment,
	})
	h.log.Info().Str("roomId", roomID).Str("department", h.cfg.TargetDepartment).Msg("escalated after repeated fallbacks")
	return true, nil
}

func (h *Handler) post(ctx context.Context, roomID string, msg domain.OutgoingMessage) ([]domain.Message, error) {
	created, err := h.sink.CreateMessage(ctx, roomID, msg)
	if err != nil {
		return nil, err
	}
	return []domain.Message{created}, nil
}

func (h *Handler) serviceUnavailable() string {
	if h.cfg.ServiceUnavailableMessage != "" {
		return h.cfg.ServiceUnavailableMessage
	}
	return config.DefaultServiceUnavailableMessage
}

func (h *Handler) emit(ctx context.Context, event string, data map[string]any) {
	if h.hooks != nil {
		h.hooks.EmitAsync(ctx, event, data)
	}
}
