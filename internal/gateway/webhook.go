package gateway

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/handover"
)

//go:embed livechat_message.schema.json
var livechatMessageSchemaJSON string

var livechatMessageSchema = jsonschema.MustCompileString("livechat_message.schema.json", livechatMessageSchemaJSON)

// maxWebhookBody caps a webhook request body.
const maxWebhookBody = 1 << 20

type webhookUser struct {
	Username string `json:"username"`
}

type webhookRoom struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	IsOpen     bool         `json:"isOpen"`
	ServedBy   *webhookUser `json:"servedBy"`
	Department string       `json:"department"`
}

type webhookVisitor struct {
	Token        string         `json:"token"`
	Name         string         `json:"name"`
	CustomFields map[string]any `json:"customFields"`
}

// webhookPayload is the body of POST /livechat/messages.
type webhookPayload struct {
	MessageID string         `json:"messageId"`
	Text      string         `json:"text"`
	EditedAt  *time.Time     `json:"editedAt"`
	Sender    webhookUser    `json:"sender"`
	Room      webhookRoom    `json:"room"`
	Visitor   webhookVisitor `json:"visitor"`
}

func (p webhookPayload) room() *domain.Room {
	r := &domain.Room{
		ID:           p.Room.ID,
		Type:         domain.RoomType(p.Room.Type),
		IsOpen:       p.Room.IsOpen,
		VisitorToken: p.Visitor.Token,
		Department:   p.Room.Department,
	}
	if p.Room.ServedBy != nil {
		r.ServedBy = p.Room.ServedBy.Username
	}
	return r
}

func (p webhookPayload) message() domain.InboundMessage {
	return domain.InboundMessage{
		ID:             p.MessageID,
		RoomID:         p.Room.ID,
		Text:           p.Text,
		SenderUsername: p.Sender.Username,
		VisitorToken:   p.Visitor.Token,
		EditedAt:       p.EditedAt,
	}
}

// decodeWebhookPayload validates raw against the message schema and
// decodes it.
func decodeWebhookPayload(raw []byte) (webhookPayload, error) {
	var p webhookPayload

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return p, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := livechatMessageSchema.Validate(doc); err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

// requireAuth rejects requests without a valid bearer secret.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		res := Authorize(s.auth, requestCredentials(r))
		if !res.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			s.log.Warn().Str("remote", r.RemoteAddr).Str("reason", res.Reason).Msg("webhook auth failed")
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLivechatMessage upserts the payload's room and visitor and runs
// the livechat handler on the message.
func (s *Server) handleLivechatMessage(w http.ResponseWriter, r *http.Request) {
	if s.livechat == nil || s.directory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "livechat handler not configured")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := decodeWebhookPayload(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := handover.WithCorrelationID(r.Context(), p.MessageID)
	log := s.log.With("roomId", p.Room.ID)

	if err := s.directory.SaveRoom(ctx, p.room()); err != nil {
		log.Error().Err(err).Msg("saving room")
		writeJSONError(w, http.StatusInternalServerError, "saving room failed")
		return
	}
	if p.Visitor.Token != "" {
		v := &domain.Visitor{Token: p.Visitor.Token, Name: p.Visitor.Name, CustomFields: p.Visitor.CustomFields}
		if err := s.directory.SaveVisitor(ctx, v); err != nil {
			log.Error().Err(err).Msg("saving visitor")
			writeJSONError(w, http.StatusInternalServerError, "saving visitor failed")
			return
		}
	}

	out, err := s.livechat.HandleMessage(ctx, p.message())
	if err != nil {
		log.Error().Err(err).Msg("handling message")
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.broadcast(p.Room.ID, EventLivechatMessage, map[string]any{
		"roomId":    p.Room.ID,
		"messageId": p.MessageID,
		"outcome":   out,
	})
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
