package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/handover"
)

// rpcConfigPrefixes are the config subtrees operators may read and write.
// Credentials and broker URLs stay out of reach.
var rpcConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"bot",
	"fallback",
	"sideEffects",
	"store.driver",
	"dialogflow.projectId",
	"dialogflow.languageCode",
	"dialogflow.welcomeEvent",
	"handover.defaultDepartment",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range rpcConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// turnTimeout bounds an RPC-driven conversation turn.
const turnTimeout = 2 * time.Minute

// Router returns the HTTP surface: health, the operator socket and the
// livechat webhook.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	s.registerHTTPRoutes(r)
	return withMiddleware(r, s.log, s.cfg.Gateway.AllowedOrigins)
}

func (s *Server) registerHTTPRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.With(s.requireAuth).Post("/livechat/messages", s.handleLivechatMessage)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("turn.send", s.rpcTurnSend)
	s.Handle("fallback.status", s.rpcFallbackStatus)
	s.Handle("handover.list", s.rpcHandoverList)
	s.Handle("rooms.watch", s.rpcRoomsWatch)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Operators: s.operators.count(),
		Livechat:  s.livechat != nil,
	})
}

type configParams struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// configKey decodes the request and resolves an allowlisted key path. It
// answers the request itself when that fails.
func configKey(rc *RequestContext) (configParams, config.KeyPath, bool) {
	var p configParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return p, nil, false
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return p, nil, false
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "config path not exposed over rpc: "+p.Key)
		return p, nil, false
	}
	key, err := config.ParseKeyPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return p, nil, false
	}
	return p, key, true
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	p, key, ok := configKey(rc)
	if !ok {
		return
	}
	s.mu.RLock()
	val, found := key.Get(s.configRaw)
	s.mu.RUnlock()
	if !found {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

// rpcConfigSet edits the in-memory raw config. It does not touch the file
// or the running components.
func (s *Server) rpcConfigSet(rc *RequestContext) {
	p, key, ok := configKey(rc)
	if !ok {
		return
	}
	s.mu.Lock()
	key.Set(s.configRaw, p.Value)
	s.mu.Unlock()
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

type turnSendParams struct {
	SessionID    string `json:"sessionId"`
	Text         string `json:"text"`
	VisitorToken string `json:"visitorToken,omitempty"`
}

// rpcTurnSend runs one turn directly against the agent, bypassing the room
// filters of the webhook. Replies are returned, not posted.
func (s *Server) rpcTurnSend(rc *RequestContext) {
	if s.turns == nil {
		rc.RespondError("unavailable", "no agent configured")
		return
	}

	var p turnSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.SessionID == "" || strings.TrimSpace(p.Text) == "" {
		rc.RespondError("invalid_params", "sessionId and text are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()
	ctx = handover.WithCorrelationID(ctx, rc.Frame.ID)

	reply, err := s.turns.HandleTurn(ctx, p.SessionID, p.Text, p.VisitorToken)
	if errors.Is(err, domain.ErrSessionNotFound) {
		rc.RespondError("not_found", "unknown session: "+p.SessionID)
		return
	}
	if err != nil {
		rc.RespondError("agent_error", err.Error())
		return
	}
	rc.Respond(reply)
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
}

// sessionID decodes sessionParams, answering the request when the id is
// missing.
func sessionID(rc *RequestContext) (string, bool) {
	var p sessionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return "", false
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return "", false
	}
	return p.SessionID, true
}

func (s *Server) rpcFallbackStatus(rc *RequestContext) {
	if s.fallback == nil {
		rc.RespondError("unavailable", "fallback tracking disabled")
		return
	}
	id, ok := sessionID(rc)
	if !ok {
		return
	}

	ctx := context.Background()
	streak, err := s.fallback.Streak(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		rc.RespondError("not_found", "unknown session: "+id)
		return
	}
	if err != nil {
		rc.RespondError("internal", err.Error())
		return
	}
	escalate, err := s.fallback.ShouldEscalate(ctx, id)
	if err != nil {
		rc.RespondError("internal", err.Error())
		return
	}
	rc.Respond(map[string]any{"sessionId": id, "streak": streak, "escalate": escalate})
}

func (s *Server) rpcHandoverList(rc *RequestContext) {
	if s.handovers == nil {
		rc.RespondError("unavailable", "no store configured")
		return
	}
	id, ok := sessionID(rc)
	if !ok {
		return
	}

	records, err := s.handovers.ListHandovers(context.Background(), id)
	if err != nil {
		rc.RespondError("internal", err.Error())
		return
	}
	rc.Respond(map[string]any{"sessionId": id, "handovers": records})
}

type roomsWatchParams struct {
	RoomIDs []string `json:"roomIds"`
}

// rpcRoomsWatch narrows the livechat events this operator receives. An
// empty list restores every room.
func (s *Server) rpcRoomsWatch(rc *RequestContext) {
	var p roomsWatchParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	for _, id := range p.RoomIDs {
		if strings.TrimSpace(id) == "" {
			rc.RespondError("invalid_params", "room ids must not be empty")
			return
		}
	}
	rc.Operator.Watch(p.RoomIDs)
	rc.Respond(map[string]any{"rooms": rc.Operator.Rooms()})
}
