package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/flowbridge/internal/version"
)

const (
	handshakeTimeout = 10 * time.Second
	maxFrameBytes    = 4 << 20
)

var errUnauthorized = errors.New("unauthorized")

// handleWebSocket upgrades an operator connection and serves it until it
// closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	op, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("operator handshake failed")
		if errors.Is(err, errUnauthorized) {
			s.authLimiter.recordFailure(r.RemoteAddr)
		}
		conn.Close()
		return
	}

	s.operators.join(op)
	defer func() {
		s.operators.leave(op.ID)
		op.Close()
	}()
	s.serveOperator(op)
}

// handshake sends connect.challenge, expects a connect request within
// handshakeTimeout and answers it with HelloOK.
func (s *Server) handshake(conn *websocket.Conn) (*Operator, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var req Frame
	if err := conn.ReadJSON(&req); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	if req.Type != FrameTypeRequest || req.Method != "connect" {
		reject(conn, req.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got %s %q", req.Type, req.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		reject(conn, req.ID, "invalid_params", "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if !params.supports(ProtocolVersion) {
		msg := fmt.Sprintf("server speaks protocol %d", ProtocolVersion)
		reject(conn, req.ID, "protocol_error", msg)
		return nil, errors.New(msg)
	}

	res := Authorize(s.auth, params.Auth)
	if !res.OK {
		reject(conn, req.ID, "unauthorized", res.Reason)
		return nil, fmt.Errorf("%w: %s", errUnauthorized, res.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	op := newOperator(conn, params.Operator, res.Method)
	if err := op.reply(req.ID, s.hello(op)); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", op.ID).
		Str("operator", op.Info.ID).
		Str("operatorVersion", op.Info.Version).
		Str("authMethod", res.Method).
		Msg("operator authenticated")
	return op, nil
}

func (s *Server) hello(op *Operator) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: version.Commit, ConnID: op.ID},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventConnectChallenge, EventLivechatMessage},
		},
		Limits: Limits{MaxPayload: maxFrameBytes, HandshakeTimeoutMs: handshakeTimeout.Milliseconds()},
	}
}

// serveOperator reads request frames until the socket fails or closes.
func (s *Server) serveOperator(op *Operator) {
	for {
		f, err := op.next()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", op.ID).Msg("operator closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", op.ID).Msg("operator read failed")
			}
			return
		}
		if f.Type != FrameTypeRequest {
			s.log.Debug().Str("connId", op.ID).Str("type", f.Type).Msg("ignoring non-request frame")
			continue
		}

		handler, ok := s.handlers[f.Method]
		if !ok {
			op.fail(f.ID, "method_not_found", "unknown method: "+f.Method)
			continue
		}
		handler(&RequestContext{Operator: op, Frame: f, Server: s})
	}
}

// reject answers a failed handshake and closes the socket politely.
func reject(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(time.Second))
}
