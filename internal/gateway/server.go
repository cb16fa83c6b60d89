package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/hooks"
	"github.com/soyeahso/flowbridge/internal/livechat"
	"github.com/soyeahso/flowbridge/internal/logging"
	"github.com/soyeahso/flowbridge/internal/store"
	"github.com/soyeahso/flowbridge/internal/version"
)

// Directory upserts the rooms and visitors named by webhook payloads.
type Directory interface {
	SaveRoom(ctx context.Context, room *domain.Room) error
	SaveVisitor(ctx context.Context, v *domain.Visitor) error
}

// MessageHandler handles one inbound room message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage) (*livechat.Outcome, error)
}

// FallbackReader reports a room's fallback streak.
type FallbackReader interface {
	Streak(ctx context.Context, sessionID string) (int, error)
	ShouldEscalate(ctx context.Context, sessionID string) (bool, error)
}

// HandoverLog lists past handovers of a room.
type HandoverLog interface {
	ListHandovers(ctx context.Context, roomID string) ([]store.HandoverRecord, error)
}

// Server is the flowbridge gateway: the livechat webhook plus an
// authenticated WebSocket RPC socket for operators.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	version  string
	handlers map[string]RequestHandler

	operators *operatorHub
	eventSeq  atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	directory Directory
	livechat  MessageHandler
	turns     livechat.Turns
	fallback  FallbackReader
	handovers HandoverLog
	hooks     *hooks.Manager

	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw exposes raw to the config.get and config.set RPCs.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) { s.configRaw = raw }
}

// WithHooks emits gateway_start and gateway_stop through hm.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithLivechat enables the message webhook. dir receives the room and
// visitor carried by each payload before h runs.
func WithLivechat(dir Directory, h MessageHandler) ServerOption {
	return func(s *Server) {
		s.directory = dir
		s.livechat = h
	}
}

// WithTurns enables the turn.send RPC.
func WithTurns(t livechat.Turns) ServerOption {
	return func(s *Server) { s.turns = t }
}

// WithFallback enables the fallback.status RPC.
func WithFallback(f FallbackReader) ServerOption {
	return func(s *Server) { s.fallback = f }
}

// WithHandoverLog enables the handover.list RPC.
func WithHandoverLog(l HandoverLog) ServerOption {
	return func(s *Server) { s.handovers = l }
}

func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		version:     version.Version,
		handlers:    make(map[string]RequestHandler),
		operators:   newOperatorHub(log.Sub("operators")),
		configRaw:   make(map[string]any),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin accepts non-browser clients (no Origin header) and
// browsers whose Origin is in allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// listen opens the gateway listener, wrapped in TLS when configured.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	tlsCfg := s.cfg.Gateway.TLS
	if !tlsCfg.Enabled {
		if s.cfg.Gateway.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled, webhook secrets travel in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves the gateway until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)
	ln, err := s.listen(addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go s.authLimiter.sweep(ctx, time.Minute)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Bool("livechat", s.livechat != nil).
		Int("methods", len(s.handlers)).
		Msg("gateway listening")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})
	}

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdown() {
	s.log.Info().Msg("shutting down gateway")
	if s.hooks != nil {
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.operators.closeAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("gateway shutdown")
	}
}

// broadcast pushes an event about roomID to the operators watching it.
func (s *Server) broadcast(roomID, event string, payload any) {
	n := s.operators.publish(roomID, event, payload, s.eventSeq.Add(1))
	s.log.Debug().Str("roomId", roomID).Str("event", event).Int("operators", n).Msg("event published")
}
