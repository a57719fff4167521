// Package gateway serves the MCP tool surface over HTTP: authentication,
// session resolution and the uniform response envelope, plus an event
// stream for admin agents.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/hooks"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// eventStreamHandler is the hook handler name the event stream registers under.
const eventStreamHandler = "gateway:event-stream"

// Server is the Mercora gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	deps     Deps
	log      *logging.Logger
	metrics  *metrics.Metrics
	hooks    *hooks.Manager
	clients  *ClientRegistry
	eventSeq atomic.Int64

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new gateway server.
func New(cfg config.Config, deps Deps, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log.Sub("gateway"),
		clients: NewClientRegistry(log.Sub("events")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hooks.NewManager(log)
	}

	s.hooks.OnAll(eventStreamHandler, s.streamEvent)
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// If no origins are configured, only same-origin (no Origin header) or non-browser
// clients are allowed. If origins are configured, the Origin must match one of them.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// basePath returns the configured route prefix without a trailing slash.
func (s *Server) basePath() string {
	base := strings.TrimRight(s.cfg.Gateway.BasePath, "/")
	if base == "" {
		return "/mcp"
	}
	return base
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens for HTTP and WebSocket connections and runs the session
// sweeper and failed-auth pruner alongside. It blocks until ctx is cancelled
// or one of them fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, API keys will be transmitted in cleartext")
	}

	return s.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("base", s.basePath()).
		Msg("gateway server starting")

	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.hooks.Emit(context.WithoutCancel(gctx), hooks.EventGatewayStop, nil)
		s.hooks.Wait()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	if s.deps.Failures != nil {
		g.Go(func() error {
			s.deps.Failures.Run(gctx, time.Minute)
			return nil
		})
	}

	if s.cfg.Session.SweepMinutes > 0 {
		g.Go(func() error {
			s.sweepSessions(gctx, time.Duration(s.cfg.Session.SweepMinutes)*time.Minute)
			return nil
		})
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("gateway server ready")
	return g.Wait()
}

// sweepSessions deletes expired sessions every interval until ctx is done.
func (s *Server) sweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single expired-session cleanup pass.
func (s *Server) SweepOnce(ctx context.Context) int64 {
	n, err := s.deps.Sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session sweep failed")
		return 0
	}
	s.metrics.SessionsSwept(n)
	return n
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleEvents upgrades an admin agent to the lifecycle event stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.begin(w, r, "events", domain.PermissionAdmin)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(4096)

	client := NewClient(conn, tr.agent.ID)
	if err := client.SendEvent(EventConnected, map[string]any{
		"agent_id": tr.agent.ID,
		"conn_id":  client.ConnID,
		"events":   hooks.AllEvents,
	}, s.eventSeq.Add(1)); err != nil {
		s.log.Warn().Err(err).Msg("sending stream greeting failed")
		client.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	// Subscribers only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("event stream read error")
			}
			return
		}
	}
}

// streamEvent forwards a hook event to every stream subscriber.
func (s *Server) streamEvent(_ context.Context, p hooks.Payload) error {
	if s.clients.Count() == 0 {
		return nil
	}
	s.clients.Broadcast(p.Event, p, s.eventSeq.Add(1))
	return nil
}

// emit fires a lifecycle event without holding up the request.
func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	s.hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
}
