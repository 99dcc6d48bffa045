// Package gateway serves the chat proxy over HTTP and a WebSocket RPC.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/baogate/internal/agent"
	"github.com/soyeahso/baogate/internal/channel"
	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/hooks"
	"github.com/soyeahso/baogate/internal/logging"
	"github.com/soyeahso/baogate/internal/version"
)

const (
	shutdownTimeout = 10 * time.Second
	wsReadLimit     = 4 << 20
)

// Server is the baogate HTTP + WebSocket server.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	log      *logging.Logger
	runner   *agent.Runner
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	defaultChannel string
	requestTimeout time.Duration
	enableWS       bool

	// Channel registry (optional, for health reporting)
	channels *channel.Registry

	// Hook manager (optional)
	hooks *hooks.Manager

	startedAt   time.Time
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithChannels sets the channel registry for status reporting.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) {
		s.channels = ch
	}
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a gateway server in front of runner.
func New(cfg config.Config, runner *agent.Runner, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:            cfg.Gateway,
		auth:           ResolveAuth(cfg.Gateway.Auth),
		log:            log.Sub("gateway"),
		runner:         runner,
		clients:        NewClientRegistry(log.Sub("clients")),
		handlers:       make(map[string]RequestHandler),
		version:        version.Version,
		defaultChannel: cfg.Session.DefaultChannel,
		requestTimeout: time.Duration(cfg.Gateway.RequestTimeoutSeconds) * time.Second,
		enableWS:       cfg.Gateway.WebSocketEnabled(),
		startedAt:      time.Now(),
		authLimiter:    newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
	if s.defaultChannel == "" {
		s.defaultChannel = config.DefaultChannel
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin allows non-browser clients (no Origin header) and
// browsers whose Origin is in the allow list.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Handler returns the routed HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, middlewareConfig{
		log:            s.log,
		allowedOrigins: s.cfg.AllowedOrigins,
		maxBodyBytes:   s.cfg.MaxBodyBytes,
		auth:           s.auth,
		limiter:        s.authLimiter,
	})
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
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

// Start listens for HTTP and WebSocket connections. It blocks until ctx is
// cancelled (then shuts down gracefully) or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.TLS != nil && s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Bind != "loopback" && s.auth.Mode == AuthModeToken {
		s.log.Warn().Msg("TLS is not enabled; bearer tokens travel in cleartext")
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", s.addr).
		Str("bind", s.cfg.Bind).
		Str("auth", s.auth.Mode).
		Bool("websocket", s.enableWS).
		Strs("methods", s.Methods()).
		Msg("gateway server ready")

	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": s.addr})

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.clients.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("graceful shutdown incomplete")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleWebSocket upgrades to WebSocket and serves RPC frames until the
// client disconnects. Auth already ran in middleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(wsReadLimit)

	client := NewClient(conn, s.log.Sub("ws"))
	s.clients.Add(client)

	ctx, cancel := context.WithCancel(r.Context())
	var inflight sync.WaitGroup
	defer func() {
		// Abandon in-flight exchanges; their Turns are not committed.
		cancel()
		inflight.Wait()
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(ctx, client, &inflight)
}

// readLoop reads frames and dispatches each request on its own goroutine so
// slow provider calls on one channel do not block others.
func (s *Server) readLoop(ctx context.Context, client *Client, inflight *sync.WaitGroup) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			var fe *frameError
			if errors.As(err, &fe) {
				client.RespondError("", ErrorShape{Code: CodeInvalidRequest, Message: fe.Error()})
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				client.log.Debug().Msg("client closed connection")
			} else {
				client.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			client.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.dispatch(ctx, client, frame)
		}()
	}
}

// dispatch routes a request frame to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	handler(&RequestContext{
		Ctx:    reqCtx,
		Client: client,
		Frame:  frame,
		Server: s,
	})
}
