// Package gateway serves the REST API, provider webhooks and the WebSocket
// endpoint in front of the router.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/routing"
	"github.com/soyeahso/jibby/internal/store"
	"github.com/soyeahso/jibby/internal/version"
	"golang.org/x/time/rate"
)

// ErrClientClosed is returned when writing to a closed WebSocket client.
var ErrClientClosed = errors.New("client connection closed")

// forwardedEvents are pushed from the bus to every WebSocket client.
var forwardedEvents = []string{
	hooks.EventMessageSent,
	hooks.EventMessageProcessed,
	hooks.EventCallHandled,
	hooks.EventError,
}

const (
	authFailureBurst  = 10
	authFailureWindow = 5 * time.Minute
	maxFrameBytes     = 4 * 1024 * 1024
)

// Server is the Jibby HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	commit   string
	eventSeq atomic.Int64
	validate *validator.Validate

	router       *routing.Router
	hooks        *hooks.Manager
	calls        *store.CallLogStore
	integrations *store.IntegrationStore

	apiLimiter  *ipLimiter
	authLimiter *ipLimiter
	webhooks    sync.WaitGroup

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks subscribes the server to the event bus, forwarding events to
// WebSocket clients and publishing provider webhooks.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithCallLogs enables the call history endpoint.
func WithCallLogs(calls *store.CallLogStore) ServerOption {
	return func(s *Server) { s.calls = calls }
}

// WithIntegrations enables the integrations endpoints.
func WithIntegrations(in *store.IntegrationStore) ServerOption {
	return func(s *Server) { s.integrations = in }
}

// New creates a gateway server in front of router.
func New(cfg config.Config, router *routing.Router, log *logging.Logger, opts ...ServerOption) *Server {
	build := version.Current()
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		version:     build.Version,
		commit:      build.Commit,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		router:      router,
		authLimiter: newIPLimiter(rate.Every(authFailureWindow/authFailureBurst), authFailureBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.ControlUI.AllowedOrigins),
		},
	}
	if cfg.RateLimiting.Enabled {
		n := cfg.RateLimiting.MaxRequestsPerMinute
		if n <= 0 {
			n = config.DefaultRequestsPerMinute
		}
		s.apiLimiter = perMinute(n)
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	if s.hooks != nil {
		for _, ev := range forwardedEvents {
			s.hooks.On(ev, "gateway", s.forwardEvent)
		}
	}
	return s
}

// checkWebSocketOrigin allows non-browser clients and the configured
// origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Handle registers a WebSocket method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered WebSocket method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.ControlUI.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.Host
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens for HTTP and WebSocket connections. It blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.cfg.Gateway.Bind != "loopback" && s.auth.Mode == AuthNone {
		s.log.Warn().Msg("gateway is reachable from the network without authentication")
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Bool("rateLimit", s.apiLimiter != nil).
		Msg("gateway server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
		s.webhooks.Wait()
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// forwardEvent pushes a bus event to every connected client.
func (s *Server) forwardEvent(_ context.Context, ev hooks.Event) error {
	s.clients.Broadcast(ev.Name, ev, s.eventSeq.Add(1))
	return nil
}

// handleWebSocket upgrades to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.authLimiter.Exhausted(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many failed authentication attempts", nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.Allow(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(r.Context(), client)
}

// handshake authenticates a new connection: the server sends a challenge,
// the client answers with connect, the server replies with hello.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != MethodConnect {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
			return nil, fmt.Errorf("parsing connect params: %w", err)
		}
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", authResult.Reason)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, authResult)
	resp, err := NewResponse(frame.ID, HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: s.commit, ConnID: client.ConnID},
		Features: Features{Methods: s.Methods(), Events: append([]string{EventNewMessage}, forwardedEvents...)},
	})
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")
	return client, nil
}

// readLoop processes request frames until the client disconnects.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(ctx, client, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{Code: "method_not_found", Message: "unknown method: " + frame.Method})
		return
	}
	handler(&RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s})
}

// sendErrorAndClose sends an error response and closes the connection.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
