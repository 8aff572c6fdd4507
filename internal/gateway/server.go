package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/bridge"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/config"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/interceptor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the gsp gateway: a reverse proxy in front of the Gemini web app
// that rewrites outgoing prompts, plus the settings API and the failure feed.
type Server struct {
	Config      *config.Config
	Interceptor *interceptor.Interceptor
	Bridge      *bridge.Bridge
	Conns       *ConnManager
	proxy       http.Handler
	httpSrv     *http.Server
	startAt     time.Time
}

// NewServer wires the proxy through ic's installed transport (base, or
// http.DefaultTransport when nil) and subscribes to its failure events.
func NewServer(cfg *config.Config, ic *interceptor.Interceptor, br *bridge.Bridge, base http.RoundTripper) (*Server, error) {
	proxy, err := newProxy(cfg.Gateway.Upstream, ic.Install(base))
	if err != nil {
		return nil, err
	}
	s := &Server{
		Config:      cfg,
		Interceptor: ic,
		Bridge:      br,
		Conns:       NewConnManager(),
		proxy:       proxy,
		startAt:     time.Now(),
	}
	ic.OnInjectionFailed(s.notifyFailure)
	return s, nil
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.ginHealth)
	engine.GET("/ws", s.ginWebSocket)
	s.registerAPIRoutes(engine)
	engine.NoRoute(gin.WrapH(s.proxy))
	return engine
}

// Start begins listening for connections.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Config.Gateway.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gsp gateway starting", "port", s.Config.Gateway.Port, "upstream", s.Config.Gateway.Upstream)
	slog.Info("open Gemini through the gateway", "url", fmt.Sprintf("http://localhost:%d/app", s.Config.Gateway.Port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) ginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.startAt).String(),
		"ledger":   s.Interceptor.Ledger().Len(),
		"outcomes": s.Interceptor.Stats(),
		"clients":  s.Conns.ClientCount(),
	})
}

func (s *Server) ginWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	connID := "conn_" + uuid.NewString()
	conn := &Conn{
		ID:          connID,
		WS:          ws,
		ConnectedAt: time.Now(),
	}

	// First message must be a connect request
	frame, err := ReadFrame(ws)
	if err != nil {
		slog.Warn("failed to read connect frame", "error", err)
		return
	}
	if frame.Method != MethodConnect {
		conn.Send(ResErr(frame.ID, "HANDSHAKE_REQUIRED", "first message must be a connect request"))
		return
	}

	var connectParams ConnectParams
	if err := json.Unmarshal(frame.Params, &connectParams); err != nil {
		conn.Send(ResErr(frame.ID, "INVALID_PARAMS", "invalid connect params"))
		return
	}

	if !s.authenticate(connectParams.Token) {
		conn.Send(ResErr(frame.ID, "AUTH_FAILED", "invalid token"))
		return
	}

	conn.SetLocale(s.locale(connectParams.Locale))
	s.Conns.Add(conn)
	defer s.Conns.Remove(connID)

	slog.Info("toast client connected", "id", connID, "locale", conn.Locale())

	conn.Send(ResOK(frame.ID, map[string]any{
		"connId":   connID,
		"locale":   conn.Locale(),
		"protocol": 1,
	}))

	for {
		frame, err := ReadFrame(ws)
		if err != nil {
			slog.Debug("connection closed", "id", connID, "error", err)
			return
		}
		if frame.Type != "req" {
			continue
		}

		switch frame.Method {
		case MethodSetLocale:
			var p SetLocaleParams
			if err := json.Unmarshal(frame.Params, &p); err != nil {
				conn.Send(ResErr(frame.ID, "INVALID_PARAMS", "invalid locale params"))
				continue
			}
			conn.SetLocale(s.locale(p.Locale))
			conn.Send(ResOK(frame.ID, map[string]any{"locale": conn.Locale()}))
		default:
			conn.Send(ResErr(frame.ID, "UNKNOWN_METHOD", "use HTTP /api for settings; only locale.set is supported over WebSocket"))
		}
	}
}

func (s *Server) authenticate(token string) bool {
	expected := s.Config.Gateway.Auth.Token
	if expected == "" {
		return true // no auth configured
	}
	return token == expected
}

// locale picks requested, or the configured default when empty.
func (s *Server) locale(requested string) string {
	if requested != "" {
		return requested
	}
	return s.Config.Locale
}
