package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"convoflow/internal/auth"
	"convoflow/internal/config"
	"convoflow/internal/handlers"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Deps are the collaborators the HTTP surface serves. All are built once by the caller.
type Deps struct {
	DB       *sqlx.DB
	Receiver handlers.Receiver
	Threads  handlers.ThreadReader
	Reads    handlers.ReadTracker
	Sender   handlers.MessageSender
	Auth     *auth.Manager
	// Embedder and Searcher are optional; search is not routed without them
	Embedder handlers.Embedder
	Searcher handlers.ChunkSearcher
}

// Server represents the application server
type Server struct {
	echo    *echo.Echo
	deps    Deps
	config  *config.Config
	logger  zerolog.Logger
	started time.Time
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	return &Server{
		config:  cfg,
		deps:    deps,
		logger:  logger,
		started: time.Now().UTC(),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := s.logger.Info()
			if res.Status >= http.StatusInternalServerError {
				event = s.logger.Warn()
			}
			event.
				Str("method", req.Method).
				Str("path", c.Path()).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return nil
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.BodyLimit("10M"))

	s.echo.HideBanner = true

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version, s.started))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.deps.DB))

	// Provider callbacks authenticate by verify token / path, not bearer token
	hooks := handlers.NewWebhookHandler(s.deps.Receiver, s.config.WhatsAppVerifyToken, s.config.WhatsAppAppSecret, s.logger)
	s.echo.GET("/webhooks/whatsapp/:userId", hooks.WhatsAppVerify)
	s.echo.POST("/webhooks/whatsapp/:userId", hooks.WhatsAppInbound)
	s.echo.POST("/webhooks/email/:userId", hooks.EmailInbound)

	api := s.echo.Group("/api")
	api.GET("/", handlers.RootHandler(s.config.Version, s.echo.Routes))

	secured := api.Group("", auth.Middleware(s.deps.Auth))
	threads := handlers.NewThreadHandler(s.deps.Threads, s.deps.Reads, s.logger)
	secured.GET("/threads", threads.List)
	secured.GET("/threads/:id/messages", threads.Messages)
	secured.GET("/threads/:id/unread", threads.Unread)
	secured.POST("/threads/:id/read", threads.MarkRead)
	secured.POST("/threads/:id/participants", threads.AddParticipant)
	if s.deps.Embedder != nil && s.deps.Searcher != nil {
		secured.GET("/threads/:id/search", threads.Search(s.deps.Embedder, s.deps.Searcher))
	}
	secured.POST("/messages/send", handlers.SendMessageHandler(s.deps.Sender, s.logger))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	err := s.echo.Start(":" + s.config.Port)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
