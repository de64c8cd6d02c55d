package api

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamchat/pkg/auth"
	"github.com/papercomputeco/streamchat/pkg/chat"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/metrics"
)

// Server is the streamchat API server.
type Server struct {
	config Config
	auth   *auth.Service
	chat   *chat.Service
	logger *slog.Logger
	app    *fiber.App

	// ctx parents every streaming response and is cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new API server. The auth and chat services are
// injected so the CLI can share them with other components.
func NewServer(config Config, authSvc *auth.Service, chatSvc *chat.Service, l *slog.Logger) (*Server, error) {
	if authSvc == nil {
		return nil, errors.New("auth service is required")
	}
	if chatSvc == nil {
		return nil, errors.New("chat service is required")
	}
	if l == nil {
		l = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(l),
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		auth:   authSvc,
		chat:   chatSvc,
		logger: l,
		app:    app,
		ctx:    ctx,
		cancel: cancel,
	}

	app.Use(s.observe)

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authGroup := app.Group("/auth")
	authGroup.Post("/register", s.handleRegister)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/logout", s.requireAuth, s.handleLogout)
	authGroup.Get("/profile", s.requireAuth, s.handleProfile)
	authGroup.Post("/refresh", s.requireAuth, s.handleRefresh)

	user := app.Group("/user", s.requireAuth)
	user.Patch("/info", s.handleUpdateUser)
	user.Post("/change-password", s.handleChangePassword)

	chatGroup := app.Group("/chat", s.requireAuth)
	chatGroup.Get("/sessions", s.handleListSessions)
	chatGroup.Post("/sessions", s.handleCreateSession)
	chatGroup.Get("/sessions/:id", s.handleGetSession)
	chatGroup.Patch("/sessions/:id", s.handleRenameSession)
	chatGroup.Delete("/sessions/:id", s.handleDeleteSession)
	chatGroup.Post("/sessions/:id/stream", s.handleStreamMessage)
	chatGroup.Post("/messages", s.handleSendMessage)

	video := app.Group("/video", s.requireAuth)
	video.Post("/parse", s.handleParseVideo)
	video.Post("/parse/stream", s.handleParseVideoStream)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting API server", "listen", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the API server, waiting for in-flight
// requests until ctx is done. Streams still running after that are
// cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
