package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderbus-go/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	orderHandler *OrderHandler
	queueHandler *QueueHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config       *config.ServerConfig
	Logger       *slog.Logger
	OrderHandler *OrderHandler
	QueueHandler *QueueHandler

	// DisableRequestLog turns off the per-request access log.
	DisableRequestLog bool
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           deps.Config.ReadTimeout,
		WriteTimeout:          deps.Config.WriteTimeout,
		IdleTimeout:           deps.Config.IdleTimeout,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:          app,
		config:       deps.Config,
		logger:       deps.Logger,
		orderHandler: deps.OrderHandler,
		queueHandler: deps.QueueHandler,
	}

	s.registerMiddleware(!deps.DisableRequestLog)
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware(requestLog bool) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	if requestLog {
		s.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.healthCheck)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := s.app.Group("/v1")

	// Orders: publish and read back processed results
	v1.Post("/orders", s.orderHandler.Create)
	v1.Get("/orders", s.orderHandler.List)
	v1.Get("/orders/:id", s.orderHandler.GetByID)

	// Queue inspection (read-only)
	v1.Get("/queue/messages", s.queueHandler.Messages)
	v1.Get("/queue/dead-letters", s.queueHandler.DeadLetters)
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return Success(c, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// App exposes the underlying fiber app, e.g. for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		code := ErrCodeInternalError
		if e.Code == fiber.StatusNotFound {
			code = ErrCodeNotFound
		}
		return Error(c, e.Code, code, e.Message)
	}

	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
