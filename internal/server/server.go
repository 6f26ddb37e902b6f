package server

import (
	"context"
	"errors"
	"time"

	"filings-rag-be/internal/bootstrap"
	"filings-rag-be/internal/config"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/pkg/serverutils"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/workflow"
	"filings-rag-be/pkg/session"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const module = "server"

// ErrorStatuses maps domain errors to HTTP statuses.
var ErrorStatuses = []serverutils.ErrorStatus{
	{Err: session.ErrSessionNotFound, Code: fiber.StatusNotFound},
	{Err: session.ErrInvalidID, Code: fiber.StatusBadRequest},
	{Err: session.ErrEmptyQuestion, Code: fiber.StatusBadRequest},
	{Err: session.ErrInvalidFeedback, Code: fiber.StatusBadRequest},
	{Err: memory.ErrNoConversation, Code: fiber.StatusConflict},
	{Err: workflow.ErrGenerationFailed, Code: fiber.StatusBadGateway},
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
	logger    logger.ILogger
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		ReadTimeout:           15 * time.Second,
		DisableStartupMessage: cfg.IsProduction(),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: cfg.App.CorsAllowedOrigins != "*",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type",
	}))

	if cfg.App.OtelEnabled {
		app.Use(otelfiber.Middleware())
	}

	app.Use(serverutils.ErrorHandlerMiddleware(container.Logger, ErrorStatuses...))

	registerRoutes(app, cfg, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
		logger:    container.Logger,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.logger.Info(module, "server listening", map[string]interface{}{"port": s.cfg.App.Port})
	err := s.app.Listen(":" + s.cfg.App.Port)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(app *fiber.App, cfg *config.Config, c *bootstrap.Container) {
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(serverutils.SuccessResponse("ok", fiber.Map{
			"active_sessions": c.Registry.ActiveCount(),
		}))
	})
	if c.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(c.Metrics.Handler()))
	}

	api := app.Group("/api")
	var auth fiber.Handler
	if cfg.App.JWTSecret != "" {
		auth = serverutils.JwtMiddleware(cfg.App.JWTSecret, cfg.App.AuthRequired)
	}
	c.QueryController.RegisterRoutes(api, auth)
}
