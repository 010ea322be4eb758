// Package server contains HTTP and WebSocket handlers for the diary API.
package server

import (
	"context"
	"log/slog"
	"time"

	_ "diary/docs" // swagger docs
	"diary/internal/auth"
	"diary/internal/bootstrap"
	"diary/internal/config"
	"diary/internal/middleware"
	"diary/internal/models"
	"diary/internal/notifications"
	"diary/internal/repository"
	"diary/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	runtime        *bootstrap.Runtime
	db             *gorm.DB
	redis          *redis.Client
	store          repository.Store
	tokens         *auth.TokenManager
	entries        *service.EntryService
	authService    *service.AuthService
	hub            *notifications.Hub
	notifier       *notifications.Notifier
	promMiddleware *fiberprometheus.FiberPrometheus
	app            *fiber.App
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithAuthOptions forwards options to the auth service.
func WithAuthOptions(opts ...service.AuthOption) Option {
	return func(s *Server) {
		s.authService = service.NewAuthService(s.store, s.tokens, opts...)
	}
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, rt), nil
}

// NewServerWithDeps creates a Server using an already-initialized runtime.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, rt *bootstrap.Runtime, opts ...Option) *Server {
	var revoked auth.Revocations
	if rt.Redis != nil {
		revoked = auth.NewRedisRevocations(rt.Redis)
	} else {
		revoked = auth.NewMemoryRevocations()
	}

	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Duration(cfg.SessionTTLHours) * time.Hour,
	}, revoked)

	hub := notifications.NewHub()
	notifier := notifications.NewNotifier(rt.Redis, hub)

	s := &Server{
		config:         cfg,
		runtime:        rt,
		db:             rt.DB,
		redis:          rt.Redis,
		store:          rt.Store,
		tokens:         tokens,
		hub:            hub,
		notifier:       notifier,
		promMiddleware: middleware.InitMetrics("diary-api"),
		entries:        service.NewEntryService(rt.Store, notifier),
		authService:    service.NewAuthService(rt.Store, tokens),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// App returns the configured Fiber app, building it on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	app := fiber.New(fiber.Config{
		AppName:      "Diary API",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Server span first so every later middleware runs inside it
	app.Use(middleware.TracingMiddleware())

	// Resolve the session before ContextMiddleware copies the user id into the log context
	app.Use(middleware.Session(s.tokens, s.store, s.config.SessionCookieName))
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS before anything that can short-circuit so error responses keep CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		// fiber refuses credentials with a wildcard origin
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if !s.config.IsProduction() {
		app.Get("/monitor", monitor.New(monitor.Config{Title: "Diary API Monitor"}))
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	authWindow := time.Duration(s.config.AuthRateWindowSeconds) * time.Second
	api.Post("/register", middleware.RateLimit(
		s.redis, s.config.AuthRateLimit, authWindow, "register"), s.Register)
	api.Post("/login", middleware.RateLimit(
		s.redis, s.config.AuthRateLimit, authWindow, "login"), s.Login)
	api.Post("/logout", s.Logout)
	api.Get("/user", middleware.RequireSession, s.CurrentUser)
	api.Post("/refresh", middleware.RequireSession, s.Refresh)

	entries := api.Group("/entries", middleware.RequireSession)
	entries.Get("/", s.ListEntries)
	entries.Post("/", s.CreateEntry)
	entries.Get("/:id", s.GetEntry)
	entries.Patch("/:id", s.UpdateEntry)
	entries.Delete("/:id", s.DeleteEntry)

	api.Get("/ws", middleware.RequireSession, s.requireUpgrade, s.EntryEventsHandler())
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	return s.respondError(c, err)
}

// Start builds the app, wires the hub to cross-instance events and listens.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	go func() {
		if err := s.hub.Start(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start entry event subscriber", slog.String("error", err.Error()))
		}
	}()

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down notification hub", slog.String("error", err.Error()))
	}

	if err := s.runtime.Close(); err != nil {
		middleware.Logger.Error("error closing runtime", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}

// respondError renders err with the status its AppError code maps to.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err)
}
