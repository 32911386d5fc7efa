package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/engine/internal/events"
	"github.com/anonto42/nano-midea/engine/internal/handlers"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/internal/services"
)

// Deps are the wired services the routes serve.
type Deps struct {
	Interactions *services.InteractionService
	Posts        *services.PostService
	Reader       *services.ReaderService
	Ingest       *services.IngestService
	Journal      repositories.FailureJournal
	Triggers     events.Sink
	Push         *events.RedisPublisher
	// Auth authenticates /api/v1 and sets the actor uid.
	Auth          echo.MiddlewareFunc
	TriggerSecret string
	NewsSecret    string
	Logger        *slog.Logger
}

// SetupRoutes configures all application routes
func SetupRoutes(e *echo.Echo, d Deps) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.GET("/health", handlers.HealthCheck)

	// Shared-secret routes
	handlers.NewAdminHandler(d.Ingest, d.Journal, d.NewsSecret).RegisterAdminRoutes(e.Group("/api/v1/admin"))
	handlers.NewTriggerHandler(d.Triggers, d.TriggerSecret).RegisterTriggerRoutes(e.Group("/internal"))

	api := e.Group("/api/v1")
	if d.Auth != nil {
		api.Use(d.Auth)
	}

	handlers.NewInteractionHandler(d.Interactions).RegisterInteractionRoutes(api)
	handlers.NewPostHandler(d.Posts, d.Reader).RegisterPostRoutes(api)
	handlers.NewNotificationHandler(d.Reader).RegisterNotificationRoutes(api)
	handlers.NewUserHandler(d.Reader).RegisterUserRoutes(api)
	handlers.NewLiveHandler(d.Reader, d.Push, logger).RegisterLiveRoutes(api)

	logger.Info("All routes configured.")
}
