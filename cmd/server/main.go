package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"

	"github.com/anonto42/nano-midea/engine/internal/events"
	"github.com/anonto42/nano-midea/engine/internal/metrics"
	"github.com/anonto42/nano-midea/engine/internal/middleware"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/internal/router"
	"github.com/anonto42/nano-midea/engine/internal/services"
	"github.com/anonto42/nano-midea/engine/pkg/config"
	"github.com/anonto42/nano-midea/engine/pkg/firebase"
	"github.com/anonto42/nano-midea/engine/pkg/logger"
	"github.com/anonto42/nano-midea/engine/pkg/telemetry"
	"github.com/anonto42/nano-midea/engine/validators"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()
	log := logger.Init(cfg.Env)
	log.Info("Starting interaction engine", slog.String("env", cfg.Env), slog.String("store", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OtelEndpoint, cfg.Env)
	if err != nil {
		log.Error("Failed to init tracer", slog.String("error", err.Error()))
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	// Initialize auxiliary connections
	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	defer db.CloseDB()

	// Firebase is needed for ID-token auth and for the Firestore driver
	var fb *firebase.App
	if cfg.AuthMode == "firebase" || cfg.StoreDriver == "firestore" {
		fb, err = firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseProjectID, cfg.StoreDriver == "firestore")
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase: %w", err)
		}
	}

	store, memory, err := openStore(ctx, cfg, fb)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	v := validators.NewValidator()
	namespaces := repositories.Namespaces{Current: cfg.PostsCollection, Legacy: cfg.LegacyPostsCollection}

	// Repositories
	posts := repositories.NewStorePostRepository(store, namespaces)
	users := repositories.NewStoreUserRepository(store)
	notifications := repositories.NewStoreNotificationRepository(store)
	bookmarks := repositories.NewStoreBookmarkRepository(store)

	var opts []services.FanoutOption
	var journal repositories.FailureJournal
	if db.Postgres != nil {
		pj := repositories.NewPostgresFailureJournal(db.Postgres)
		if err := pj.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate failure journal: %w", err)
		}
		journal = pj
		opts = append(opts, services.WithJournal(pj))
	}
	var push *events.RedisPublisher
	if db.Redis != nil {
		push = events.NewRedisPublisher(db.Redis)
		opts = append(opts, services.WithPublisher(push))
	}

	// Services
	writer := services.NewBatchWriter(store, cfg.NotificationChunkSize, log, m)
	fanout := services.NewFanoutService(users, posts, notifications, writer, log, m, opts...)
	interactions := services.NewInteractionService(store, posts, bookmarks, fanout, writer, log, m)
	dispatcher := events.NewDispatcher(fanout, v, log, m)

	// Triggers
	var triggers events.Sink = dispatcher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("interaction-engine"))
		if err != nil {
			return fmt.Errorf("unable to connect to NATS: %w", err)
		}
		defer nc.Close()
		log.Info("Successfully connected to NATS!")

		consumer := events.NewTriggerConsumer(nc, dispatcher, namespaces, log)
		if err := consumer.Start(); err != nil {
			return err
		}
		defer consumer.Close()
		triggers = events.NewNATSPublisher(nc, namespaces)
	}
	if memory != nil {
		events.NewMemoryBridge(triggers, namespaces, log).Attach(memory)
	}

	auth, err := authMiddleware(cfg, fb)
	if err != nil {
		return err
	}

	// HTTP API
	e := echo.New()
	e.HideBanner = true
	e.Validator = v
	config.SetupMiddleware(e, log)
	router.SetupRoutes(e, router.Deps{
		Interactions:  interactions,
		Posts:         services.NewPostService(store, posts, users, interactions, log, m),
		Reader:        services.NewReaderService(store, posts, users, notifications, log),
		Ingest:        services.NewIngestService(posts, writer, cfg.NewsBotUID, log),
		Journal:       journal,
		Triggers:      dispatcher,
		Push:          push,
		Auth:          auth,
		TriggerSecret: cfg.TriggerSecret,
		NewsSecret:    cfg.NewsPostSecret,
		Logger:        log,
	})

	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		log.Info("Metrics listening", slog.String("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		log.Info("API listening", slog.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics shutdown failed", slog.String("error", err.Error()))
	}
	log.Info("Server exited")
	return nil
}

// openStore opens the configured document store. The memory store is also
// returned on its own so its change feed can drive the triggers.
func openStore(ctx context.Context, cfg *config.Config, fb *firebase.App) (repositories.DocumentStore, *repositories.MemoryStore, error) {
	switch cfg.StoreDriver {
	case "firestore":
		return repositories.NewFirestoreStore(fb.Firestore), nil, nil
	case "mongo":
		client, err := config.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		return repositories.NewMongoStore(client, client.Database(cfg.MongoDatabase)), nil, nil
	case "memory":
		slog.Warn("Using the in-memory store; data is lost on exit")
		mem := repositories.NewMemoryStore()
		return mem, mem, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func authMiddleware(cfg *config.Config, fb *firebase.App) (echo.MiddlewareFunc, error) {
	switch cfg.AuthMode {
	case "firebase":
		return middleware.FirebaseAuthMiddleware(fb.AuthClient), nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET must be set when AUTH_MODE=jwt")
		}
		return middleware.JWTAuthMiddleware(cfg.JWTSecret), nil
	}
	return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
}
