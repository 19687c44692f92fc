package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/i-Mobyl/cursor-todo-app/api"
	"github.com/i-Mobyl/cursor-todo-app/config"
	"github.com/i-Mobyl/cursor-todo-app/listview"
	"github.com/i-Mobyl/cursor-todo-app/memstore"
	"github.com/i-Mobyl/cursor-todo-app/storage"
	"github.com/i-Mobyl/cursor-todo-app/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, feed, deduper := wireStore(ctx, cfg, logger)
	auth := wireAuth(cfg)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, api.HeaderIdempotencyKey},
	}))
	e.Use(echoprometheus.NewMiddleware("todo_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	sessions := api.NewSessions(store, feed, logger)
	go sessions.RunEviction(ctx, cfg.SessionIdleTTL, time.Minute)
	var opts []api.Option
	if deduper != nil {
		opts = append(opts, api.WithDeduper(deduper))
	}
	api.Register(e, sessions, auth, logger, opts...)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWindow)
	defer cancel()
	sessions.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
}

// wireStore builds the task store and live query: in-process when LOCAL_MODE
// is set, otherwise Table Storage behind the Redis cache with the pub/sub hub.
// Idempotency keys need Redis, so local mode returns a nil deduper.
func wireStore(ctx context.Context, cfg config.Config, logger *log.Logger) (listview.Store, listview.Feed, *api.RedisDeduper) {
	if cfg.LocalMode {
		logger.Warn("LOCAL_MODE: tasks are kept in memory")
		mem := memstore.New()
		return mem, mem, nil
	}
	if err := cfg.RequireStorage(); err != nil {
		logger.Fatal(err)
	}
	if err := cfg.RequireRedis(); err != nil {
		logger.Fatal(err)
	}
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)

	var notifier storage.Notifier
	switch cfg.Notifier {
	case config.NotifyQueue:
		qn, err := storage.NewQueueNotifier(cfg.StorageConnectionString, cfg.ChangeQueue)
		if err != nil {
			logger.Fatalf("change queue: %v", err)
		}
		notifier = qn
	default:
		notifier = storage.NewRedisNotifier(rc, cfg.UpdatesChannel)
	}

	tables, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable, notifier, logger)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	cache := storage.NewCache(tables, rc, cfg.CacheTTL)
	hub := subscription.NewHub(rc, cfg.UpdatesChannel, cache, logger)
	go hub.Run(ctx)
	return cache, hub, api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
}

func wireAuth(cfg config.Config) api.Authenticator {
	if err := cfg.RequireAuth(); err != nil {
		log.Fatal(err)
	}
	if cfg.AuthTestMode {
		log.Warn("AUTH0_TEST_MODE: accepting HS256 tokens")
		return api.NewTestAuth([]byte(cfg.TestJWTSecret))
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Error("jwks refresh")
		},
	})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, cfg.Issuer(), cfg.JWKSCacheTTL)
}
