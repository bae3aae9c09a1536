package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/broadcast"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hub := broadcast.NewHub(cfg.SubscriberBuffer, logger)

	var (
		boards  domain.Store = store
		evictor domain.BoardInvalidator
		sink    domain.Publisher = hub
	)
	if cfg.RedisURL != "" {
		opts, err := config.ParseRedisConnection(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(opts)
		defer rc.Close()

		cache := storage.NewBoardCache(store, rc, cfg.BoardCacheTTL)
		boards, evictor = cache, cache

		relay := broadcast.NewRedisRelay(rc, cfg.EventsChannel, hub, logger)
		go relay.Run(ctx)
		sink = relay
		log.WithField("channel", cfg.EventsChannel).Info("redis fan-out enabled")
	} else {
		log.Info("REDIS_CONNECTION_STRING not set, using in-process broadcast only")
	}

	dispatcher := broadcast.NewDispatcher(sink, broadcast.DispatcherConfig{
		Workers:        cfg.PublishWorkers,
		Buffer:         cfg.PublishBuffer,
		HandoffTimeout: cfg.PublishHandoffTimeout,
	}, logger)
	defer dispatcher.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding, api.HeaderUsername},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))

	api.Register(e, api.Services{
		Identity:       domain.NewIdentityService(store, domain.DefaultBoard, logger),
		Boards:         domain.NewBoardService(boards, evictor, logger),
		Tasks:          domain.NewTaskService(store, dispatcher, evictor, logger),
		Rooms:          hub,
		Health:         store,
		Logger:         logger,
		AllowedOrigins: originHosts(cfg.CORSOrigins),
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	log.WithField("port", cfg.Port).Info("task board api listening")

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}

// originHosts turns CORS origins into the host patterns the WebSocket
// origin check expects.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			out = append(out, o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
