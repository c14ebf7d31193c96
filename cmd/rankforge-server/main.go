// Command rankforge-server runs the HTTP ingestion and query API: it
// wires together the C7 schema's Postgres pool, the optional C11
// ClickHouse audit mirror, the optional C12 legacy directory bridge,
// the C9 worker pool, and the C10/C13 query surface behind a chi
// router, then serves until a termination signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rankforge/stats-api/internal/audit"
	"github.com/rankforge/stats-api/internal/cache"
	"github.com/rankforge/stats-api/internal/config"
	"github.com/rankforge/stats-api/internal/directory"
	"github.com/rankforge/stats-api/internal/handlers"
	"github.com/rankforge/stats-api/internal/ingest/persistence"
	"github.com/rankforge/stats-api/internal/ingest/processor"
	"github.com/rankforge/stats-api/internal/logic"
	"github.com/rankforge/stats-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgPool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("connect postgres", "error", err)
	}
	defer pgPool.Close()

	chConn, err := openClickHouse(cfg.ClickHouseURL)
	if err != nil {
		sugar.Fatalw("connect clickhouse", "error", err)
	}
	defer chConn.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		sugar.Fatalw("parse redis url", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	dirBridge, err := directory.Open(cfg.DirectoryDSN, logger)
	if err != nil {
		sugar.Fatalw("open directory bridge", "error", err)
	}
	defer dirBridge.Close()

	var dirResolver processor.DirectoryResolver
	if dirBridge != nil {
		dirResolver = dirBridge
	}

	adapter := persistence.New(pgPool)
	sink := audit.New(chConn, logger)
	go sink.Run(ctx)

	dedupChecker := cache.NewDedupChecker(redisClient, adapter, sugar)
	statusPublisher := cache.NewStatusPublisher(redisClient, sugar)

	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount:     cfg.WorkerCount,
		QueueSize:       cfg.QueueSize,
		IngestTimeout:   cfg.IngestTimeout,
		MaxLogLines:     cfg.MaxLogLines,
		Checker:         dedupChecker,
		Committer:       adapter,
		Sink:            sink,
		Directory:       dirResolver,
		StatusPublisher: statusPublisher,
		Store:           adapter,
		Logger:          logger,
	})
	pool.Start(ctx)

	query := logic.NewQueryService(pgPool)

	h := handlers.New(handlers.Config{
		Pool:     pool,
		Query:    query,
		JobCache: statusPublisher,
		JobStore: adapter,
		Postgres: pgPool,
		Redis:    redisClient,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newRouter(cfg, h),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("http shutdown", "error", err)
	}
	pool.Stop()
	sink.Wait()
	sugar.Info("shutdown complete")
}

func newRouter(cfg *config.Config, h *handlers.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization", cfg.ServerTokenHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secured chi.Router) {
			secured.Use(h.ServerAuthMiddleware)
			secured.Post("/ingest/submit", h.SubmitIngest)
		})
		api.Get("/ingest/jobs/{id}", h.GetIngestJob)
		api.Get("/games/{id}", h.GetGame)
		api.Get("/games/{id}/rounds", h.GetGameRounds)
		api.Get("/leaderboard", h.GetLeaderboard)
	})

	return r
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}

func openClickHouse(dsn string) (clickhouse.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return clickhouse.Open(opts)
}
