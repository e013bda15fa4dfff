package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"docforge/internal/assetcache"
	"docforge/internal/config"
	"docforge/internal/metrics"
	"docforge/internal/pkg/logger"
	"docforge/internal/pkg/shutdown"
	"docforge/internal/storage"
	"docforge/internal/worker"
	"docforge/internal/worker/background"
)

func main() {
	log := logger.NewDefault()
	cfg := config.FromEnv()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to database", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	store, err := storage.NewStore(ctx)
	if err != nil {
		log.LogFatal("failed to initialize object store", err)
	}

	rec := metrics.New()

	cache := assetcache.New(assetcache.Config{
		Capacity:   cfg.TemplateCacheCapacity,
		DefaultTTL: cfg.TemplateCacheTTL,
		MaxBytes:   cfg.TemplateCacheMaxBytes,
		Metrics:    rec.TemplateCache(),
	})

	bg := background.NewRunner(64, time.Minute, log)

	mgr := shutdown.NewManager(log, cfg.ShutdownGrace)
	workerCtx, cancelWorkers := context.WithCancel(ctx)

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: newRouter(rec)}
	go func() {
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err.Error())
		}
	}()

	// LIFO: workers stop claiming and in-flight jobs get the grace period
	// first, then background tasks drain, then the caches and connections go.
	workerDone := make(chan struct{})
	mgr.RegisterSimple("redis", func() { _ = rdb.Close() })
	mgr.RegisterSimple("postgres", pool.Close)
	mgr.RegisterSimple("asset-cache", cache.Clear)
	mgr.Register("background-tasks", bg.Close)
	mgr.Register("metrics-server", srv.Shutdown)
	mgr.Register("workers", func(ctx context.Context) error {
		cancelWorkers()
		select {
		case <-workerDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(workerDone)
		if err := worker.Run(workerCtx, worker.Deps{
			Cfg:        cfg,
			Pool:       pool,
			RDB:        rdb,
			Store:      store,
			AssetCache: cache,
			Background: bg,
			Metrics:    rec,
			Log:        log,
		}); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker exited with error", "error", err.Error())
		}
	}()

	log.Info("docforge export worker started",
		"concurrency", cfg.Concurrency,
		"queue", cfg.QueueName,
	)
	mgr.Wait()
}

func newRouter(rec *metrics.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", rec.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
