package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/cache"
	"github.com/hoopcast/forecast-api/internal/config"
	"github.com/hoopcast/forecast-api/internal/handlers"
	"github.com/hoopcast/forecast-api/internal/injury"
	"github.com/hoopcast/forecast-api/internal/logic"
	"github.com/hoopcast/forecast-api/internal/model"
	"github.com/hoopcast/forecast-api/internal/source"
	"github.com/hoopcast/forecast-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, logger); err != nil {
		sugar.Fatalw("Server failed", "error", err)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backing stores
	var pg *pgxpool.Pool
	if cfg.PostgresURL != "" {
		var err error
		if pg, err = pgxpool.New(ctx, cfg.PostgresURL); err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
	}

	var ch driver.Conn
	if cfg.ClickHouseURL != "" {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			return fmt.Errorf("parsing clickhouse dsn: %w", err)
		}
		if ch, err = clickhouse.Open(opts); err != nil {
			return fmt.Errorf("connecting to clickhouse: %w", err)
		}
		defer ch.Close()
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	// Prediction cache
	var store cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		store = cache.NewRedisStore(rdb, "")
	default:
		fs, err := cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			return err
		}
		store = fs
	}
	predCache := cache.New(cache.Config{
		Store:         store,
		FlushInterval: cfg.CacheFlushInterval,
		Logger:        logger,
	})
	cacheCtx, stopCache := context.WithCancel(context.Background())
	cacheDone := make(chan struct{})
	go func() {
		defer close(cacheDone)
		predCache.Run(cacheCtx)
	}()

	// Data sources
	httpClient := &http.Client{Timeout: 30 * time.Second}
	var upstream source.HistorySource
	switch cfg.HistorySource {
	case config.HistorySourcePostgres:
		upstream = source.NewPostgresHistory(pg, cfg.Seasons)
	default:
		upstream = source.NewStatsClient(source.StatsConfig{
			BaseURL:    cfg.StatsBaseURL,
			Seasons:    cfg.Seasons,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	history := source.NewCachedHistory(source.CachedHistoryConfig{
		Upstream: upstream,
		Cache:    predCache,
		Location: cfg.Timezone,
		Logger:   logger,
	})
	schedule := source.NewScoreboardClient(cfg.ScoreboardURL, httpClient, logger)
	injuries := injury.NewESPNClient(cfg.InjuryURL, httpClient, logger)

	// Models
	winModel, err := model.Load(cfg.WinModelPath)
	if err != nil {
		return fmt.Errorf("loading win model: %w", err)
	}
	sugar.Infow("Win model loaded", "path", cfg.WinModelPath, "features", len(winModel.FeatureNames()))
	pointsModel := optionalModel(sugar, "points", cfg.PointsModelPath)
	playerModel := optionalModel(sugar, "player", cfg.PlayerModelPath)

	// Workers
	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount: cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
		JobTimeout:  cfg.JobTimeout,
		Logger:      logger,
	})
	pool.Start(ctx)

	var recorder logic.Recorder
	var rec *worker.Recorder
	if ch != nil {
		rec = worker.NewRecorder(worker.RecorderConfig{
			Conn:          ch,
			BatchSize:     cfg.RecorderBatchSize,
			FlushInterval: cfg.RecorderFlushInterval,
			Logger:        logger,
		})
		rec.Start(ctx)
		recorder = rec
	}

	predCfg := logic.PredictionConfig{
		History:            history,
		Schedule:           schedule,
		Injuries:           injuries,
		WinModel:           winModel,
		Cache:              predCache,
		Runner:             pool,
		Recorder:           recorder,
		Location:           cfg.Timezone,
		CurrentSeason:      cfg.CurrentSeason(),
		GameTTL:            cfg.GameTTL,
		SlateTTL:           cfg.SlateTTL,
		PlayerTTL:          cfg.PlayerTTL,
		ErrorTTL:           cfg.ErrorTTL,
		BatchLimit:         cfg.BatchLimit,
		RotationMinMinutes: cfg.RotationMinMinutes,
		Logger:             logger,
	}
	// Leave the interfaces nil rather than holding a nil *Booster.
	if pointsModel != nil {
		predCfg.PointsModel = pointsModel
	}
	if playerModel != nil {
		predCfg.PlayerModel = playerModel
	}
	predictions := logic.NewPredictionService(predCfg)

	warmer := logic.NewWarmer(logic.WarmerConfig{
		Service:  predictions,
		Schedule: cfg.WarmupSchedule,
		Location: cfg.Timezone,
		Logger:   logger,
	})
	if err := warmer.Start(ctx); err != nil {
		return fmt.Errorf("invalid WARMUP_SCHEDULE: %w", err)
	}

	// HTTP
	h := handlers.New(handlers.Config{
		Prediction:            predictions,
		WorkerPool:            pool,
		Postgres:              pg,
		ClickHouse:            ch,
		Redis:                 rdb,
		Logger:                logger,
		DefaultPropsThreshold: cfg.PropsThreshold,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Handle("/metrics", promhttp.Handler())
	h.Mount(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("Forecast API listening", "port", cfg.Port, "env", cfg.Env, "historySource", cfg.HistorySource, "cacheBackend", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		sugar.Infow("Shutting down", "signal", sig.String())
	case err := <-errCh:
		sugar.Errorw("HTTP server failed", "error", err)
	}

	warmer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("HTTP shutdown failed", "error", err)
	}

	pool.Stop()
	if rec != nil {
		rec.Stop()
	}
	cancel()

	// Run performs the final flush once its context ends.
	stopCache()
	<-cacheDone

	sugar.Info("Shutdown complete")
	return nil
}

// optionalModel loads a regressor when a path is configured.
func optionalModel(logger *zap.SugaredLogger, name, path string) *model.Booster {
	if path == "" {
		logger.Infow("Model not configured", "model", name)
		return nil
	}
	b, err := model.Load(path)
	if err != nil {
		logger.Warnw("Optional model unavailable", "model", name, "path", path, "error", err)
		return nil
	}
	logger.Infow("Model loaded", "model", name, "path", path, "features", len(b.FeatureNames()))
	return b
}
