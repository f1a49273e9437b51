package handlers

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/logic"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// JobQueue reports the depth of the prediction worker pool
type JobQueue interface {
	QueueDepth() int
}

// Config wires the handlers. Postgres, ClickHouse and Redis are optional and
// only checked by the readiness probe when set.
type Config struct {
	Prediction logic.PredictionService
	WorkerPool JobQueue
	Postgres   *pgxpool.Pool
	ClickHouse driver.Conn
	Redis      *redis.Client
	Logger     *zap.Logger
	// DefaultPropsThreshold applies when /props has no threshold param.
	DefaultPropsThreshold float64
}

type Handler struct {
	prediction     logic.PredictionService
	pool           JobQueue
	pg             *pgxpool.Pool
	ch             driver.Conn
	redis          *redis.Client
	logger         *zap.SugaredLogger
	validator      *validator.Validate
	propsThreshold float64
}

func New(cfg Config) *Handler {
	if cfg.DefaultPropsThreshold <= 0 {
		cfg.DefaultPropsThreshold = 15
	}
	return &Handler{
		prediction:     cfg.Prediction,
		pool:           cfg.WorkerPool,
		pg:             cfg.Postgres,
		ch:             cfg.ClickHouse,
		redis:          cfg.Redis,
		logger:         cfg.Logger.Sugar(),
		validator:      validator.New(),
		propsThreshold: cfg.DefaultPropsThreshold,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/api/nba", func(r chi.Router) {
		r.Get("/games/today", h.GetTodaysGames)
		r.Get("/predictions/today", h.GetTodaysPredictions)
		r.Get("/predictions/games/{gameId}", h.GetGamePrediction)
		r.Get("/predictions/players/{playerId}", h.GetPlayerPrediction)
		r.Post("/predictions/players", h.PostPlayerPredictions)
		r.Get("/props", h.GetPlayerProps)
	})
}
