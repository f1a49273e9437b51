package logic

import (
	"context"
	"time"

	"github.com/hoopcast/forecast-api/internal/models"
)

// HistorySource supplies completed game logs for the configured seasons.
type HistorySource interface {
	TeamLogs(ctx context.Context) ([]models.GameRow, error)
	PlayerLogs(ctx context.Context) ([]models.PlayerGameRow, error)
}

// ScheduleSource supplies today's slate.
type ScheduleSource interface {
	Today(ctx context.Context) (*models.Scoreboard, error)
}

// InjurySource supplies the current injury report. Player ids may be left
// unresolved; the service resolves them against the rotation.
type InjurySource interface {
	Report(ctx context.Context) ([]models.InjuryReportEntry, error)
}

// WinModel is a binary classifier over team feature rows.
type WinModel interface {
	FeatureNames() []string
	PredictProba(x []float64) (float64, error)
}

// PointsModel is a regressor over team or player feature rows.
type PointsModel interface {
	FeatureNames() []string
	Predict(x []float64) float64
}

// Cache is the namespaced TTL store predictions are memoized in.
type Cache interface {
	Get(namespace, key string, dst any) (bool, error)
	Set(namespace, key string, value any, ttl time.Duration) error
}

// Runner executes CPU-heavy work off the request goroutine.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder receives an audit row for every freshly computed prediction.
type Recorder interface {
	Record(rec models.PredictionRecord) bool
}

// PredictionService forecasts today's games and player points
type PredictionService interface {
	TodaysGames(ctx context.Context) (*models.Scoreboard, error)
	PredictGame(ctx context.Context, gameID string) (*models.GamePrediction, error)
	PredictSlate(ctx context.Context) (*models.SlatePrediction, error)
	PredictPlayer(ctx context.Context, playerID int) (*models.PlayerPrediction, error)
	PredictPlayers(ctx context.Context, playerIDs []int) (map[string]models.BatchResult, error)
	PlayerProps(ctx context.Context, playerIDs []int, threshold float64) ([]models.PlayerProp, error)

	// Warm computes the day's slate bypassing the warm-up gate and opens the
	// gate when it returns, whatever the outcome.
	Warm(ctx context.Context) error
	Ready() bool
	WarmError() error
}
