package models

import "time"

// Prediction statuses. Anything other than StatusOK carries an Error message.
const (
	StatusOK                  = "ok"
	StatusWarmingUp           = "warming_up"
	StatusNotFound            = "not_found"
	StatusInsufficientHistory = "insufficient_history"
	StatusError               = "error"
)

// TeamPrediction is one side of a game forecast.
type TeamPrediction struct {
	TeamID          int     `json:"team_id"`
	Team            string  `json:"team"`
	Tricode         string  `json:"tricode"`
	IsHome          bool    `json:"is_home"`
	WinProbability  float64 `json:"win_probability"`
	PredictedPoints float64 `json:"predicted_points"`
	Status          string  `json:"status"`
	GamesFound      int     `json:"games_found,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// GamePrediction forecasts the outcome of one scheduled game
type GamePrediction struct {
	GameID         string          `json:"game_id"`
	Status         string          `json:"status"`
	Home           *TeamPrediction `json:"home,omitempty"`
	Away           *TeamPrediction `json:"away,omitempty"`
	PredictedTotal float64         `json:"predicted_total,omitempty"`
	Error          string          `json:"error,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// SlatePrediction covers every game on the day's schedule
type SlatePrediction struct {
	GameDate    string            `json:"game_date"`
	Status      string            `json:"status"`
	Games       []*GamePrediction `json:"games"`
	Error       string            `json:"error,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// PlayerPrediction is a points forecast for one player's next game
type PlayerPrediction struct {
	PlayerID        int       `json:"player_id"`
	PlayerName      string    `json:"player_name,omitempty"`
	TeamID          int       `json:"team_id,omitempty"`
	Status          string    `json:"status"`
	PredictedPoints float64   `json:"predicted_points"`
	RecentAvg       float64   `json:"recent_avg"`
	SeasonAvg       float64   `json:"season_avg"`
	GamesPlayed     int       `json:"games_played"`
	Last5Games      []float64 `json:"last_5_games,omitempty"`
	MissingFeatures []string  `json:"missing_features,omitempty"`
	Error           string    `json:"error,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// BatchResult is one entry of a batch player response: either points or an error.
type BatchResult struct {
	Points *float64 `json:"points,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// PlayerProp is a player prediction with prop-betting context.
type PlayerProp struct {
	*PlayerPrediction
	VsRecentAvg float64 `json:"vs_recent_avg"`
	VsSeasonAvg float64 `json:"vs_season_avg"`
	Confidence  string  `json:"confidence"`
}

// PredictionRecord is the audit row written for every computed prediction.
type PredictionRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	GameID    string    `json:"game_id"`
	TeamID    int       `json:"team_id"`
	Value     float64   `json:"value"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
