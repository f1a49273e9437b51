package handlers

import (
	"context"

	"github.com/hoopcast/forecast-api/internal/models"
)

// MockPredictionService
type MockPredictionService struct {
	TodaysGamesFunc    func(ctx context.Context) (*models.Scoreboard, error)
	PredictGameFunc    func(ctx context.Context, gameID string) (*models.GamePrediction, error)
	PredictSlateFunc   func(ctx context.Context) (*models.SlatePrediction, error)
	PredictPlayerFunc  func(ctx context.Context, playerID int) (*models.PlayerPrediction, error)
	PredictPlayersFunc func(ctx context.Context, playerIDs []int) (map[string]models.BatchResult, error)
	PlayerPropsFunc    func(ctx context.Context, playerIDs []int, threshold float64) ([]models.PlayerProp, error)

	NotReady bool
	WarmErr  error
}

func (m *MockPredictionService) TodaysGames(ctx context.Context) (*models.Scoreboard, error) {
	if m.TodaysGamesFunc != nil {
		return m.TodaysGamesFunc(ctx)
	}
	return &models.Scoreboard{}, nil
}

func (m *MockPredictionService) PredictGame(ctx context.Context, gameID string) (*models.GamePrediction, error) {
	if m.PredictGameFunc != nil {
		return m.PredictGameFunc(ctx, gameID)
	}
	return &models.GamePrediction{GameID: gameID, Status: models.StatusOK}, nil
}

func (m *MockPredictionService) PredictSlate(ctx context.Context) (*models.SlatePrediction, error) {
	if m.PredictSlateFunc != nil {
		return m.PredictSlateFunc(ctx)
	}
	return &models.SlatePrediction{Status: models.StatusOK}, nil
}

func (m *MockPredictionService) PredictPlayer(ctx context.Context, playerID int) (*models.PlayerPrediction, error) {
	if m.PredictPlayerFunc != nil {
		return m.PredictPlayerFunc(ctx, playerID)
	}
	return &models.PlayerPrediction{PlayerID: playerID, Status: models.StatusOK}, nil
}

func (m *MockPredictionService) PredictPlayers(ctx context.Context, playerIDs []int) (map[string]models.BatchResult, error) {
	if m.PredictPlayersFunc != nil {
		return m.PredictPlayersFunc(ctx, playerIDs)
	}
	return map[string]models.BatchResult{}, nil
}

func (m *MockPredictionService) PlayerProps(ctx context.Context, playerIDs []int, threshold float64) ([]models.PlayerProp, error) {
	if m.PlayerPropsFunc != nil {
		return m.PlayerPropsFunc(ctx, playerIDs, threshold)
	}
	return nil, nil
}

func (m *MockPredictionService) Warm(ctx context.Context) error { return m.WarmErr }
func (m *MockPredictionService) Ready() bool                    { return !m.NotReady }
func (m *MockPredictionService) WarmError() error               { return m.WarmErr }

type MockQueue struct{ Depth int }

func (m *MockQueue) QueueDepth() int { return m.Depth }
