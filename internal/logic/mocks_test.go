package logic

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hoopcast/forecast-api/internal/models"
)

type MockHistory struct {
	TeamLogsFunc   func(ctx context.Context) ([]models.GameRow, error)
	PlayerLogsFunc func(ctx context.Context) ([]models.PlayerGameRow, error)

	teamCalls   atomic.Int32
	playerCalls atomic.Int32
}

func (m *MockHistory) TeamLogs(ctx context.Context) ([]models.GameRow, error) {
	m.teamCalls.Add(1)
	if m.TeamLogsFunc != nil {
		return m.TeamLogsFunc(ctx)
	}
	return nil, nil
}

func (m *MockHistory) PlayerLogs(ctx context.Context) ([]models.PlayerGameRow, error) {
	m.playerCalls.Add(1)
	if m.PlayerLogsFunc != nil {
		return m.PlayerLogsFunc(ctx)
	}
	return nil, nil
}

type MockSchedule struct {
	TodayFunc func(ctx context.Context) (*models.Scoreboard, error)
}

func (m *MockSchedule) Today(ctx context.Context) (*models.Scoreboard, error) {
	return m.TodayFunc(ctx)
}

type MockInjuries struct {
	ReportFunc func(ctx context.Context) ([]models.InjuryReportEntry, error)
}

func (m *MockInjuries) Report(ctx context.Context) ([]models.InjuryReportEntry, error) {
	return m.ReportFunc(ctx)
}

// MockWinModel records every row it scores.
type MockWinModel struct {
	Names     []string
	ProbaFunc func(x []float64) (float64, error)

	mu     sync.Mutex
	Inputs [][]float64
}

func (m *MockWinModel) FeatureNames() []string { return m.Names }

func (m *MockWinModel) PredictProba(x []float64) (float64, error) {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, x)
	m.mu.Unlock()
	return m.ProbaFunc(x)
}

type MockPointsModel struct {
	Names       []string
	PredictFunc func(x []float64) float64
}

func (m *MockPointsModel) FeatureNames() []string { return m.Names }

func (m *MockPointsModel) Predict(x []float64) float64 { return m.PredictFunc(x) }

type MockRecorder struct {
	mu      sync.Mutex
	Records []models.PredictionRecord
}

func (m *MockRecorder) Record(rec models.PredictionRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return true
}

type MockRunner struct {
	calls atomic.Int32
	Err   error

	// FailOnCall makes only the nth job return Err.
	FailOnCall int32
}

func (m *MockRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	n := m.calls.Add(1)
	if m.Err != nil && (m.FailOnCall == 0 || n == m.FailOnCall) {
		return m.Err
	}
	return fn(ctx)
}
