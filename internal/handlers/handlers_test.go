package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/features"
	"github.com/hoopcast/forecast-api/internal/logic"
	"github.com/hoopcast/forecast-api/internal/models"
	"github.com/hoopcast/forecast-api/internal/worker"
)

func newTestRouter(svc *MockPredictionService) http.Handler {
	h := New(Config{Prediction: svc, WorkerPool: &MockQueue{Depth: 3}, Logger: zap.NewNop()})
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func serve(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		svc        *MockPredictionService
		wantStatus string
	}{
		{"Ready", &MockPredictionService{}, "ok"},
		{"Warming Up", &MockPredictionService{NotReady: true}, "warming_up"},
		{"Warm Failed", &MockPredictionService{WarmErr: errors.New("schedule down")}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, newTestRouter(tt.svc), "GET", "/health", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var body map[string]interface{}
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestReady_GatedOnWarmup(t *testing.T) {
	w := serve(t, newTestRouter(&MockPredictionService{NotReady: true}), "GET", "/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while warming up, got %d", w.Code)
	}
	w = serve(t, newTestRouter(&MockPredictionService{}), "GET", "/ready", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"queueDepth":3`) {
		t.Errorf("ready = %d %s", w.Code, w.Body.String())
	}
}

func TestGetGamePrediction_TableDriven(t *testing.T) {
	tests := []struct {
		name           string
		predict        func(ctx context.Context, gameID string) (*models.GamePrediction, error)
		expectedStatus int
	}{
		{
			name: "Happy Path",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return &models.GamePrediction{GameID: gameID, Status: models.StatusOK}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Insufficient History Is Still 200",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return &models.GamePrediction{GameID: gameID, Status: models.StatusInsufficientHistory}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Warming Up",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return &models.GamePrediction{GameID: gameID, Status: models.StatusWarmingUp}, nil
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "Not On Slate",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return nil, logic.ErrGameNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Feature Mismatch",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return nil, fmt.Errorf("game %s: %w", gameID, &features.MismatchError{Missing: []string{"travel_miles"}})
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "Worker Timeout",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return nil, worker.ErrTimeout
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "Upstream Error",
			predict: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
				return nil, errors.New("stats api down")
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&MockPredictionService{PredictGameFunc: tt.predict})
			w := serve(t, router, "GET", "/api/nba/predictions/games/0022400300", "")
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetGamePrediction_MismatchMessage(t *testing.T) {
	router := newTestRouter(&MockPredictionService{
		PredictGameFunc: func(ctx context.Context, gameID string) (*models.GamePrediction, error) {
			return nil, &features.MismatchError{Missing: []string{"travel_miles"}}
		},
	})
	w := serve(t, router, "GET", "/api/nba/predictions/games/G1", "")
	if !strings.Contains(w.Body.String(), "retrain") {
		t.Errorf("mismatch response should tell the operator to retrain: %s", w.Body.String())
	}
}

func TestGetTodaysPredictions_WarmingUp(t *testing.T) {
	router := newTestRouter(&MockPredictionService{
		PredictSlateFunc: func(ctx context.Context) (*models.SlatePrediction, error) {
			return &models.SlatePrediction{Status: models.StatusWarmingUp}, nil
		},
	})
	w := serve(t, router, "GET", "/api/nba/predictions/today", "")
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") == "" {
		t.Errorf("expected 503 with Retry-After, got %d %v", w.Code, w.Header())
	}
}

func TestGetTodaysGames_UpstreamError(t *testing.T) {
	router := newTestRouter(&MockPredictionService{
		TodaysGamesFunc: func(ctx context.Context) (*models.Scoreboard, error) {
			return nil, errors.New("cdn down")
		},
	})
	if w := serve(t, router, "GET", "/api/nba/games/today", ""); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestGetPlayerPrediction_TableDriven(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		status         string
		expectedStatus int
	}{
		{"Happy Path", "/api/nba/predictions/players/2544", models.StatusOK, http.StatusOK},
		{"Unknown Player", "/api/nba/predictions/players/1", models.StatusNotFound, http.StatusNotFound},
		{"Short History", "/api/nba/predictions/players/2", models.StatusInsufficientHistory, http.StatusOK},
		{"Bad ID", "/api/nba/predictions/players/lebron", models.StatusOK, http.StatusBadRequest},
		{"Negative ID", "/api/nba/predictions/players/-4", models.StatusOK, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&MockPredictionService{
				PredictPlayerFunc: func(ctx context.Context, playerID int) (*models.PlayerPrediction, error) {
					return &models.PlayerPrediction{PlayerID: playerID, Status: tt.status}, nil
				},
			})
			if w := serve(t, router, "GET", tt.path, ""); w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestPostPlayerPredictions_TableDriven(t *testing.T) {
	tooMany := make([]string, 26)
	for i := range tooMany {
		tooMany[i] = fmt.Sprint(i + 1)
	}

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"Valid Batch", `{"player_ids": [2544, 201939]}`, http.StatusOK},
		{"Invalid JSON", `{"player_ids": [`, http.StatusBadRequest},
		{"Missing IDs", `{}`, http.StatusBadRequest},
		{"Empty IDs", `{"player_ids": []}`, http.StatusBadRequest},
		{"Non-positive ID", `{"player_ids": [0]}`, http.StatusBadRequest},
		{"Over Limit", `{"player_ids": [` + strings.Join(tooMany, ",") + `]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			router := newTestRouter(&MockPredictionService{
				PredictPlayersFunc: func(ctx context.Context, ids []int) (map[string]models.BatchResult, error) {
					got = ids
					p := 27.5
					return map[string]models.BatchResult{"2544": {Points: &p}, "201939": {Error: "not found"}}, nil
				},
			})
			w := serve(t, router, "POST", "/api/nba/predictions/players", tt.body)
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus == http.StatusOK {
				if len(got) != 2 {
					t.Errorf("service got ids %v", got)
				}
				if !strings.Contains(w.Body.String(), `"points":27.5`) {
					t.Errorf("body = %s", w.Body.String())
				}
			}
		})
	}
}

func TestGetPlayerProps_Params(t *testing.T) {
	var gotIDs []int
	var gotThreshold float64
	router := newTestRouter(&MockPredictionService{
		PlayerPropsFunc: func(ctx context.Context, ids []int, threshold float64) ([]models.PlayerProp, error) {
			gotIDs, gotThreshold = ids, threshold
			return []models.PlayerProp{}, nil
		},
	})

	if w := serve(t, router, "GET", "/api/nba/props", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotIDs != nil || gotThreshold != 15 {
		t.Errorf("defaults = %v / %v", gotIDs, gotThreshold)
	}

	if w := serve(t, router, "GET", "/api/nba/props?player_ids=2544,%20201939&threshold=22.5", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(gotIDs) != 2 || gotIDs[1] != 201939 || gotThreshold != 22.5 {
		t.Errorf("params = %v / %v", gotIDs, gotThreshold)
	}

	for _, bad := range []string{"?threshold=lots", "?threshold=-1", "?player_ids=1,x"} {
		if w := serve(t, router, "GET", "/api/nba/props"+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, w.Code)
		}
	}
}
